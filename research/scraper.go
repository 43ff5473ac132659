// Package research picks a video topic from a subreddit's top posts.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"video-agent/config"
	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/types"
)

// hookKeywords boost a post's score when present
var hookKeywords = []string{
	"why", "how", "secret", "mystery", "discovered", "first", "never",
	"actually", "hidden", "strange", "surprising", "science", "history",
	"explained", "record", "unknown", "ancient", "weird", "fact", "invented",
}

// ErrNoTopics is returned when no unused post passes the filters
var ErrNoTopics = errors.New("no usable topics found")

// Scraper reads posts through Reddit's public JSON listings
type Scraper struct {
	client   *reddit.Client
	cfg      config.ResearchConfig
	usedPath string

	mu   sync.Mutex
	used map[string]bool
}

// New creates a read-only Reddit scraper. usedPath persists the ids of topics
// already handed out; empty disables dedup across processes.
func New(cfg config.ResearchConfig, userAgent, usedPath string, httpClient *http.Client, opts ...reddit.Opt) (*Scraper, error) {
	if userAgent == "" {
		userAgent = "video-agent/1.0"
	}
	opts = append([]reddit.Opt{reddit.WithUserAgent(userAgent)}, opts...)
	if httpClient != nil {
		opts = append(opts, reddit.WithHTTPClient(httpClient))
	}
	client, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Scraper{
		client:   client,
		cfg:      cfg,
		usedPath: usedPath,
		used:     loadUsed(usedPath),
	}, nil
}

// Pick fetches top posts, scores them, and returns the best unused one. An
// empty subreddit searches every configured subreddit.
func (s *Scraper) Pick(ctx context.Context, subreddit string) (*types.Topic, error) {
	log := logging.FromContext(ctx, "research")

	subs := s.cfg.Subreddits
	if subreddit != "" {
		subs = []string{strings.TrimPrefix(subreddit, "r/")}
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("no subreddit given and research.subreddits is empty")
	}

	var candidates []*types.Topic
	var lastErr error
	for _, sub := range subs {
		topics, err := s.fetch(ctx, sub)
		if err != nil {
			log.Warn().Err(err).Str("subreddit", sub).Msg("reddit fetch failed")
			lastErr = err
			continue
		}
		log.Debug().Str("subreddit", sub).Int("posts", len(topics)).Msg("fetched")
		candidates = append(candidates, topics...)
	}
	if len(candidates) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNoTopics
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range candidates {
		if s.used[t.ID] {
			continue
		}
		s.used[t.ID] = true
		if err := s.saveUsed(); err != nil {
			log.Warn().Err(err).Msg("could not persist used topics")
		}
		log.Info().Str("title", t.Title).Int("score", t.Score).Msg("selected topic")
		return t, nil
	}
	return nil, fmt.Errorf("%w: every candidate has been used", ErrNoTopics)
}

func (s *Scraper) fetch(ctx context.Context, subreddit string) (topics []*types.Topic, err error) {
	defer func() { metrics.ObserveProvider("reddit", err) }()

	limit := s.cfg.Limit
	if limit <= 0 {
		limit = 25
	}
	timeFilter := s.cfg.TimeFilter
	if timeFilter == "" {
		timeFilter = "week"
	}

	posts, _, err := s.client.Subreddit.TopPosts(ctx, subreddit, &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: limit},
		Time:        timeFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("r/%s top posts: %w", subreddit, err)
	}

	for _, p := range posts {
		if p.NSFW || p.Stickied {
			continue
		}
		if p.Score < s.cfg.MinScore || p.NumberOfComments < s.cfg.MinComments {
			continue
		}
		t := &types.Topic{
			ID:        "reddit_" + p.ID,
			Title:     strings.TrimSpace(p.Title),
			Body:      p.Body,
			Source:    "r/" + subreddit,
			SourceURL: "https://reddit.com" + p.Permalink,
		}
		var created time.Time
		if p.Created != nil {
			created = p.Created.Time
		}
		t.Score = Score(p.Score, t.Title, t.Body, created)
		topics = append(topics, t)
	}
	return topics, nil
}

// Score ranks a post: upvotes plus bonuses for hook words, recency, and body
// length.
func Score(upvotes int, title, body string, created time.Time) int {
	score := upvotes

	text := strings.ToLower(title + " " + body)
	for _, kw := range hookKeywords {
		if strings.Contains(text, kw) {
			score += 50
		}
	}

	if !created.IsZero() && time.Since(created) < 72*time.Hour {
		score += 200
	}

	if len(body) > 500 {
		score += 75
	}
	if len(body) > 1500 {
		score += 75
	}
	return score
}

func loadUsed(path string) map[string]bool {
	used := make(map[string]bool)
	if path == "" {
		return used
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return used
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return used
	}
	for _, id := range ids {
		used[id] = true
	}
	return used
}

// saveUsed must be called with s.mu held
func (s *Scraper) saveUsed() error {
	if s.usedPath == "" {
		return nil
	}
	ids := make([]string, 0, len(s.used))
	for id := range s.used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.usedPath), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(s.usedPath, data, 0o644)
}
