// Package pipeline drives a run through its stages, from topic to published
// video, and reports progress to the status ledger after every transition.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"video-agent/audio"
	"video-agent/clips"
	"video-agent/ledger"
	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/storage"
	"video-agent/subtitles"
	"video-agent/types"
	"video-agent/upload"
	"video-agent/visuals"
)

// ScriptWriter turns a topic into narration
type ScriptWriter interface {
	Generate(ctx context.Context, topic, formatType string, minutes int) (*types.ScriptResult, error)
}

// MetadataWriter derives publish metadata. It never fails; it falls back to
// the script's own title and description.
type MetadataWriter interface {
	Generate(ctx context.Context, script *types.ScriptResult) *types.VideoMetadata
}

// PromptDeriver turns transcript text into image prompts
type PromptDeriver interface {
	DerivePrompts(ctx context.Context, transcript string, count int) ([]string, error)
}

// Assembler composes the final video
type Assembler interface {
	Assemble(ctx context.Context, spec types.AssemblySpec) (string, error)
}

// Deps are the collaborators a run calls, one per stage
type Deps struct {
	Script      ScriptWriter
	Metadata    MetadataWriter
	Speech      audio.Synthesizer
	Transcriber subtitles.Transcriber
	Prompts     PromptDeriver
	Images      visuals.ImageGenerator
	Clips       clips.Generator
	Assembler   Assembler
	Store       storage.ObjectStore
	Publisher   upload.Publisher
	Ledger      ledger.Ledger
}

// Buckets name the storage bucket per artifact kind
type Buckets struct {
	Audio string
	Image string
	Video string
}

// Options tune a run. Zero values fall back to sensible defaults.
type Options struct {
	WorkRoot       string
	LogDir         string
	KeepWorkDir    bool
	MaxConcurrency int
	// MaxImages caps prompts per run; zero means one per transcript segment
	MaxImages      int
	ImagesPerMin   int
	ClipsPerMin    int
	Buckets        Buckets
	Assembly       types.AssemblyOptions
	LedgerTimeout  time.Duration
	DefaultFormat  string
}

// Request asks for one video
type Request struct {
	Topic           string `json:"topic"`
	FormatType      string `json:"format_type"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Validate checks the preconditions of a run
func (r Request) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return &ValidationError{Field: "topic", Reason: "must not be empty"}
	}
	if r.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("must be positive, got %d", r.DurationMinutes)}
	}
	return nil
}

// Orchestrator runs the pipeline. It is safe for concurrent runs; the rate
// limiters are shared between them.
type Orchestrator struct {
	deps       Deps
	opts       Options
	imageLimit *rate.Limiter
	clipLimit  *rate.Limiter
}

// New creates an orchestrator. A nil Ledger becomes ledger.Nop and a nil
// Publisher becomes upload.Disabled.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Ledger == nil {
		deps.Ledger = ledger.Nop{}
	}
	if deps.Publisher == nil {
		deps.Publisher = upload.Disabled{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = 10 * time.Second
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = "educational"
	}
	return &Orchestrator{
		deps:       deps,
		opts:       opts,
		imageLimit: perMinute(opts.ImagesPerMin),
		clipLimit:  perMinute(opts.ClipsPerMin),
	}
}

// NewRunID returns vid_<UTC timestamp>_<random suffix>
func NewRunID() string {
	return fmt.Sprintf("vid_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
}

// CreateAndPublishVideo validates the request, allocates a run id, and runs
// every stage. On failure the returned error is a *PipelineError, or a
// *ValidationError when nothing was started.
func (o *Orchestrator) CreateAndPublishVideo(ctx context.Context, topic, formatType string, durationMinutes int) (*types.Run, error) {
	req := Request{Topic: topic, FormatType: formatType, DurationMinutes: durationMinutes}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return o.Run(ctx, NewRunID(), req)
}

// Run executes one run under a caller-chosen id. The returned Run is non-nil
// whenever the run started, including on failure.
func (o *Orchestrator) Run(ctx context.Context, runID string, req Request) (*types.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.FormatType == "" {
		req.FormatType = o.opts.DefaultFormat
	}

	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.FromContext(ctx, "pipeline")

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	r, err := o.newRun(runID, req)
	if err != nil {
		return nil, &PipelineError{RunID: runID, Stage: StageSetup, Err: err}
	}
	defer r.cleanup(ctx)

	log.Info().Str("topic", req.Topic).Str("format", req.FormatType).Int("minutes", req.DurationMinutes).Msg("run started")

	if err := r.execute(ctx); err != nil {
		r.fail(ctx, err)
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("run failed")
		return r.snapshot(), err
	}

	metrics.RunsTotal.WithLabelValues("succeeded").Inc()
	log.Info().Str("published_url", r.run.PublishedURL).Msg("run complete")
	return r.snapshot(), nil
}

func (o *Orchestrator) newRun(runID string, req Request) (*run, error) {
	root := o.opts.WorkRoot
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
	}
	dir, err := os.MkdirTemp(root, runID+"-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	now := time.Now().UTC()
	r := &run{
		o:   o,
		dir: dir,
		run: &types.Run{
			RunID:           runID,
			Topic:           req.Topic,
			FormatType:      req.FormatType,
			DurationMinutes: req.DurationMinutes,
			State:           string(StateInit),
			Status:          types.NewStatusRecord(runID),
			CreatedAt:       now,
		},
	}
	r.run.Status.Set(types.FieldState, string(StateInit))

	m, err := NewMachine(StateInit, transitions(map[Event]Guard{
		EventAssembly: r.requireVideoURL,
		EventFinish:   r.requirePublished,
	}))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	m.OnTransition(r.recordTransition)
	r.machine = m
	return r, nil
}
