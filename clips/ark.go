package clips

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"video-agent/config"
	"video-agent/metrics"
	"video-agent/poller"
	"video-agent/provider"
	"video-agent/types"
)

const arkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// arkTask is the part of a content generation task the poller needs
type arkTask struct {
	Status   string
	VideoURL string
}

// arkAPI is the subset of the Ark content generation API in use
type arkAPI struct {
	create func(ctx context.Context, modelID, prompt, imageURL string) (string, error)
	get    func(ctx context.Context, id string) (arkTask, error)
	delete func(ctx context.Context, id string) error
}

func newArkAPI(client *arkruntime.Client) arkAPI {
	return arkAPI{
		create: func(ctx context.Context, modelID, prompt, imageURL string) (string, error) {
			resp, err := client.CreateContentGenerationTask(ctx, model.CreateContentGenerationTaskRequest{
				Model: modelID,
				Content: []*model.CreateContentGenerationContentItem{
					{
						Type: model.ContentGenerationContentItemTypeText,
						Text: volcengine.String(prompt),
					},
					{
						Type:     model.ContentGenerationContentItemTypeImage,
						ImageURL: &model.ImageURL{URL: imageURL},
					},
				},
			})
			if err != nil {
				return "", err
			}
			return resp.ID, nil
		},
		get: func(ctx context.Context, id string) (arkTask, error) {
			req := model.GetContentGenerationTaskRequest{}
			req.ID = id
			resp, err := client.GetContentGenerationTask(ctx, req)
			if err != nil {
				return arkTask{}, err
			}
			return arkTask{Status: resp.Status, VideoURL: resp.Content.VideoURL}, nil
		},
		delete: func(ctx context.Context, id string) error {
			return client.DeleteContentGenerationTask(ctx, model.DeleteContentGenerationTaskRequest{ID: id})
		},
	}
}

// Ark generates clips with Volcengine Ark (Seedance) content generation tasks
type Ark struct {
	api         arkAPI
	model       string
	clipSeconds float64
	httpClient  *http.Client
}

var (
	_ poller.Source[Input] = (*Ark)(nil)
	_ poller.Canceler      = (*Ark)(nil)
)

// NewArk creates an Ark job source
func NewArk(cfg config.ClipsConfig, apiKey string, httpClient *http.Client) (*Ark, error) {
	if apiKey == "" {
		return nil, &provider.Error{Provider: "ark", Op: "init", Err: provider.ErrMissingKey}
	}
	base := arkBaseURL
	if cfg.Provider == "ark" && cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	client := arkruntime.NewClientWithApiKey(apiKey, arkruntime.WithBaseUrl(base))
	return &Ark{api: newArkAPI(client), model: cfg.Model, clipSeconds: cfg.ClipSeconds, httpClient: httpClient}, nil
}

// Submit creates a task from the image's public URL and the scene prompt
func (a *Ark) Submit(ctx context.Context, in Input) (id string, err error) {
	defer func() { metrics.ObserveProvider("ark", err) }()

	if in.ImageURL == "" {
		return "", errors.New("ark needs a public image URL")
	}
	seconds := in.Seconds
	if seconds <= 0 {
		seconds = a.clipSeconds
	}
	prompt := fmt.Sprintf("%s --resolution 720p --ratio 9:16 --duration %d", in.Prompt, arkDuration(seconds))

	id, err = a.api.create(ctx, a.model, prompt, in.ImageURL)
	if err != nil {
		return "", provider.Wrap("ark", "submit", err)
	}
	return id, nil
}

// Poll maps task status onto job state and downloads the finished clip
func (a *Ark) Poll(ctx context.Context, id string) (poller.Status, error) {
	task, err := a.api.get(ctx, id)
	if err != nil {
		return poller.Status{}, provider.Wrap("ark", "poll", err)
	}
	switch strings.ToLower(task.Status) {
	case "succeeded":
		if task.VideoURL == "" {
			return poller.Status{State: types.JobFailed, Reason: "succeeded without video url"}, nil
		}
		data, err := download(ctx, a.httpClient, "ark", task.VideoURL)
		if err != nil {
			return poller.Status{}, err
		}
		return poller.Status{State: types.JobComplete, Result: data}, nil
	case "failed", "cancelled", "expired":
		return poller.Status{State: types.JobFailed, Reason: "task " + task.Status}, nil
	default: // queued, running
		return poller.Status{State: types.JobPending}, nil
	}
}

// Cancel deletes a queued or running task
func (a *Ark) Cancel(ctx context.Context, id string) error {
	return a.api.delete(ctx, id)
}

// arkDuration rounds to the clip lengths Seedance supports.
func arkDuration(seconds float64) int {
	if seconds > 5 {
		return 10
	}
	return 5
}
