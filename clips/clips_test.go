package clips

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"video-agent/config"
	"video-agent/poller"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image_0.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o644))
	return path
}

var fastPoll = poller.Options{Interval: time.Millisecond, MaxAttempts: 5}

func TestStabilitySubmitAndPoll(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2beta/image-to-video", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "1.8", r.FormValue("cfg_scale"))
		assert.Equal(t, "127", r.FormValue("motion_bucket_id"))
		_, _, err := r.FormFile("image")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"id":"gen-1"}`))
	})
	mux.HandleFunc("GET /v2beta/image-to-video/result/gen-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "video/*", r.Header.Get("Accept"))
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"id":"gen-1","status":"in-progress"}`))
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4 bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewStability(config.ClipsConfig{BaseURL: srv.URL, CfgScale: 1.8, MotionBucketID: 127}, "sk", srv.Client())
	gen := Async{Source: src, Options: fastPoll}

	clip, err := gen.Generate(context.Background(), Input{ImagePath: writeImage(t)})
	require.NoError(t, err)
	assert.Equal(t, "mp4 bytes", string(clip))
	assert.EqualValues(t, 3, polls.Load(), "two pending checks then success")
}

func TestStabilityRejectedGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"name":"not_found","errors":["generation expired"]}`))
	}))
	defer srv.Close()

	src := NewStability(config.ClipsConfig{BaseURL: srv.URL}, "sk", srv.Client())
	_, err := poller.AwaitCompletion(context.Background(), src, "gen-9", fastPoll)

	var gf *poller.GenerationFailed
	require.ErrorAs(t, err, &gf)
	assert.ErrorIs(t, err, poller.ErrJobFailed)
	assert.Contains(t, err.Error(), "generation expired")
}

func TestStabilityCropsWithRunner(t *testing.T) {
	var cropArgs []string
	runner := runnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		cropArgs = args
		return nil, os.WriteFile(args[len(args)-1], []byte("cropped"), 0o644)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		buf := make([]byte, 16)
		n, _ := f.Read(buf)
		assert.Equal(t, "cropped", string(buf[:n]))
		_, _ = w.Write([]byte(`{"id":"gen-2"}`))
	}))
	defer srv.Close()

	src := NewStability(config.ClipsConfig{BaseURL: srv.URL}, "sk", srv.Client())
	src.Runner = runner
	id, err := src.Submit(context.Background(), Input{ImagePath: writeImage(t)})
	require.NoError(t, err)
	assert.Equal(t, "gen-2", id)
	assert.Contains(t, strings.Join(cropArgs, " "), "crop=576:1024")
}

type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

func TestArkLifecycle(t *testing.T) {
	video := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("seedance mp4"))
	}))
	defer video.Close()

	var gotPrompt, gotImage string
	gets := 0
	a := &Ark{
		model:       "doubao-seedance-1-0-pro-250528",
		clipSeconds: 4,
		httpClient:  video.Client(),
		api: arkAPI{
			create: func(_ context.Context, modelID, prompt, imageURL string) (string, error) {
				gotPrompt, gotImage = prompt, imageURL
				return "cgt-1", nil
			},
			get: func(_ context.Context, id string) (arkTask, error) {
				gets++
				if gets == 1 {
					return arkTask{Status: "running"}, nil
				}
				return arkTask{Status: "succeeded", VideoURL: video.URL + "/clip.mp4"}, nil
			},
		},
	}

	clip, err := Async{Source: a, Options: fastPoll}.Generate(context.Background(), Input{
		Prompt:   "owl at dusk",
		ImageURL: "https://storage.googleapis.com/images/run/images/image_0.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "seedance mp4", string(clip))
	assert.Equal(t, "owl at dusk --resolution 720p --ratio 9:16 --duration 5", gotPrompt)
	assert.Equal(t, "https://storage.googleapis.com/images/run/images/image_0.png", gotImage)
	assert.Equal(t, 2, gets)
}

func TestArkCancelsOnAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var deleted string
	a := &Ark{api: arkAPI{
		create: func(context.Context, string, string, string) (string, error) { return "cgt-7", nil },
		get: func(context.Context, string) (arkTask, error) {
			cancel()
			return arkTask{Status: "queued"}, nil
		},
		delete: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}}

	_, err := Async{Source: a, Options: poller.Options{Interval: time.Hour, MaxAttempts: 3}}.Generate(ctx, Input{ImageURL: "u"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cgt-7", deleted)
}

func TestArkRequiresImageURL(t *testing.T) {
	a := &Ark{api: arkAPI{}}
	_, err := a.Submit(context.Background(), Input{ImagePath: "local.png"})
	assert.Error(t, err)

	st, err := (&Ark{api: arkAPI{get: func(context.Context, string) (arkTask, error) {
		return arkTask{Status: "failed"}, nil
	}}}).Poll(context.Background(), "cgt-2")
	require.NoError(t, err)
	assert.Equal(t, "failed", string(st.State))
}

func TestKenBurnsRendersClip(t *testing.T) {
	var got []string
	runner := runnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return nil, os.WriteFile(args[len(args)-1], []byte("kb mp4"), 0o644)
	})
	kb := &KenBurns{Runner: runner, Zoom: 1.15, FPS: 30, Width: 1080, Height: 1920}

	clip, err := kb.Generate(context.Background(), Input{Index: 2, ImagePath: "img.png", Seconds: 4})
	require.NoError(t, err)
	assert.Equal(t, "kb mp4", string(clip))

	joined := strings.Join(got, " ")
	assert.Contains(t, joined, "-loop 1 -i img.png")
	assert.Contains(t, joined, "-t 4.000")
	assert.Contains(t, joined, "zoompan=z='min(zoom+0.001250,1.150)'")
	assert.Contains(t, joined, "d=120:s=1080x1920:fps=30")
}

func TestKenBurnsShortClipRendersOneFrame(t *testing.T) {
	var got []string
	runner := runnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = args
		return nil, os.WriteFile(args[len(args)-1], []byte("kb mp4"), 0o644)
	})
	kb := &KenBurns{Runner: runner, Zoom: 1.15, FPS: 30, Width: 1080, Height: 1920}

	_, err := kb.Generate(context.Background(), Input{ImagePath: "img.png", Seconds: 0.01})
	require.NoError(t, err)

	joined := strings.Join(got, " ")
	assert.NotContains(t, joined, "Inf")
	assert.Contains(t, joined, "zoompan=z='min(zoom+0.150000,1.150)'")
	assert.Contains(t, joined, "d=1:s=1080x1920")
}

func TestKenBurnsPropagatesFailure(t *testing.T) {
	boom := errors.New("exit status 1")
	kb := &KenBurns{Runner: runnerFunc(func(context.Context, string, ...string) ([]byte, error) { return nil, boom })}
	_, err := kb.Generate(context.Background(), Input{ImagePath: "img.png"})
	assert.ErrorIs(t, err, boom)
}

func TestNewSelectsGenerator(t *testing.T) {
	g, err := New(config.ClipsConfig{Provider: "kenburns"}, config.RenderConfig{FPS: 30}, config.Secrets{}, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &KenBurns{}, g)

	_, err = New(config.ClipsConfig{Provider: "ark"}, config.RenderConfig{}, config.Secrets{}, Deps{})
	assert.Error(t, err, "ark without key")

	_, err = New(config.ClipsConfig{Provider: "sora"}, config.RenderConfig{}, config.Secrets{}, Deps{})
	assert.Error(t, err)
}
