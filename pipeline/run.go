package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/telemetry"
	"video-agent/types"
)

const (
	statusCompleted = "completed"
	notesSuccess    = "Successfully completed"
)

// run is the mutable state of one execution. Only the orchestrating goroutine
// touches it, except snapshot readers which take mu.
type run struct {
	o       *Orchestrator
	dir     string
	machine *Machine[State, Event]

	mu  sync.Mutex
	run *types.Run

	// intermediate artifacts, all under dir
	script     *types.ScriptResult
	audioPath  string
	transcript *types.Transcript
	images     []imageAsset
	clipPaths  []string
	videoPath  string
}

type imageAsset struct {
	Path   string
	URL    string
	Prompt string
}

// execute runs every stage in order. Each stage persists its output before
// firing its event, and the event's hook writes the ledger.
func (r *run) execute(ctx context.Context) error {
	stages := []struct {
		name  string
		event Event
		fn    func(context.Context) error
	}{
		{StageScript, EventScript, r.stageScript},
		{StageAudio, EventAudio, r.stageAudio},
		{StageTranscript, EventTranscript, r.stageTranscript},
		{StageImages, EventImages, r.stageImages},
		{StageClips, EventClips, r.stageClips},
		{StageAssembly, EventAssembly, r.stageAssembly},
		{StagePublish, EventPublish, r.stagePublish},
	}
	for _, s := range stages {
		if err := r.stage(ctx, s.name, s.event, s.fn); err != nil {
			return err
		}
	}

	r.update(func(rec *types.StatusRecord) {
		rec.Set(types.FieldCreationDate, time.Now().UTC().Format(time.RFC3339))
		rec.Set(types.FieldNotes, notesSuccess)
	})
	if _, err := r.machine.Fire(ctx, EventFinish); err != nil {
		return &PipelineError{RunID: r.id(), Stage: StagePublish, Err: err}
	}
	return nil
}

// stage wraps one step with cancellation, tracing, timing and the transition
func (r *run) stage(ctx context.Context, name string, event Event, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &PipelineError{RunID: r.id(), Stage: name, Err: err}
	}

	ctx = logging.ContextWithStage(ctx, name)
	ctx, span := telemetry.Tracer("video-agent/pipeline").Start(ctx, "stage."+name,
		trace.WithAttributes(attribute.String("run_id", r.id())))
	defer span.End()

	log := logging.FromContext(ctx, "pipeline")
	log.Info().Msg("stage started")
	start := time.Now()

	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		metrics.StageFailures.WithLabelValues(name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &PipelineError{RunID: r.id(), Stage: name, Err: err}
	}

	if _, err := r.machine.Fire(ctx, event); err != nil {
		return &PipelineError{RunID: r.id(), Stage: name, Err: err}
	}
	log.Info().Dur("elapsed", elapsed).Msg("stage completed")
	return nil
}

// fail records the cause and moves the machine to failed, which writes the
// ledger one last time.
func (r *run) fail(ctx context.Context, err error) {
	cause := err
	var pe *PipelineError
	if errors.As(err, &pe) {
		cause = pe.Err
	}
	r.mu.Lock()
	r.run.Error = err.Error()
	r.run.Status.Set(types.FieldNotes, "Error: "+cause.Error())
	r.mu.Unlock()

	if !r.machine.Can(EventFail) {
		return
	}
	if _, ferr := r.machine.Fire(context.WithoutCancel(ctx), EventFail); ferr != nil {
		logging.FromContext(ctx, "pipeline").Warn().Err(ferr).Msg("could not mark run failed")
	}
}

// recordTransition is the FSM hook: sync the run state and write the ledger.
// Ledger failures are logged and counted, never returned.
func (r *run) recordTransition(ctx context.Context, from, to State, event Event) {
	r.mu.Lock()
	r.run.State = string(to)
	r.run.Status.Set(types.FieldState, string(to))
	if to.Terminal() {
		r.run.CompletedAt = time.Now().UTC()
	}
	rec := r.run.Status.Clone()
	r.mu.Unlock()

	log := logging.FromContext(ctx, "pipeline")
	log.Debug().Str("from", string(from)).Str("to", string(to)).Str("event", string(event)).Msg("transition")

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.opts.LedgerTimeout)
	defer cancel()
	if err := r.o.deps.Ledger.AppendOrUpdate(wctx, rec.RunID, rec); err != nil {
		metrics.LedgerWriteFailures.Inc()
		log.Warn().Err(err).Str("state", string(to)).Msg("ledger write failed")
	}
}

func (r *run) update(fn func(rec *types.StatusRecord)) {
	r.mu.Lock()
	fn(&r.run.Status)
	r.mu.Unlock()
}

func (r *run) id() string {
	return r.run.RunID
}

// snapshot returns a copy safe to hand to callers
func (r *run) snapshot() *types.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *r.run
	out.Status = r.run.Status.Clone()
	return &out
}

func (r *run) requireVideoURL(context.Context, State, Event) error {
	if r.snapshot().VideoURL == "" {
		return ErrNoVideoURL
	}
	return nil
}

func (r *run) requirePublished(context.Context, State, Event) error {
	if r.snapshot().PublishedURL == "" {
		return ErrNotPublished
	}
	return nil
}

// cleanup writes the run log and removes the work directory
func (r *run) cleanup(ctx context.Context) {
	log := logging.FromContext(ctx, "pipeline")
	if dir := r.o.opts.LogDir; dir != "" {
		if err := SaveRunLog(dir, r.snapshot()); err != nil {
			log.Warn().Err(err).Msg("could not save run log")
		}
	}
	if r.o.opts.KeepWorkDir {
		log.Info().Str("dir", r.dir).Msg("keeping work dir")
		return
	}
	if err := os.RemoveAll(r.dir); err != nil {
		log.Warn().Err(err).Str("dir", r.dir).Msg("could not remove work dir")
	}
}

// SaveRunLog writes dir/<run_id>.json atomically
func SaveRunLog(dir string, run *types.Run) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return renameio.WriteFile(filepath.Join(dir, run.RunID+".json"), data, 0o644)
}

// saveJSON writes v under the work dir atomically
func (r *run) saveJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(r.dir, name), data, 0o644)
}
