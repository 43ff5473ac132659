package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"video-agent/clips"
	"video-agent/logging"
	"video-agent/storage"
	"video-agent/subtitles"
	"video-agent/types"
	"video-agent/upload"
)

func (r *run) stageScript(ctx context.Context) error {
	req := r.snapshot()
	script, err := r.o.deps.Script.Generate(ctx, req.Topic, req.FormatType, req.DurationMinutes)
	if err != nil {
		return err
	}
	if err := r.saveJSON("script.json", script); err != nil {
		return fmt.Errorf("save script: %w", err)
	}
	r.script = script
	r.mu.Lock()
	r.run.Script = script
	r.run.Status.Set(types.FieldScriptStatus, statusCompleted)
	r.mu.Unlock()
	return nil
}

func (r *run) stageAudio(ctx context.Context) error {
	data, err := r.o.deps.Speech.Synthesize(ctx, r.script.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("synthesizer returned no audio")
	}
	path := filepath.Join(r.dir, "audio.mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	url, err := r.o.deps.Store.Upload(ctx, r.o.opts.Buckets.Audio, path, storage.AudioKey(r.id()))
	if err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	r.audioPath = path
	r.mu.Lock()
	r.run.AudioURL = url
	r.run.Status.Set(types.FieldAudioURL, url)
	r.mu.Unlock()
	return nil
}

func (r *run) stageTranscript(ctx context.Context) error {
	tr, err := r.o.deps.Transcriber.Transcribe(ctx, r.audioPath)
	if err != nil {
		return err
	}
	tr.Segments = subtitles.Normalize(tr.Segments)
	if len(tr.Segments) == 0 {
		return errors.New("transcript has no segments")
	}
	if err := r.saveJSON("transcript.json", tr); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := subtitles.SaveSRT(filepath.Join(r.dir, "transcript.srt"), tr); err != nil {
		return fmt.Errorf("save srt: %w", err)
	}
	r.transcript = tr
	r.update(func(rec *types.StatusRecord) { rec.Set(types.FieldTranscriptStatus, statusCompleted) })
	return nil
}

// imageCount is one image per transcript segment, capped by MaxImages
func (r *run) imageCount() int {
	n := len(r.transcript.Segments)
	if limit := r.o.opts.MaxImages; limit > 0 && n > limit {
		n = limit
	}
	return n
}

func (r *run) stageImages(ctx context.Context) error {
	count := r.imageCount()
	prompts, err := r.o.deps.Prompts.DerivePrompts(ctx, r.transcript.FullText, count)
	if err != nil {
		return fmt.Errorf("derive prompts: %w", err)
	}
	if len(prompts) == 0 {
		return errors.New("no image prompts derived")
	}
	if len(prompts) > count {
		prompts = prompts[:count]
	}

	dir := filepath.Join(r.dir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	images, err := fanOut(ctx, len(prompts), r.o.opts.MaxConcurrency, r.o.imageLimit,
		func(ctx context.Context, i int) (imageAsset, error) {
			data, err := r.o.deps.Images.Generate(ctx, prompts[i])
			if err != nil {
				return imageAsset{}, err
			}
			path := filepath.Join(dir, fmt.Sprintf("image_%d.png", i))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return imageAsset{}, err
			}
			url, err := r.o.deps.Store.Upload(ctx, r.o.opts.Buckets.Image, path, storage.ImageKey(r.id(), i))
			if err != nil {
				return imageAsset{}, fmt.Errorf("upload image: %w", err)
			}
			return imageAsset{Path: path, URL: url, Prompt: prompts[i]}, nil
		})
	if err != nil {
		return err
	}
	r.images = images
	logging.FromContext(ctx, "pipeline").Info().Int("images", len(images)).Msg("images ready")
	r.update(func(rec *types.StatusRecord) { rec.Set(types.FieldImagesStatus, statusCompleted) })
	return nil
}

func (r *run) stageClips(ctx context.Context) error {
	dir := filepath.Join(r.dir, "clips")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	seconds := r.transcript.Segments[len(r.transcript.Segments)-1].End / float64(len(r.images))

	paths, err := fanOut(ctx, len(r.images), r.o.opts.MaxConcurrency, r.o.clipLimit,
		func(ctx context.Context, i int) (string, error) {
			img := r.images[i]
			data, err := r.o.deps.Clips.Generate(ctx, clips.Input{
				Index:     i,
				ImagePath: img.Path,
				ImageURL:  img.URL,
				Prompt:    img.Prompt,
				Seconds:   seconds,
			})
			if err != nil {
				return "", err
			}
			path := filepath.Join(dir, fmt.Sprintf("clip_%d.mp4", i))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return "", err
			}
			return path, nil
		})
	if err != nil {
		return err
	}
	r.clipPaths = paths
	r.update(func(rec *types.StatusRecord) { rec.Set(types.FieldClipsStatus, statusCompleted) })
	return nil
}

func (r *run) stageAssembly(ctx context.Context) error {
	out, err := r.o.deps.Assembler.Assemble(ctx, types.AssemblySpec{
		Clips:      r.clipPaths,
		Audio:      r.audioPath,
		Transcript: r.transcript,
		OutputPath: filepath.Join(r.dir, "final_video.mp4"),
		Options:    r.o.opts.Assembly,
	})
	if err != nil {
		return err
	}
	url, err := r.o.deps.Store.Upload(ctx, r.o.opts.Buckets.Video, out, storage.VideoKey(r.id()))
	if err != nil {
		return fmt.Errorf("upload video: %w", err)
	}
	r.videoPath = out
	r.mu.Lock()
	r.run.VideoURL = url
	r.run.Status.Set(types.FieldVideoStatus, statusCompleted)
	r.run.Status.Set(types.FieldVideoURL, url)
	r.mu.Unlock()
	return nil
}

func (r *run) stagePublish(ctx context.Context) error {
	meta := r.o.deps.Metadata.Generate(ctx, r.script)
	published, err := r.o.deps.Publisher.Publish(ctx, r.videoPath, meta.Title, meta.Description, meta.Tags)
	if err != nil {
		return err
	}
	snap := r.snapshot()
	if published == "" {
		published = snap.VideoURL
	}
	if dir := r.o.opts.LogDir; dir != "" {
		if _, err := upload.LogUpload(dir, upload.Entry{
			RunID:     snap.RunID,
			URL:       published,
			Title:     meta.Title,
			VideoFile: snap.VideoURL,
		}); err != nil {
			logging.FromContext(ctx, "pipeline").Warn().Err(err).Msg("could not save upload log")
		}
	}
	r.mu.Lock()
	r.run.PublishedURL = published
	r.run.Status.Set(types.FieldPublishedURL, published)
	r.mu.Unlock()
	return nil
}
