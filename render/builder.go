package render

import (
	"fmt"
	"strconv"
	"strings"

	"video-agent/ffmpeg"
	"video-agent/types"
)

// encodeJob is everything needed to produce the single ffmpeg invocation.
type encodeJob struct {
	Timeline Timeline
	Audio    string
	Cues     []Cue
	CueFiles []string // parallel to Cues
	Options  types.AssemblyOptions
	Output   string
}

// buildArgs renders the whole assembly as one filter graph: per-clip
// normalise and fade, concat, freeze-pad, trim to audio, outro fade, then one
// drawtext per cue in draw order.
func buildArgs(job encodeJob) []string {
	o := job.Options
	args := ffmpeg.BaseArgs()
	for _, seg := range job.Timeline.Segments {
		args = append(args, "-i", seg.Path)
	}
	audioIdx := len(job.Timeline.Segments)
	args = append(args, "-i", job.Audio)

	var graph []string
	var labels strings.Builder
	for i, seg := range job.Timeline.Segments {
		chain := []string{
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", o.Width, o.Height),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", o.Width, o.Height),
			"setsar=1",
			fmt.Sprintf("fps=%d", o.FPS),
			"format=yuv420p",
			"trim=duration=" + ffmpeg.Seconds(seg.Duration),
			"setpts=PTS-STARTPTS",
		}
		if seg.FadeIn > 0 {
			chain = append(chain, "fade=t=in:st=0:d="+ffmpeg.Seconds(seg.FadeIn))
		}
		if seg.FadeOut > 0 {
			chain = append(chain, fmt.Sprintf("fade=t=out:st=%s:d=%s",
				ffmpeg.Seconds(seg.Duration-seg.FadeOut), ffmpeg.Seconds(seg.FadeOut)))
		}
		graph = append(graph, fmt.Sprintf("[%d:v]%s[v%d]", i, strings.Join(chain, ","), i))
		fmt.Fprintf(&labels, "[v%d]", i)
	}
	graph = append(graph, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vcat]", labels.String(), len(job.Timeline.Segments)))

	tl := job.Timeline
	var tailChain []string
	if tl.Pad > 0 {
		tailChain = append(tailChain, "tpad=stop_mode=clone:stop_duration="+ffmpeg.Seconds(tl.Pad))
	}
	tailChain = append(tailChain, "trim=duration="+ffmpeg.Seconds(tl.Final), "setpts=PTS-STARTPTS")
	if tl.OutroFade > 0 {
		tailChain = append(tailChain, fmt.Sprintf("fade=t=out:st=%s:d=%s",
			ffmpeg.Seconds(tl.Final-tl.OutroFade), ffmpeg.Seconds(tl.OutroFade)))
	}
	for i, c := range job.Cues {
		tailChain = append(tailChain, drawtext(c, job.CueFiles[i], o.Captions))
	}
	graph = append(graph, "[vcat]"+strings.Join(tailChain, ",")+"[vout]")

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[vout]",
		"-map", fmt.Sprintf("%d:a:0", audioIdx),
		"-c:v", o.VideoCodec,
		"-preset", o.Preset,
		"-crf", strconv.Itoa(o.CRF),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(o.FPS),
		"-c:a", o.AudioCodec,
		"-b:a", o.AudioBitrate,
		"-t", ffmpeg.Seconds(tl.Final),
		"-movflags", "+faststart",
		"-f", "mp4",
		job.Output,
	)
	return args
}
