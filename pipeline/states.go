package pipeline

import "context"

// State is a point in a run's lifecycle
type State string

const (
	StateInit                State = "init"
	StateScriptGenerated     State = "script_generated"
	StateAudioGenerated      State = "audio_generated"
	StateTranscriptGenerated State = "transcript_generated"
	StateImagesGenerated     State = "images_generated"
	StateVideosGenerated     State = "videos_generated"
	StateVideoAssembled      State = "video_assembled"
	StatePublished           State = "published"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event completes a stage, or fails the run
type Event string

const (
	EventScript     Event = "script"
	EventAudio      Event = "audio"
	EventTranscript Event = "transcript"
	EventImages     Event = "images"
	EventClips      Event = "clips"
	EventAssembly   Event = "assembly"
	EventPublish    Event = "publish"
	EventFinish     Event = "finish"
	EventFail       Event = "fail"
)

// Stage names used in errors, logs, spans and metrics
const (
	StageValidate   = "validate"
	StageSetup      = "setup"
	StageScript     = "script"
	StageAudio      = "audio"
	StageTranscript = "transcript"
	StageImages     = "images"
	StageClips      = "clips"
	StageAssembly   = "assembly"
	StagePublish    = "publish"
)

// Order is the happy path, one entry per stage event
var Order = []struct {
	Event Event
	To    State
}{
	{EventScript, StateScriptGenerated},
	{EventAudio, StateAudioGenerated},
	{EventTranscript, StateTranscriptGenerated},
	{EventImages, StateImagesGenerated},
	{EventClips, StateVideosGenerated},
	{EventAssembly, StateVideoAssembled},
	{EventPublish, StatePublished},
	{EventFinish, StateDone},
}

// Guard vetoes a forward edge
type Guard func(ctx context.Context, from State, event Event) error

// transitions chains Order from init and lets every non-terminal state fail.
// guards gate the forward edge for their event.
func transitions(guards map[Event]Guard) []Transition[State, Event] {
	out := make([]Transition[State, Event], 0, 2*len(Order)+1)
	from := StateInit
	for _, step := range Order {
		out = append(out,
			Transition[State, Event]{From: from, Event: step.Event, To: step.To, Guard: guards[step.Event]},
			Transition[State, Event]{From: from, Event: EventFail, To: StateFailed},
		)
		from = step.To
	}
	return out
}
