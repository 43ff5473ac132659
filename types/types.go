package types

import "time"

// Topic is a candidate subject for a video, usually picked by research
type Topic struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Source    string `json:"source"`
	SourceURL string `json:"source_url"`
	Score     int    `json:"score"`
}

// ScriptResult is the narration script for one run
type ScriptResult struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags,omitempty"`
}

// TranscriptSegment is one time-coded piece of narration
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns End - Start in seconds
func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

// Transcript is the full transcription of the narration track
type Transcript struct {
	FullText string              `json:"full_text"`
	Segments []TranscriptSegment `json:"segments"`
}

// AssetKind tags a MediaAsset
type AssetKind string

const (
	KindImage AssetKind = "image"
	KindClip  AssetKind = "video-clip"
	KindAudio AssetKind = "audio"
)

// MediaAsset is a generated media artifact handed from one stage to the next
type MediaAsset struct {
	Kind  AssetKind `json:"kind"`
	Index int       `json:"index"`
	Path  string    `json:"path"`
	URL   string    `json:"url,omitempty"`
	Data  []byte    `json:"-"`
}

// JobState is the provider-side state of an async generation job
type JobState string

const (
	JobPending  JobState = "pending"
	JobComplete JobState = "complete"
	JobFailed   JobState = "failed"
)

// GenerationJob tracks one async generation request during a polling cycle
type GenerationJob struct {
	JobID  string   `json:"job_id"`
	Status JobState `json:"status"`
	Result []byte   `json:"-"`
}

// CaptionStyle controls how transcript segments are drawn over the video
type CaptionStyle struct {
	FontFile     string  `json:"font_file,omitempty"`
	FontSize     int     `json:"font_size"`
	FontColor    string  `json:"font_color"`
	BoxColor     string  `json:"box_color"`
	BoxBorder    int     `json:"box_border"`
	WidthRatio   float64 `json:"width_ratio"`
	MarginBottom int     `json:"margin_bottom"`
}

// AssemblyOptions are encoding parameters for the final video
type AssemblyOptions struct {
	TransitionDuration float64      `json:"transition_duration"`
	FPS                int          `json:"fps"`
	Width              int          `json:"width"`
	Height             int          `json:"height"`
	VideoCodec         string       `json:"video_codec"`
	AudioCodec         string       `json:"audio_codec"`
	AudioBitrate       string       `json:"audio_bitrate"`
	Preset             string       `json:"preset"`
	CRF                int          `json:"crf"`
	Captions           CaptionStyle `json:"captions"`
}

// AssemblySpec is everything the assembler needs to produce one output file
type AssemblySpec struct {
	Clips      []string        `json:"clips"`
	Audio      string          `json:"audio"`
	Transcript *Transcript     `json:"transcript"`
	OutputPath string          `json:"output_path"`
	Options    AssemblyOptions `json:"options"`
}

// Status field names, in ledger column order
const (
	FieldScriptStatus     = "script_status"
	FieldAudioURL         = "audio_url"
	FieldTranscriptStatus = "transcript_status"
	FieldImagesStatus     = "images_status"
	FieldClipsStatus      = "clips_status"
	FieldVideoStatus      = "video_status"
	FieldVideoURL         = "video_url"
	FieldPublishedURL     = "published_url"
	FieldCreationDate     = "creation_date"
	FieldNotes            = "notes"
	FieldState            = "state"
)

// StatusFields is the stable ordering of status fields after run_id
var StatusFields = []string{
	FieldScriptStatus,
	FieldAudioURL,
	FieldTranscriptStatus,
	FieldImagesStatus,
	FieldClipsStatus,
	FieldVideoStatus,
	FieldVideoURL,
	FieldPublishedURL,
	FieldCreationDate,
	FieldNotes,
	FieldState,
}

// StatusRecord is the flat status of one run as stored in the ledger
type StatusRecord struct {
	RunID  string            `json:"run_id"`
	Fields map[string]string `json:"fields"`
}

// NewStatusRecord returns an empty record for runID
func NewStatusRecord(runID string) StatusRecord {
	return StatusRecord{RunID: runID, Fields: make(map[string]string, len(StatusFields))}
}

// Get returns the value of a field or "" when unset
func (r StatusRecord) Get(field string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[field]
}

// Set assigns a field value
func (r *StatusRecord) Set(field, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(StatusFields))
	}
	r.Fields[field] = value
}

// Clone returns a deep copy safe to hand to another goroutine
func (r StatusRecord) Clone() StatusRecord {
	out := NewStatusRecord(r.RunID)
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// Row flattens the record into ledger column order, run_id first
func (r StatusRecord) Row() []string {
	row := make([]string, 0, len(StatusFields)+1)
	row = append(row, r.RunID)
	for _, f := range StatusFields {
		row = append(row, r.Get(f))
	}
	return row
}

// RecordFromRow is the inverse of Row. Short rows leave trailing fields empty.
func RecordFromRow(row []string) StatusRecord {
	if len(row) == 0 {
		return NewStatusRecord("")
	}
	rec := NewStatusRecord(row[0])
	for i, f := range StatusFields {
		if i+1 < len(row) && row[i+1] != "" {
			rec.Fields[f] = row[i+1]
		}
	}
	return rec
}

// Run is one attempt to produce and publish a video
type Run struct {
	RunID           string        `json:"run_id"`
	Topic           string        `json:"topic"`
	FormatType      string        `json:"format_type"`
	DurationMinutes int           `json:"duration_minutes"`
	State           string        `json:"state"`
	Status          StatusRecord  `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     time.Time     `json:"completed_at,omitempty"`
	Script          *ScriptResult `json:"script,omitempty"`
	AudioURL        string        `json:"audio_url,omitempty"`
	VideoURL        string        `json:"video_url,omitempty"`
	PublishedURL    string        `json:"published_url,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// VideoMetadata holds the publish metadata for the platform upload
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
}
