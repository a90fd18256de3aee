// Package podcast defines the core data types flowing through the podcastd pipeline.
package podcast

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	// StatusPending means the job is registered but has not started executing.
	StatusPending Status = "pending"

	// StatusRunning means the pipeline is executing.
	StatusRunning Status = "running"

	// StatusCompleted means the artifact was produced and the result recorded.
	StatusCompleted Status = "completed"

	// StatusFailed means a stage failed; Snapshot.Error holds the reason.
	StatusFailed Status = "failed"
)

// Active reports whether the job still blocks admission of a new job for its client.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Terminal reports whether the job has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Speaker is one entry of the speaker roster submitted with a job.
// The roster index is the speaker_id the LLM refers to in the script.
type Speaker struct {
	// Code is the vendor voice code bound to this speaker.
	Code string `json:"code"`

	// Role is an optional description used in the script prompt (e.g. "host", "guest expert").
	Role string `json:"role,omitempty"`
}

// VoiceBinding maps a speaker to a vendor voice and its per-voice adjustments.
type VoiceBinding struct {
	Code string

	// VolumeAdjustment is added to the clip gain, in dB.
	VolumeAdjustment float64

	// SpeedAdjustment is a playback rate change in percent (10 means 10% faster).
	SpeedAdjustment float64
}

// DialogueLine is a single attributed utterance of the script.
type DialogueLine struct {
	SpeakerID int    `json:"speaker_id"`
	Dialog    string `json:"dialog"`
}

// Script is the ordered dialogue produced by the script generation step.
type Script struct {
	Lines []DialogueLine `json:"dialogue_lines"`
}

// Result holds everything a completed job produced.
type Result struct {
	// ArtifactName is the file name of the merged audio in the artifact store.
	ArtifactName string

	Overview string
	Title    string
	Tags     string
	Script   Script

	// Duration is the merged audio length.
	Duration time.Duration
}

// Snapshot is a copy of a job's state as returned to API clients and callbacks.
type Snapshot struct {
	TaskID       string    `json:"task_id"`
	Status       Status    `json:"status"`
	PodUsers     []Speaker `json:"podUsers"`
	ArtifactName string    `json:"output_audio_filepath,omitempty"`
	Overview     string    `json:"overview_content,omitempty"`
	Script       *Script   `json:"podcast_script,omitempty"`
	AvatarBase64 string    `json:"avatar_base64,omitempty"`
	Duration     string    `json:"audio_duration,omitempty"`
	Title        string    `json:"title,omitempty"`
	Tags         string    `json:"tags,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    int64     `json:"timestamp"`
}

// FormatDuration renders d as MM:SS, truncating fractional seconds.
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
