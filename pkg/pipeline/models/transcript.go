// Package models defines the value types that flow through the transcript
// processing pipeline: Transcript, Entity, Page, DatabaseSchema, and the
// result/job types returned to callers.
package models

import "time"

// SourceTag identifies where a transcript originated. The set is open —
// "other" is the catch-all for sources not yet named here.
type SourceTag string

// Recognized source tags.
const (
	SourceVoiceMemo            SourceTag = "voice_memo"
	SourceVideoTranscript      SourceTag = "video_transcript"
	SourcePersonalNote         SourceTag = "personal_note"
	SourceExternalSubscription SourceTag = "external_subscription"
	SourceGoogleMeet           SourceTag = "google_meet"
	SourceOther                SourceTag = "other"
)

// Valid reports whether tag is one of the recognized source tags, or empty
// (source is optional).
func (t SourceTag) Valid() bool {
	switch t {
	case "", SourceVoiceMemo, SourceVideoTranscript, SourcePersonalNote,
		SourceExternalSubscription, SourceGoogleMeet, SourceOther:
		return true
	default:
		return false
	}
}

// Transcript is a single free-form textual unit submitted for processing.
// It is immutable once processing begins — the core never mutates a
// Transcript after Process is called.
type Transcript struct {
	ID        string
	Title     string
	Body      string
	Timestamp time.Time
	Source    SourceTag
	Metadata  map[string]any
}
