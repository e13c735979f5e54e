package domain

import "time"

// Message is one raw message fetched from a source.
type Message struct {
	ID        int64
	Text      string
	Timestamp time.Time
}

// MessageEvent is a live delivery of a message on an account's stream.
type MessageEvent struct {
	SourceID    int64
	SourceTitle string
	Message     Message
}

// Listing is one candidate price line extracted from a message body.
// RegionMarker is the attached flag glyph sequence, empty if absent.
type Listing struct {
	RawName      string
	Price        int
	RegionMarker string
}

// Confidence grades a classification result.
type Confidence string

const (
	ConfidenceLow  Confidence = "low"
	ConfidenceHigh Confidence = "high"
)

// Classified is the structured identity derived from a raw listing name.
type Classified struct {
	Brand      string
	Lineup     string
	Model      string
	Region     string
	Confidence Confidence
}

// SourceContext carries provenance for one message being recorded.
type SourceContext struct {
	Account     string
	SourceID    int64
	SourceName  string
	MessageID   int64
	MessageDate time.Time
}
