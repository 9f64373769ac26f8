package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// EventType identifies what happened to a document's index entries
type EventType string

const (
	EventIngested     EventType = "document.ingested"
	EventIngestFailed EventType = "document.ingest_failed"
	EventDeleted      EventType = "document.deleted"
)

// IndexEvent is pushed to websocket subscribers when the index changes
type IndexEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	DocumentID int64     `json:"document_id"`
	Title      string    `json:"title,omitempty"`
	Chunks     int       `json:"chunks,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewIndexEvent stamps an event with a time-ordered KSUID
func NewIndexEvent(eventType EventType, documentID int64) IndexEvent {
	return IndexEvent{
		ID:         ksuid.New().String(),
		Type:       eventType,
		DocumentID: documentID,
		OccurredAt: time.Now().UTC(),
	}
}
