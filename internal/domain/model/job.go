package model

import (
	"strings"
	"time"
)

// TextEntry is a single block of user text inside a job request.
type TextEntry struct {
	UID     string `json:"uid"`
	Content string `json:"content"`
}

// JobRequest is the body posted to both the streaming and the direct endpoint.
// Timestamps are epoch milliseconds.
type JobRequest struct {
	UID         string      `json:"uid"`
	Title       string      `json:"title"`
	TextEntries []TextEntry `json:"textEntries"`
	TargetType  string      `json:"targetType"`
	IsTemplate  bool        `json:"isTemplate"`
	CreatedAt   int64       `json:"createdAt"`
	UpdatedAt   int64       `json:"updatedAt"`
}

func NewJobRequest(uid, title, text, targetType string, now time.Time) JobRequest {
	ms := now.UnixMilli()
	return JobRequest{
		UID:         uid,
		Title:       title,
		TextEntries: []TextEntry{{UID: "1", Content: text}},
		TargetType:  targetType,
		IsTemplate:  false,
		CreatedAt:   ms,
		UpdatedAt:   ms,
	}
}

// Text returns the concatenated content of all entries.
func (r JobRequest) Text() string {
	parts := make([]string, 0, len(r.TextEntries))
	for _, e := range r.TextEntries {
		parts = append(parts, e.Content)
	}
	return strings.Join(parts, "\n")
}

// JobHandle identifies a streaming job and where its events are published.
type JobHandle struct {
	JobID     string
	StreamURL string
	RequestID string
}

// SyncResult is the decoded body of the direct (non-streaming) endpoint.
// Each field is display text; non-string JSON values are kept as compact JSON.
type SyncResult struct {
	JobID    string
	Message  string
	Response string
	Error    string
	Result   string
}
