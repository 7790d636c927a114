package model

type ProgressKind string

const (
	ProgressSet     ProgressKind = "progress_set"
	ProgressCleared ProgressKind = "progress_cleared"
	TokenAppended   ProgressKind = "token_appended"
	SideMessage     ProgressKind = "side_message"
)

// ProgressUpdate is what the caller's progress callback observes while a
// request is in flight. Text carries the progress line or the token chunk;
// Message is set for side-channel messages.
type ProgressUpdate struct {
	Kind    ProgressKind
	Text    string
	Message *ChatMessage
}

type ProgressFunc func(ProgressUpdate)
