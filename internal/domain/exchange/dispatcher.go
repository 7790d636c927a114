// Package exchange holds the per-request state of one streamed chat exchange:
// the event reducer, the streaming message accumulator and the progress line.
//
// Reduce is pure. It maps (snapshot, event) to the next snapshot plus a list
// of effects; Exchange applies those effects to the request-scoped
// Accumulator and ProgressNotifier. Nothing here is shared across requests.
package exchange

import (
	"unicode/utf8"

	"conductor-chat/internal/domain/model"
)

type State int

const (
	Idle State = iota
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// toolOutputPreview is the number of runes of tool output shown in side messages.
const toolOutputPreview = 100

// Effect is the closed set of side effects produced by Reduce.
type Effect interface{ effect() }

type (
	SetProgress struct{ Text string }
	ClearProgress struct{}
	AppendToken struct{ Chunk string }
	EmitSideMessage struct{ Content string }
	// Finalize closes the streaming message. Accumulated content wins when
	// non-empty, otherwise Fallback becomes the message content.
	Finalize struct{ Fallback string }
	Fail struct {
		Message string // verbatim server text
		Content string // rendered failure message
	}
	DiscardStream struct{}
	CloseStream struct{}
	// Ignore marks an unrecognized kind; it is logged and has no other effect.
	Ignore struct{ Kind model.EventKind }
)

func (SetProgress) effect()     {}
func (ClearProgress) effect()   {}
func (AppendToken) effect()     {}
func (EmitSideMessage) effect() {}
func (Finalize) effect()        {}
func (Fail) effect()            {}
func (DiscardStream) effect()   {}
func (CloseStream) effect()     {}
func (Ignore) effect()          {}

// Snapshot is the reducer state. Tokens counts appended chunks.
type Snapshot struct {
	State  State
	Tokens int
}

type Machine struct {
	Texts Catalog
}

func NewMachine(texts Catalog) Machine { return Machine{Texts: texts} }

// Reduce classifies ev and returns the next snapshot and the effects to apply.
// Once Terminated, every event is a no-op.
func (m Machine) Reduce(s Snapshot, ev model.StreamEvent) (Snapshot, []Effect) {
	if s.State == Terminated {
		return s, nil
	}

	switch ev.Kind {
	case model.EventJobStarted:
		return s, []Effect{SetProgress{Text: m.Texts.T(KeyProgressStarting)}}

	case model.EventStatusUpdate:
		msg := ev.StatusMessage()
		if msg == "" {
			return s, nil
		}
		return s, []Effect{SetProgress{Text: msg}}

	case model.EventLLMStart:
		return s, []Effect{SetProgress{Text: m.Texts.T(KeyProgressAnalyzing)}}

	case model.EventLLMNewToken:
		chunk := ev.Chunk()
		if chunk == "" {
			return s, nil
		}
		s.State = Streaming
		s.Tokens++
		return s, []Effect{AppendToken{Chunk: chunk}}

	case model.EventToolStart:
		name := ev.ToolName()
		if name == "" {
			return s, nil
		}
		return s, []Effect{SetProgress{Text: m.Texts.T(KeyProgressTool, name)}}

	case model.EventToolEnd:
		out := ev.ToolOutput()
		if out == "" {
			return s, nil
		}
		return s, []Effect{EmitSideMessage{Content: m.Texts.T(KeyToolFinished, preview(out, toolOutputPreview))}}

	case model.EventResult:
		fallback := ev.ResultText()
		if fallback == "" {
			fallback = m.Texts.T(KeyStreamCompleted)
		}
		s.State = Terminated
		return s, []Effect{ClearProgress{}, Finalize{Fallback: fallback}, CloseStream{}}

	case model.EventError:
		msg := ev.ErrorText()
		if msg == "" {
			msg = string(model.EventError)
		}
		s.State = Terminated
		return s, []Effect{
			ClearProgress{},
			DiscardStream{},
			Fail{Message: msg, Content: m.Texts.T(KeyErrorPrefix, msg)},
			CloseStream{},
		}

	case model.EventEndOfStream:
		s.State = Terminated
		return s, []Effect{ClearProgress{}, Finalize{Fallback: m.Texts.T(KeyStreamCompleted)}, CloseStream{}}

	default:
		return s, []Effect{Ignore{Kind: ev.Kind}}
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
