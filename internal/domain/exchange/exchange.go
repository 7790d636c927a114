package exchange

import (
	"conductor-chat/internal/domain/model"
	derror "conductor-chat/internal/error"
)

// Exchange is the per-request context threaded through dispatch. It owns the
// reducer snapshot, the streaming message and the progress line of exactly
// one job, and records the single terminal outcome.
type Exchange struct {
	jobID      string
	machine    Machine
	snap       Snapshot
	acc        Accumulator
	progress   *ProgressNotifier
	notify     model.ProgressFunc
	dispatched int

	final   *model.ChatMessage
	failure error
	side    []*model.ChatMessage
	closing bool
}

func New(jobID string, m Machine, notify model.ProgressFunc) *Exchange {
	return &Exchange{
		jobID:    jobID,
		machine:  m,
		progress: NewProgressNotifier(notify),
		notify:   notify,
	}
}

// Dispatch feeds one event through the reducer and applies its effects.
// It returns the effects so the caller can log Ignore entries.
func (x *Exchange) Dispatch(ev model.StreamEvent) []Effect {
	x.dispatched++
	next, effects := x.machine.Reduce(x.snap, ev)
	x.snap = next
	for _, e := range effects {
		x.apply(e)
	}
	return effects
}

func (x *Exchange) apply(e Effect) {
	switch e := e.(type) {
	case SetProgress:
		x.progress.Set(e.Text)
	case ClearProgress:
		x.progress.Clear()
	case AppendToken:
		// Reduce never emits AppendToken once terminated, so Append cannot fail here.
		if err := x.acc.Append(e.Chunk); err == nil {
			x.emit(model.ProgressUpdate{Kind: model.TokenAppended, Text: e.Chunk})
		}
	case EmitSideMessage:
		m := model.NewChatMessage(model.RoleSystem, e.Content).WithJob(x.jobID)
		x.side = append(x.side, m)
		x.emit(model.ProgressUpdate{Kind: model.SideMessage, Text: m.Content, Message: m})
	case Finalize:
		if msg, err := x.acc.Finalize(e.Fallback); err == nil {
			x.final = msg.WithJob(x.jobID)
		}
	case DiscardStream:
		x.acc.Discard()
	case Fail:
		x.final = model.NewFailureMessage(e.Content).WithJob(x.jobID)
		x.failure = &derror.ServerReportedError{JobID: x.jobID, Message: e.Message}
	case CloseStream:
		x.closing = true
	case Ignore:
	}
}

// Interrupt terminates the exchange after a stream failure. Text already
// streamed is kept in the returned failure message, followed by notice.
func (x *Exchange) Interrupt(notice string) *model.ChatMessage {
	if x.snap.State == Terminated {
		return x.final
	}
	x.snap.State = Terminated
	x.progress.Clear()

	partial := x.acc.Content()
	x.acc.Discard()

	content := notice
	if partial != "" {
		content = partial + "\n\n" + notice
	}
	msg := model.NewFailureMessage(content).WithJob(x.jobID)
	msg.Partial = partial != ""
	x.final = msg
	return msg
}

func (x *Exchange) emit(u model.ProgressUpdate) {
	if x.notify != nil {
		x.notify(u)
	}
}

func (x *Exchange) JobID() string { return x.jobID }

func (x *Exchange) State() State { return x.snap.State }

func (x *Exchange) Terminated() bool { return x.snap.State == Terminated }

// Dispatched is the number of events delivered so far, recognized or not.
func (x *Exchange) Dispatched() int { return x.dispatched }

// CloseRequested reports whether a terminal event asked for the stream to close.
func (x *Exchange) CloseRequested() bool { return x.closing }

// Partial is the streamed text accumulated so far.
func (x *Exchange) Partial() string { return x.acc.Content() }

// Progress exposes the live progress line.
func (x *Exchange) Progress() (string, bool) { return x.progress.Current() }

// TakeSideMessages returns and clears side-channel messages produced since the last call.
func (x *Exchange) TakeSideMessages() []*model.ChatMessage {
	out := x.side
	x.side = nil
	return out
}

// Outcome returns the final message and, for server-reported failures, the error.
// The message is nil until the exchange has terminated.
func (x *Exchange) Outcome() (*model.ChatMessage, error) {
	return x.final, x.failure
}
