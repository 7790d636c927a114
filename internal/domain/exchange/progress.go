package exchange

import "conductor-chat/internal/domain/model"

// ProgressNotifier holds the single transient status line of a request.
// Set replaces the line, it never appends.
type ProgressNotifier struct {
	text   string
	active bool
	notify model.ProgressFunc
}

func NewProgressNotifier(notify model.ProgressFunc) *ProgressNotifier {
	return &ProgressNotifier{notify: notify}
}

func (p *ProgressNotifier) Set(text string) {
	if p.active && p.text == text {
		return
	}
	p.text, p.active = text, true
	p.emit(model.ProgressUpdate{Kind: model.ProgressSet, Text: text})
}

func (p *ProgressNotifier) Clear() {
	if !p.active {
		return
	}
	p.text, p.active = "", false
	p.emit(model.ProgressUpdate{Kind: model.ProgressCleared})
}

// Current returns the live progress line, if any.
func (p *ProgressNotifier) Current() (string, bool) { return p.text, p.active }

func (p *ProgressNotifier) emit(u model.ProgressUpdate) {
	if p.notify != nil {
		p.notify(u)
	}
}
