package main

import (
	"fmt"
	"io"
	"strings"

	"conductor-chat/internal/domain/model"
)

// printer renders one exchange to a terminal: progress lines while waiting,
// tokens inline as they arrive, side messages on their own line.
type printer struct {
	out      io.Writer
	streamed strings.Builder
	progress bool
}

func newPrinter(out io.Writer) *printer { return &printer{out: out} }

func (p *printer) Update(u model.ProgressUpdate) {
	switch u.Kind {
	case model.ProgressSet:
		if p.streamed.Len() > 0 {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintf(p.out, "  %s\n", u.Text)
		p.progress = true
	case model.ProgressCleared:
		p.progress = false
	case model.TokenAppended:
		fmt.Fprint(p.out, u.Text)
		p.streamed.WriteString(u.Text)
	case model.SideMessage:
		if u.Message != nil {
			fmt.Fprintf(p.out, "  %s\n", u.Message.Content)
		}
	}
}

// Finish prints whatever part of the final message was not streamed.
func (p *printer) Finish(msg *model.ChatMessage) {
	if msg == nil {
		return
	}
	streamed := p.streamed.String()
	if streamed == "" || !strings.HasPrefix(msg.Content, streamed) {
		if streamed != "" {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintln(p.out, msg.Content)
		return
	}
	fmt.Fprintln(p.out, strings.TrimPrefix(msg.Content, streamed))
}

func formatHistoryLine(m *model.ChatMessage) string {
	who := "🤖"
	switch m.Role {
	case model.RoleUser:
		who = "🧑"
	case model.RoleSystem:
		who = "⚙️"
	}
	return fmt.Sprintf("[%s] %s %s", m.Timestamp.Format("15:04:05"), who, m.Content)
}
