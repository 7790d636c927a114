package http

import (
	"encoding/json"
	"strings"
	"time"

	"conductor-chat/internal/domain/model"
)

// Trigger words a client can put in its message to steer the scripted job.
const (
	triggerTool  = "#tool"
	triggerError = "#error"
	triggerDrop  = "#drop"
)

// frame is one scripted step. A drop frame aborts the connection mid-stream.
type frame struct {
	event model.StreamEvent
	drop  bool
}

type script struct {
	answer string
	failed string
	frames []frame
}

func payload(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// buildScript turns the request text into the sequence of events a real
// gateway would emit for it.
func buildScript(jobID, text string, now time.Time) script {
	words := strings.Fields(text)
	var (
		tool, fail, drop bool
		kept             []string
	)
	for _, w := range words {
		switch strings.ToLower(w) {
		case triggerTool:
			tool = true
		case triggerError:
			fail = true
		case triggerDrop:
			drop = true
		default:
			kept = append(kept, w)
		}
	}

	ts := payload(now.UTC().Format(time.RFC3339Nano))
	ev := func(kind model.EventKind, data any) frame {
		f := frame{event: model.StreamEvent{Kind: kind, JobID: jobID, Timestamp: ts}}
		if data != nil {
			f.event.Data = payload(data)
		}
		return f
	}

	s := script{answer: "Você disse: " + strings.Join(kept, " ")}
	s.frames = append(s.frames,
		ev(model.EventJobStarted, map[string]string{"job_id": jobID}),
		ev(model.EventStatusUpdate, map[string]string{"message": "Processando sua solicitação..."}),
	)
	if fail {
		s.failed = "simulated agent failure"
		s.frames = append(s.frames, ev(model.EventError, map[string]string{"error": s.failed}))
		return s
	}

	if tool {
		s.frames = append(s.frames,
			ev(model.EventToolStart, map[string]any{"tool": map[string]string{"name": "echo"}}),
			ev(model.EventToolEnd, map[string]any{"output": map[string]int{"words": len(kept)}}),
		)
	}
	s.frames = append(s.frames, ev(model.EventLLMStart, nil))

	tokens := tokenize(s.answer)
	for i, tok := range tokens {
		if drop && i == len(tokens)/2 {
			s.frames = append(s.frames, frame{drop: true})
			return s
		}
		s.frames = append(s.frames, ev(model.EventLLMNewToken, map[string]string{"chunk": tok}))
	}
	s.frames = append(s.frames,
		ev(model.EventResult, map[string]string{"result": s.answer}),
		ev(model.EventEndOfStream, nil),
	)
	return s
}

// tokenize splits text into word chunks that concatenate back to text.
func tokenize(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' && i > start {
			out = append(out, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
