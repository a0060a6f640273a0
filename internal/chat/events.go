package chat

import (
	"encoding/json"

	"github.com/agasthyaps/nisa-labs-sub000/internal/stream"
)

// Wire event types. TypeFinish lives in the stream package because the
// context treats it as the terminal marker.
const (
	TypeTextDelta  = "text-delta"
	TypeReasoning  = "reasoning"
	TypeToolCall   = "tool-call"
	TypeToolResult = "tool-result"
	TypeData       = "data"
	TypeError      = "error"
)

func textDelta(text string) stream.Event {
	data, _ := json.Marshal(map[string]string{"text": text})
	return stream.Event{Type: TypeTextDelta, Data: data}
}

func reasoningDelta(text string) stream.Event {
	data, _ := json.Marshal(map[string]string{"text": text})
	return stream.Event{Type: TypeReasoning, Data: data}
}

func toolCallEvent(id, name string, args json.RawMessage) stream.Event {
	data, _ := json.Marshal(map[string]any{"id": id, "name": name, "args": args})
	return stream.Event{Type: TypeToolCall, Data: data}
}

func toolResultEvent(id, name string, result json.RawMessage) stream.Event {
	data, _ := json.Marshal(map[string]any{"id": id, "name": name, "result": result})
	return stream.Event{Type: TypeToolResult, Data: data}
}

// dataEvent carries a typed out-of-band payload (token-usage, id, title,
// kind, clear, append-message).
func dataEvent(name string, payload any) stream.Event {
	data, _ := json.Marshal(map[string]any{"name": name, "payload": payload})
	return stream.Event{Type: TypeData, Data: data}
}

func errorEvent(message string) stream.Event {
	data, _ := json.Marshal(map[string]string{"message": message})
	return stream.Event{Type: TypeError, Data: data}
}

func finishEvent(usage any) stream.Event {
	if usage == nil {
		return stream.Terminal()
	}
	data, _ := json.Marshal(map[string]any{"usage": usage})
	return stream.Event{Type: stream.TypeFinish, Data: data}
}

// fallbackText is appended to a stream when generation fails after the
// response has committed to streaming.
const fallbackText = "I ran into a problem finishing that response. Please try again."
