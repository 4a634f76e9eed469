// Package webhook turns inbound webhook bodies from the messaging platform
// into canonical direct-message events.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"dm-relay/internal/domain"
)

// ErrMalformedPayload is returned when the body is not a JSON object.
var ErrMalformedPayload = errors.New("webhook: malformed payload")

// Normalize decodes a webhook body and extracts every recognizable
// {sender, text} pair. Entries that match no known shape are skipped.
func Normalize(body []byte) ([]domain.InboundEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	// Platform ids exceed float64 precision.
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedPayload)
	}
	return NormalizeValue(payload)
}

// NormalizeValue is Normalize for an already decoded JSON tree.
func NormalizeValue(payload any) ([]domain.InboundEvent, error) {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrMalformedPayload, payload)
	}

	events := []domain.InboundEvent{}
	for _, entry := range objects(root["entry"]) {
		for _, m := range objects(entry["messaging"]) {
			if ev, ok := fromMessaging(m); ok {
				events = append(events, ev)
			}
		}
		for _, c := range objects(entry["changes"]) {
			events = append(events, fromChange(c)...)
		}
	}
	return events, nil
}

// fromMessaging handles {"sender":{"id"},"message":{"text"}}.
func fromMessaging(m map[string]any) (domain.InboundEvent, bool) {
	msg := object(m["message"])
	if msg == nil || truthy(msg["is_echo"]) {
		return domain.InboundEvent{}, false
	}
	return event(idOf(m["sender"]), scalar(msg["text"]))
}

// fromChange handles both {"value":{"from","message":{"text"}}} and
// {"value":{"messages":[{"from","text":{"body"}}]}}.
func fromChange(c map[string]any) []domain.InboundEvent {
	value := object(c["value"])
	if value == nil {
		return nil
	}

	var out []domain.InboundEvent
	if msg := object(value["message"]); msg != nil {
		if ev, ok := event(idOf(value["from"]), scalar(msg["text"])); ok {
			out = append(out, ev)
		}
	}
	for _, m := range objects(value["messages"]) {
		if ev, ok := event(idOf(m["from"]), scalar(object(m["text"])["body"])); ok {
			out = append(out, ev)
		}
	}
	return out
}

func event(senderID, text string) (domain.InboundEvent, bool) {
	senderID = strings.TrimSpace(senderID)
	text = strings.TrimSpace(text)
	if senderID == "" || text == "" {
		return domain.InboundEvent{}, false
	}
	return domain.InboundEvent{SenderID: senderID, Text: text}, true
}

// idOf accepts either a bare id or an object carrying "id".
func idOf(v any) string {
	if obj := object(v); obj != nil {
		return scalar(obj["id"])
	}
	return scalar(v)
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func objects(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m := object(item); m != nil {
			out = append(out, m)
		}
	}
	return out
}
