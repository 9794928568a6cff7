package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind tags the webhook payload variants the gateway can deliver.
type EventKind string

const (
	EventMessageSent    EventKind = "message_sent"
	EventMessageFailed  EventKind = "message_failed"
	EventDelivered      EventKind = "delivered"
	EventRead           EventKind = "read"
	EventReactionAdd    EventKind = "reaction_add"
	EventReactionRemove EventKind = "reaction_remove"
	EventMessageError   EventKind = "message_error"
)

// Event is the decoded form of one webhook payload. Exactly one concrete
// type exists per EventKind; payloads that fit no variant are rejected at
// decode time instead of being accessed defensively.
type Event interface {
	Kind() EventKind
}

// SendResultEvent reports the gateway-owned outcome of a send attempt.
type SendResultEvent struct {
	Sent      bool
	GroupJID  string
	MessageID string
	Error     string
	Timestamp *time.Time
}

func (e SendResultEvent) Kind() EventKind {
	if e.Sent {
		return EventMessageSent
	}
	return EventMessageFailed
}

// ReceiptEvent reports a delivered/read confirmation from one reader.
type ReceiptEvent struct {
	Receipt   ReceiptKind
	MessageID string
	Phone     string
	Timestamp *time.Time
}

func (e ReceiptEvent) Kind() EventKind { return EventKind(e.Receipt) }

// ReactionEvent reports an emoji reaction added or removed by one person.
type ReactionEvent struct {
	Add       bool
	MessageID string
	Phone     string
	Emoji     string
	Timestamp *time.Time
}

func (e ReactionEvent) Kind() EventKind {
	if e.Add {
		return EventReactionAdd
	}
	return EventReactionRemove
}

// MessageErrorEvent reports an asynchronous provider-side failure.
type MessageErrorEvent struct {
	MessageID    string
	ErrorCode    string
	ErrorMessage string
}

func (e MessageErrorEvent) Kind() EventKind { return EventMessageError }

type eventEnvelope struct {
	Event        string `json:"event"`
	GroupJID     string `json:"groupJid"`
	MessageID    string `json:"messageId"`
	ReaderPhone  string `json:"readerPhone"`
	ReactorPhone string `json:"reactorPhone"`
	Emoji        string `json:"emoji"`
	Error        string `json:"error"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Timestamp    *int64 `json:"timestamp"`
}

// ParseEvent decodes a webhook body into its tagged variant. Missing
// correlation fields and unknown event names are decode errors.
func ParseEvent(body []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	ts := envTime(env.Timestamp)

	switch EventKind(env.Event) {
	case EventMessageSent, EventMessageFailed:
		if env.GroupJID == "" {
			return nil, fmt.Errorf("%s: groupJid is required", env.Event)
		}
		return SendResultEvent{
			Sent:      EventKind(env.Event) == EventMessageSent,
			GroupJID:  env.GroupJID,
			MessageID: env.MessageID,
			Error:     env.Error,
			Timestamp: ts,
		}, nil

	case EventDelivered, EventRead:
		if env.MessageID == "" {
			return nil, fmt.Errorf("%s: messageId is required", env.Event)
		}
		if env.ReaderPhone == "" {
			return nil, fmt.Errorf("%s: readerPhone is required", env.Event)
		}
		return ReceiptEvent{
			Receipt:   ReceiptKind(env.Event),
			MessageID: env.MessageID,
			Phone:     NormalizePhone(env.ReaderPhone),
			Timestamp: ts,
		}, nil

	case EventReactionAdd, EventReactionRemove:
		if env.MessageID == "" {
			return nil, fmt.Errorf("%s: messageId is required", env.Event)
		}
		if env.ReactorPhone == "" {
			return nil, fmt.Errorf("%s: reactorPhone is required", env.Event)
		}
		add := EventKind(env.Event) == EventReactionAdd
		if add && env.Emoji == "" {
			return nil, fmt.Errorf("%s: emoji is required", env.Event)
		}
		return ReactionEvent{
			Add:       add,
			MessageID: env.MessageID,
			Phone:     NormalizePhone(env.ReactorPhone),
			Emoji:     env.Emoji,
			Timestamp: ts,
		}, nil

	case EventMessageError:
		if env.MessageID == "" {
			return nil, fmt.Errorf("%s: messageId is required", env.Event)
		}
		return MessageErrorEvent{
			MessageID:    env.MessageID,
			ErrorCode:    env.ErrorCode,
			ErrorMessage: env.ErrorMessage,
		}, nil
	}

	return nil, fmt.Errorf("unknown event kind %q", env.Event)
}

func envTime(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}

// NormalizePhone strips a WhatsApp JID domain suffix and spacing so the same
// reader always maps to the same receipt row.
func NormalizePhone(p string) string {
	if i := strings.IndexByte(p, '@'); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	var b strings.Builder
	for i, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
