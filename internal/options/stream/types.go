package stream

import (
	"encoding/json"
	"errors"

	"riskfeed/internal/options/memorystore"
)

// Outbound message types.
const (
	TypeSnapshot = "snapshot"
	TypeGreeks   = "greeks"
	TypePing     = "ping"
	TypeInfo     = "info"
	TypeError    = "error"
)

// Human-readable texts carried by info/error messages.
const (
	MsgSubscribedPending = "Subscribed - waiting for next update"
	MsgUnsubscribed      = "Unsubscribed successfully"
	MsgInvalidJSON       = "Invalid JSON format"
	MsgMissingFields     = "Missing symbol or expiry"
)

var ErrMalformed = errors.New("malformed client message")

// snapshotMessage flattens the snapshot next to its type tag:
// {"type":"snapshot","timestamp":...,"expiries":{...}}
type snapshotMessage struct {
	Type string `json:"type"`
	*memorystore.Snapshot
}

// greeksMessage flattens every Metrics field next to the type tag.
type greeksMessage struct {
	Type string `json:"type"`
	*memorystore.Metrics
}

type textMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func SnapshotMessage(s *memorystore.Snapshot) ([]byte, error) {
	return json.Marshal(snapshotMessage{Type: TypeSnapshot, Snapshot: s})
}

func GreeksMessage(m *memorystore.Metrics) ([]byte, error) {
	return json.Marshal(greeksMessage{Type: TypeGreeks, Metrics: m})
}

func PingMessage() []byte {
	data, _ := json.Marshal(textMessage{Type: TypePing})
	return data
}

func InfoMessage(msg string) []byte {
	data, _ := json.Marshal(textMessage{Type: TypeInfo, Message: msg})
	return data
}

func ErrorMessage(msg string) []byte {
	data, _ := json.Marshal(textMessage{Type: TypeError, Message: msg})
	return data
}

// RequestKind classifies an inbound client message.
type RequestKind int

const (
	KindUnknown RequestKind = iota
	KindSubscribe
	KindUnsubscribe
	KindPong
)

func (k RequestKind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Request is a parsed client control message.
//
//	{"subscribe": "NIFTY24000CE", "expiry": "2026-02-24"}
//	{"unsubscribe": true}
//	{"pong": true}
type Request struct {
	Kind   RequestKind
	Symbol string
	Expiry string
}

// ParseRequest decodes a client message. Anything that is not a JSON object
// yields ErrMalformed. Keys are checked in order subscribe, unsubscribe, pong.
func ParseRequest(data []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Request{}, ErrMalformed
	}

	if v, ok := raw["subscribe"]; ok {
		return Request{
			Kind:   KindSubscribe,
			Symbol: stringField(v),
			Expiry: stringField(raw["expiry"]),
		}, nil
	}
	if _, ok := raw["unsubscribe"]; ok {
		return Request{Kind: KindUnsubscribe}, nil
	}
	if _, ok := raw["pong"]; ok {
		return Request{Kind: KindPong}, nil
	}
	return Request{Kind: KindUnknown}, nil
}

// stringField returns the JSON string value, or "" for anything else.
func stringField(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
