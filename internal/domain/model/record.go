package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a record on the wire and in the durable queue.
type Kind string

const (
	KindDirect    Kind = "DIRECT"
	KindBroadcast Kind = "BROADCAST"
	KindStatus    Kind = "STATUS"
	KindAck       Kind = "ACK"
	KindHeartbeat Kind = "HEARTBEAT"
)

// known reports whether k is one of the five wire kinds.
func (k Kind) known() bool {
	switch k {
	case KindDirect, KindBroadcast, KindStatus, KindAck, KindHeartbeat:
		return true
	}
	return false
}

// Priority orders delivery during replay. Higher values flush first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// PriorityFromLevel maps a numeric wire level to a Priority.
// Unknown levels collapse to NORMAL, matching the tolerant parse rules.
func PriorityFromLevel(level int) Priority {
	switch Priority(level) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(level)
	}
	return PriorityNormal
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityHigh:
		return "HIGH"
	}
	return "NORMAL"
}

// Record is the unit of traffic and storage. Values are immutable once
// constructed; the zero To means the record is unaddressed (broadcast or a
// non-addressed kind).
type Record struct {
	ID        string
	Kind      Kind
	From      string
	To        string
	Timestamp int64 // milliseconds since epoch, at origination
	Body      string
	Priority  Priority

	// DeliveredAt is stamped (milliseconds) when the durable row transitions
	// to DELIVERED. Zero until then.
	DeliveredAt int64
}

// Routable reports whether the record is subject to store-and-forward
// routing. ACK, HEARTBEAT and STATUS are consumed by the session loop.
func (r Record) Routable() bool {
	return r.Kind == KindDirect || r.Kind == KindBroadcast
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// New builds a record with a fresh id and the current server time.
func New(kind Kind, from, to, body string, priority Priority) Record {
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		From:      from,
		To:        to,
		Timestamp: nowMillis(),
		Body:      body,
		Priority:  priority,
	}
}

// NewAck builds an acknowledgment; the body carries the id being acked.
func NewAck(from, ackedID string) Record {
	return New(KindAck, from, "", ackedID, PriorityNormal)
}

// NewHeartbeat builds a keep-alive with the conventional sentinel body.
func NewHeartbeat(from string) Record {
	return New(KindHeartbeat, from, "", "ping", PriorityNormal)
}
