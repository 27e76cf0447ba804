package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// wireRecord is the flat line encoding shared by every client-facing
// channel. Field order here fixes the key order in serialized output.
type wireRecord struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	From               string  `json:"from"`
	To                 *string `json:"to"`
	Timestamp          *int64  `json:"timestamp"`
	Body               *string `json:"body"`
	Priority           *int    `json:"priority"`
	DeliveredTimestamp int64   `json:"deliveredTimestamp,omitempty"`
}

// wireAbsent is the token carried in `to` for unaddressed records. The
// reference dashboard and both client generations expect the quoted form,
// not a JSON null.
const wireAbsent = "null"

// Marshal encodes r as a single line without a trailing newline. The body
// is escaped by the JSON encoder; records never contain literal newlines.
func Marshal(r Record) []byte {
	to := r.To
	if to == "" {
		to = wireAbsent
	}
	ts := r.Timestamp
	body := r.Body
	level := int(r.Priority)
	w := wireRecord{
		ID:                 r.ID,
		Type:               string(r.Kind),
		From:               r.From,
		To:                 &to,
		Timestamp:          &ts,
		Body:               &body,
		Priority:           &level,
		DeliveredTimestamp: r.DeliveredAt,
	}
	// Marshaling a flat struct of strings and ints cannot fail.
	data, _ := json.Marshal(w)
	return data
}

// Unmarshal parses one wire line tolerantly. type, from and body are
// required; a missing id, timestamp or priority is filled with a fresh id,
// the current server time and NORMAL. Unknown fields are ignored. Any
// failure yields an error and the caller discards the line.
func Unmarshal(line []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, fmt.Errorf("malformed record: %w", err)
	}

	kind := Kind(w.Type)
	if !kind.known() {
		return Record{}, fmt.Errorf("unknown record type %q", w.Type)
	}
	if w.From == "" {
		return Record{}, fmt.Errorf("record missing from")
	}
	if w.Body == nil {
		return Record{}, fmt.Errorf("record missing body")
	}

	r := Record{
		ID:          w.ID,
		Kind:        kind,
		From:        w.From,
		Body:        *w.Body,
		Priority:    PriorityNormal,
		DeliveredAt: w.DeliveredTimestamp,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if w.Timestamp != nil {
		r.Timestamp = *w.Timestamp
	} else {
		r.Timestamp = nowMillis()
	}
	if w.Priority != nil {
		r.Priority = PriorityFromLevel(*w.Priority)
	}
	if w.To != nil && *w.To != wireAbsent {
		r.To = *w.To
	}
	return r, nil
}

// ErrorFrame builds the single-line error record sent before closing a
// rejected session, e.g. {"type":"ERROR","body":"ID_TAKEN"}.
func ErrorFrame(body string) []byte {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		Body string `json:"body"`
	}{Type: "ERROR", Body: body})
	return data
}
