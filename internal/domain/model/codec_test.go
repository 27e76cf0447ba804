package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalKeyOrder(t *testing.T) {
	rec := Record{
		ID:        "m-1",
		Kind:      KindDirect,
		From:      "medic-7",
		To:        "base",
		Timestamp: 1700000000000,
		Body:      "need supplies",
		Priority:  PriorityHigh,
	}
	line := string(Marshal(rec))

	assert.Equal(t,
		`{"id":"m-1","type":"DIRECT","from":"medic-7","to":"base","timestamp":1700000000000,"body":"need supplies","priority":2}`,
		line)
}

func TestMarshalUnaddressedEmitsNullToken(t *testing.T) {
	rec := New(KindBroadcast, "base", "", "all clear", PriorityNormal)
	line := string(Marshal(rec))

	assert.Contains(t, line, `"to":"null"`)
	assert.NotContains(t, line, `"to":null`)
}

func TestMarshalDeliveredTimestampOnlyWhenStamped(t *testing.T) {
	rec := New(KindDirect, "a", "b", "x", PriorityNormal)
	assert.NotContains(t, string(Marshal(rec)), "deliveredTimestamp")

	rec.DeliveredAt = 1700000000123
	assert.Contains(t, string(Marshal(rec)), `"deliveredTimestamp":1700000000123`)
}

func TestUnmarshalRoundTrip(t *testing.T) {
	in := Record{
		ID:        "m-2",
		Kind:      KindDirect,
		From:      "medic-7",
		To:        "base",
		Timestamp: 42,
		Body:      `quotes " and \ backslashes, плюс non-ASCII`,
		Priority:  PriorityLow,
	}
	out, err := Unmarshal(Marshal(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalFillsDefaults(t *testing.T) {
	out, err := Unmarshal([]byte(`{"type":"DIRECT","from":"medic-7","to":"base","body":"hi"}`))
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.NotZero(t, out.Timestamp)
	assert.Equal(t, PriorityNormal, out.Priority)
}

func TestUnmarshalAcceptsJSONNullTo(t *testing.T) {
	out, err := Unmarshal([]byte(`{"type":"BROADCAST","from":"base","to":null,"body":"hi"}`))
	require.NoError(t, err)
	assert.Empty(t, out.To)

	out, err = Unmarshal([]byte(`{"type":"BROADCAST","from":"base","to":"null","body":"hi"}`))
	require.NoError(t, err)
	assert.Empty(t, out.To)
}

func TestUnmarshalRejections(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"type":"DIRECT"`,
		"unknown type":  `{"type":"SHOUT","from":"a","body":"x"}`,
		"missing from":  `{"type":"DIRECT","body":"x"}`,
		"missing body":  `{"type":"DIRECT","from":"a"}`,
		"empty payload": ``,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(line))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalClampsUnknownPriority(t *testing.T) {
	out, err := Unmarshal([]byte(`{"type":"DIRECT","from":"a","body":"x","priority":9}`))
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, out.Priority)
}

func TestMarshalSingleLine(t *testing.T) {
	rec := New(KindDirect, "a", "b", "line one\nline two", PriorityNormal)
	line := string(Marshal(rec))
	assert.False(t, strings.ContainsRune(line, '\n'))
}

func TestErrorFrame(t *testing.T) {
	var parsed struct {
		Type string `json:"type"`
		Body string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(ErrorFrame("ID_TAKEN"), &parsed))
	assert.Equal(t, "ERROR", parsed.Type)
	assert.Equal(t, "ID_TAKEN", parsed.Body)
}

func TestPriorityStrings(t *testing.T) {
	assert.Equal(t, "LOW", PriorityLow.String())
	assert.Equal(t, "NORMAL", PriorityNormal.String())
	assert.Equal(t, "HIGH", PriorityHigh.String())
	assert.Equal(t, PriorityNormal, PriorityFromLevel(7))
}

func TestRoutable(t *testing.T) {
	assert.True(t, New(KindDirect, "a", "b", "x", PriorityNormal).Routable())
	assert.True(t, New(KindBroadcast, "a", "", "x", PriorityNormal).Routable())
	assert.False(t, NewAck("a", "m-1").Routable())
	assert.False(t, NewHeartbeat("a").Routable())
}
