package registry

import (
	"time"

	"github.com/helphub/relay-service/internal/domain/model"
)

// Transport tags the personality a session arrived on. The string values
// are part of the admin control-plane contract.
type Transport string

const (
	TransportFramed Transport = "TCP"
	TransportPush   Transport = "Web"
)

// Session is a live connection bound to one identity. Implementations own
// their transport and their outbound sink; the registry and router only
// publish to the sink and must tolerate a send failing after the session
// died.
type Session interface {
	Identity() string
	Transport() Transport

	// Send enqueues one record on the session's single-writer sink.
	// Best effort: an error means the session is dead or saturated.
	Send(rec model.Record) error

	// LastActivity is the time of the last inbound line or frame.
	LastActivity() time.Time

	// Touch refreshes LastActivity to now. Never moves it backwards.
	Touch()

	// Close terminates the underlying transport. Safe to call more than
	// once; cleanup side effects run only on the first call.
	Close() error
}
