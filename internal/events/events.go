package events

import (
	"context"
	"time"

	"slotgate/internal/call"
)

// Notification names. The stream per proxy instance is append-only and
// ordered by invocation.
const (
	NameUpgraded       = "Upgraded"
	NameAdminChanged   = "AdminChanged"
	NameValueChanged   = "ValueChanged"
	NameMessageChanged = "MessageChanged"
)

// Event is one externally observable notification. Keep it transport-agnostic
// so recorders and brokers can fan out from the same value.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Proxy     string            `json:"proxy"`
	Name      string            `json:"name"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Upgraded records a backend reference change.
func Upgraded(newBackend call.Address) Event {
	return Event{Name: NameUpgraded, Attrs: map[string]string{
		"new_backend": newBackend.Hex(),
	}}
}

// AdminChanged records an administrator change.
func AdminChanged(oldAdmin, newAdmin call.Address) Event {
	return Event{Name: NameAdminChanged, Attrs: map[string]string{
		"old_admin": oldAdmin.Hex(),
		"new_admin": newAdmin.Hex(),
	}}
}

// ValueChanged records a counter module's resulting value.
func ValueChanged(newValue uint64) Event {
	return Event{Name: NameValueChanged, Attrs: map[string]string{
		"new_value": formatUint(newValue),
	}}
}

// MessageChanged records a counter module's resulting message.
func MessageChanged(newMessage string) Event {
	return Event{Name: NameMessageChanged, Attrs: map[string]string{
		"new_message": newMessage,
	}}
}

// Publisher receives the events of one committed invocation, in emission
// order. Publishing happens only after the invocation's writes are durable;
// a failed invocation publishes nothing.
type Publisher interface {
	Publish(ctx context.Context, batch []Event) error
}
