package authsession

import (
	"context"
	"errors"
	"io"

	"github.com/MrEthical07/authsession/client"
	"github.com/MrEthical07/authsession/internal/audit"
)

// Audit event types emitted by the Manager.
const (
	AuditLoginSuccess    = "login_success"
	AuditLoginFailure    = "login_failure"
	AuditLoginSuperseded = "login_superseded"
	AuditRegisterSuccess = "register_success"
	AuditRegisterFailure = "register_failure"
	AuditLogout          = "logout"
	AuditAutoLogout      = "auto_logout"
	AuditRestoreSuccess  = "restore_success"
	AuditRestoreExpired  = "restore_expired"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// SinkFunc adapts a function to AuditSink.
type SinkFunc = audit.SinkFunc

// MultiSink delivers every event to each of its sinks in order.
type MultiSink = audit.MultiSink

// ChannelSink buffers events on a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func (m *Manager) emitAudit(ctx context.Context, eventType string, rec *Record, version uint64, err error) {
	if m == nil || m.audit == nil {
		return
	}
	ev := AuditEvent{
		EventType: eventType,
		Version:   version,
		Success:   err == nil,
	}
	if rec != nil {
		ev.UserID = rec.User.ID
		ev.Email = rec.User.Email
		if exp, ok := m.inspector.ExpirationOf(rec.AccessToken); ok {
			ev.ExpiresAt = &exp
		}
	}
	if err != nil {
		ev.Error = err.Error()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			ev.StatusCode = apiErr.StatusCode
			ev.RequestID = apiErr.RequestID
		}
	}
	m.audit.Emit(context.WithoutCancel(ctx), ev)
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}
