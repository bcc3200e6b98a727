package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is one security-relevant occurrence
type AuditEvent struct {
	EventType     string
	UserID        string
	SessionID     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit records through slog
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt records login, refresh and MFA-login outcomes
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	al.write("auth", event)
}

// LogMFAEvent records enrollment changes
func (al *AuditLogger) LogMFAEvent(event AuditEvent) {
	al.write("mfa", event)
}

// LogAccountAction records registration, verification, password and session changes
func (al *AuditLogger) LogAccountAction(eventType, userID string, metadata map[string]string) {
	al.write("account", AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   true,
		Metadata:  metadata,
	})
}

func (al *AuditLogger) write(auditType string, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
