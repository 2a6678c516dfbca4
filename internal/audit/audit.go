// Package audit writes structured audit events for the nearby-gossip
// core through a nil-safe slog wrapper: every method is safe to call on
// a nil *Logger, so a Service built without audit logging needs no nil
// checks at any call site.
package audit

import "log/slog"

// Logger writes structured audit events under the "audit" slog group.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger that writes to handler.
func New(handler slog.Handler) *Logger {
	return &Logger{logger: slog.New(handler).WithGroup("audit")}
}

// DocumentRotated logs a Ready-state rotation, by reason.
func (a *Logger) DocumentRotated(reason, author string) {
	if a == nil {
		return
	}
	a.logger.Info("document_rotated", "reason", reason, "author", author)
}

// ConnStateChanged logs a Connection-State Loop transition.
func (a *Logger) ConnStateChanged(state string, peers int) {
	if a == nil {
		return
	}
	a.logger.Info("connstate_changed", "state", state, "peers", peers)
}

// GroupLeft logs a leave_group call.
func (a *Logger) GroupLeft(author string) {
	if a == nil {
		return
	}
	a.logger.Info("group_left", "author", author)
}

// IdentitiesUpdated logs an Identity Domain change, by resulting distinct
// identity count.
func (a *Logger) IdentitiesUpdated(author string, distinctCount int) {
	if a == nil {
		return
	}
	a.logger.Info("identities_updated", "author", author, "distinct_count", distinctCount)
}
