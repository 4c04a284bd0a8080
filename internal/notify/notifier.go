package notify

import (
	"context"
	"log/slog"
	"time"
)

// Notifier relays core lifecycle events to the transport collaborator
// (the layer that actually delivers messages to end users). The core
// only emits; delivery, formatting, and retries belong to the collaborator.
type Notifier interface {
	MatchCreated(ctx context.Context, matchID, user1, user2 uint64)
	MatchEnded(ctx context.Context, matchID, endedBy uint64)
	QuotaExceeded(ctx context.Context, userID uint64)
	PremiumActivated(ctx context.Context, userID uint64, expiresAt time.Time)
	ReportFiled(ctx context.Context, reporterID, reportedID uint64, reason string)
}

// LogNotifier is the default collaborator: it writes each event to the
// structured log. Deployments swap in a real transport.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) MatchCreated(ctx context.Context, matchID, user1, user2 uint64) {
	n.Logger.Info("event match_created", "match_id", matchID, "user1", user1, "user2", user2)
}

func (n *LogNotifier) MatchEnded(ctx context.Context, matchID, endedBy uint64) {
	n.Logger.Info("event match_ended", "match_id", matchID, "ended_by", endedBy)
}

func (n *LogNotifier) QuotaExceeded(ctx context.Context, userID uint64) {
	n.Logger.Info("event quota_exceeded", "user_id", userID)
}

func (n *LogNotifier) PremiumActivated(ctx context.Context, userID uint64, expiresAt time.Time) {
	n.Logger.Info("event premium_activated", "user_id", userID, "expires_at", expiresAt)
}

func (n *LogNotifier) ReportFiled(ctx context.Context, reporterID, reportedID uint64, reason string) {
	n.Logger.Info("event report_filed", "reporter", reporterID, "reported", reportedID, "reason", reason)
}
