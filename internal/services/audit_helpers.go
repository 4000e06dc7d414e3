package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/auditctx"
	"github.com/charlesng35/formdesk/pkg/logger"
)

// recordAudit logs the supplied entry while tolerating audit failures. The
// request actor fills in the user and IP when the entry leaves them empty.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.UserID == nil && actor.UserID != "" {
			id := actor.UserID
			entry.UserID = &id
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.Warn("audit log failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
