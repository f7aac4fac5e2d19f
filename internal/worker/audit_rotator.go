package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/dhkalign/gateway/internal/audit"
)

const auditRotateCheckInterval = time.Minute

// AuditRotator periodically checks the audit log's size and rotates it
// once it reaches maxBytes, so the active file never grows unbounded.
type AuditRotator struct {
	writer   *audit.Writer
	maxBytes int64
}

// NewAuditRotator creates a worker that rotates w once it reaches maxBytes.
func NewAuditRotator(w *audit.Writer, maxBytes int64) *AuditRotator {
	return &AuditRotator{writer: w, maxBytes: maxBytes}
}

// Name returns the worker identifier.
func (w *AuditRotator) Name() string { return "audit_rotator" }

// Run checks and rotates the audit log on a fixed schedule until ctx is cancelled.
func (w *AuditRotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(auditRotateCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rotated, err := w.writer.RotateIfLarger(w.maxBytes)
			if err != nil {
				slog.LogAttrs(ctx, slog.LevelError, "audit rotation failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if rotated {
				slog.Info("audit log rotated")
			}
		}
	}
}
