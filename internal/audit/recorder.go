// Package audit wraps background and operator actions so each run yields
// exactly one audit entry.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"subline/internal/authz"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/topic"
)

// Sink persists audit entries.
type Sink interface {
	RecordAudit(ctx context.Context, entry topic.AuditEntry) error
}

// Recorder executes actions and records their outcome.
type Recorder struct {
	sink           Sink
	logger         *slog.Logger
	logOnlyOnError bool
	now            func() time.Time
}

// NewRecorder builds a Recorder. A nil sink records to the logger only.
func NewRecorder(sink Sink, logger *slog.Logger, logOnlyOnError bool) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		sink:           sink,
		logger:         logging.NewComponentLogger(logger, "audit"),
		logOnlyOnError: logOnlyOnError,
		now:            time.Now,
	}
}

// Run executes body and records one entry for it. A panic in body is
// recovered and reported as an error. Successful runs are not recorded when
// the recorder is log-only-on-error.
func (r *Recorder) Run(ctx context.Context, action string, body func(context.Context) error) (err error) {
	entry := topic.AuditEntry{
		ID:      uuid.NewString(),
		Action:  strings.TrimSpace(action),
		Started: r.now(),
	}
	if id, ok := services.TopicIDFromContext(ctx); ok {
		entry.TopicID = id
	}
	if principal, ok := authz.PrincipalFromContext(ctx); ok {
		entry.Principal = principal.Name
	}
	ctx = services.WithAction(ctx, entry.Action)

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s panicked: %v", entry.Action, recovered)
			r.logger.Error("recovered panic",
				logging.String(logging.FieldAction, entry.Action),
				logging.String("stack", string(debug.Stack())),
			)
		}
		entry.Duration = r.now().Sub(entry.Started)
		entry.Success = err == nil
		if err != nil {
			entry.Error = err.Error()
		}
		r.record(ctx, entry, err)
	}()

	return body(ctx)
}

func (r *Recorder) record(ctx context.Context, entry topic.AuditEntry, runErr error) {
	logger := logging.WithContext(ctx, r.logger)
	if entry.Success {
		if r.logOnlyOnError {
			return
		}
		logger.Info("action succeeded",
			logging.String("audit_id", entry.ID),
			logging.Duration("duration", entry.Duration),
			logging.String(logging.FieldEventType, "audit_success"),
		)
	} else {
		details := services.Details(runErr)
		logging.ErrorWithContext(logger, "action failed", "audit_failure",
			logging.String("audit_id", entry.ID),
			logging.Duration("duration", entry.Duration),
			logging.String("error_kind", details.Kind),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Error(runErr),
		)
	}
	if r.sink == nil {
		return
	}
	// The run's ctx may already be canceled; the entry is still owed.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.sink.RecordAudit(sinkCtx, entry); err != nil {
		logger.Warn("audit entry not persisted", logging.Error(err))
	}
}
