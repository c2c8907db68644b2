package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"timeline/internal/logging"
)

const queryTimeout = 5 * time.Second

// base carries what every gorm repository needs: the handle, a logger and the
// per-operation timeout.
type base struct {
	db     *gorm.DB
	logger logging.Logger
}

func newBase(db *gorm.DB, logger logging.Logger) base {
	if logger == nil {
		logger = logging.Discard{}
	}
	return base{db: db, logger: logger}
}

// withTransaction runs fn in one transaction bound to ctx.
func (b base) withTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.db.WithContext(ctx).Transaction(fn)
}

// logOperation records the outcome and duration of one repository call.
func (b base) logOperation(ctx context.Context, operation string, model interface{}, start time.Time, err error, extra map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"duration":  time.Since(start).String(),
		"model":     fmt.Sprintf("%T", model),
	}
	for k, v := range extra {
		fields[k] = v
	}
	if errors.Is(err, ErrNameTaken) {
		fields["error"] = err.Error()
		b.logger.Warn(ctx, "repository operation rejected", fields)
		return
	}
	if err != nil {
		fields["error"] = err.Error()
		b.logger.Error(ctx, "repository operation failed", fields)
		return
	}
	b.logger.Debug(ctx, "repository operation", fields)
}
