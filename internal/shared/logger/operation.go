package logger

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
)

// Operation logs operation lifecycle (start/complete/fail)
type Operation struct {
	logger    *Logger
	ctx       context.Context
	name      string
	StartTime time.Time
	attrs     []any
}

// StartOp begins tracking an operation. The start line is logged at debug
// level; completion and failure carry the duration.
func (l *Logger) StartOp(ctx context.Context, name string, args ...any) *Operation {
	op := &Operation{
		logger:    l,
		ctx:       WithOperation(ctx, name),
		name:      name,
		StartTime: time.Now(),
		attrs:     args,
	}

	l.WithContext(op.ctx).Debug("operation started", args...)
	return op
}

// Context returns the operation-scoped context
func (op *Operation) Context() context.Context {
	return op.ctx
}

// With adds attributes to the operation
func (op *Operation) With(args ...any) *Operation {
	op.attrs = append(op.attrs, args...)
	return op
}

// Complete logs successful operation completion
func (op *Operation) Complete(msg string, args ...any) {
	attrs := append([]any{slog.Duration("duration_ms", time.Since(op.StartTime))}, op.attrs...)
	attrs = append(attrs, args...)

	if msg == "" {
		msg = "operation completed"
	}
	op.logger.WithContext(op.ctx).Info(msg, attrs...)
}

// Fail logs a failed operation. Caller-side failures (validation, capacity,
// not found, state) are logged at warn; everything else at error.
func (op *Operation) Fail(err error, msg string, args ...any) {
	attrs := append([]any{slog.Duration("duration_ms", time.Since(op.StartTime))}, op.attrs...)
	attrs = append(attrs, args...)

	if msg == "" {
		msg = "operation failed"
	}

	if isCallerError(err) {
		op.logger.WarnCtx(op.ctx, msg, err, attrs...)
		return
	}
	op.logger.ErrorCtx(op.ctx, msg, err, attrs...)
}

// Progress logs operation progress (debug level)
func (op *Operation) Progress(msg string, args ...any) {
	attrs := append([]any{slog.Duration("elapsed_ms", time.Since(op.StartTime))}, op.attrs...)
	attrs = append(attrs, args...)

	op.logger.WithContext(op.ctx).Debug(msg, attrs...)
}

func isCallerError(err error) bool {
	switch apperrors.GetErrorCode(err) {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidHostname,
		apperrors.ErrCodeNotFound, apperrors.ErrCodeInvalidState,
		apperrors.ErrCodeRegionInactive, apperrors.ErrCodeCapacityExhausted,
		apperrors.ErrCodeConcurrencyConflict:
		return true
	}
	return false
}
