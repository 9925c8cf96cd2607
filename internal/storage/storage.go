// Package storage holds the file sinks shared by the run and decode commands.
package storage

import (
	"context"

	"positionScope/internal/model"
)

// LogSink receives batches of raw logs in chain order. A batch is durable
// once PutLogBatch returns, so the caller may checkpoint past it.
type LogSink interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}
