package inboundlog

import (
	"context"
	"errors"

	"github.com/wolfman30/replybridge/internal/bridge"
)

// Recorder is satisfied by CSVRecorder and PostgresRecorder.
type Recorder interface {
	Record(ctx context.Context, msg bridge.InboundMessage, text string) error
}

// Multi fans each entry out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, msg bridge.InboundMessage, text string) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, msg, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
