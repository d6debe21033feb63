package inboundlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wolfman30/replybridge/internal/bridge"
)

var csvHeader = []string{"Timestamp", "User", "Message"}

// CSVRecorder appends entries to a CSV file, writing the header when the file is new.
type CSVRecorder struct {
	mu   sync.Mutex
	path string
}

func NewCSVRecorder(path string) *CSVRecorder {
	return &CSVRecorder{path: path}
}

func (r *CSVRecorder) Path() string {
	return r.path
}

// Record appends one row of timestamp, sender and message text.
func (r *CSVRecorder) Record(_ context.Context, msg bridge.InboundMessage, text string) error {
	e := entryFrom(msg, text)

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("inboundlog: open %s: %w", r.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("inboundlog: stat %s: %w", r.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("inboundlog: write header: %w", err)
		}
	}
	if err := w.Write([]string{e.ReceivedAt.Format(time.RFC3339Nano), e.Sender, e.Message}); err != nil {
		return fmt.Errorf("inboundlog: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("inboundlog: flush: %w", err)
	}
	return nil
}
