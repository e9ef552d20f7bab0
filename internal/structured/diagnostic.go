package structured

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
)

// defaultDumpQueue is the number of pending dumps a FileSink buffers before
// it starts dropping.
const defaultDumpQueue = 32

// NopSink discards every dump.
type NopSink struct{}

// Dump implements DiagnosticSink.
func (NopSink) Dump(string, string) {}

type dump struct {
	label string
	raw   string
	at    time.Time
}

// FileSink writes unparseable model output into a directory, one file per
// dump, using atomic renames so a reader never observes a partial file.
//
// Dump never blocks: writes happen on a background goroutine fed by a
// bounded queue, and dumps arriving while the queue is full are dropped and
// counted. Write failures are logged and otherwise ignored.
type FileSink struct {
	dir    string
	queue  chan dump
	logger *slog.Logger

	seq     atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewFileSink creates dir if needed and starts the background writer.
// Call Close to flush pending dumps and stop the writer.
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostic dir %q: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileSink{
		dir:    dir,
		queue:  make(chan dump, defaultDumpQueue),
		logger: logger.With("component", "diagnostic_sink"),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Dump queues raw for writing, dropping it if the queue is full or the sink
// is closed.
func (s *FileSink) Dump(label, raw string) {
	defer func() {
		// Send on a closed queue after Close.
		if recover() != nil {
			s.dropped.Add(1)
		}
	}()

	select {
	case s.queue <- dump{label: label, raw: raw, at: time.Now().UTC()}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many dumps were discarded.
func (s *FileSink) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting dumps and waits for queued ones to be written.
func (s *FileSink) Close() error {
	s.closeOnce.Do(func() { close(s.queue) })
	<-s.done
	return nil
}

func (s *FileSink) run() {
	defer close(s.done)
	for d := range s.queue {
		name := fmt.Sprintf("%s-%s-%04d.txt",
			d.label, d.at.Format("20060102T150405.000000000"), s.seq.Add(1))
		path := filepath.Join(s.dir, name)
		if err := renameio.WriteFile(path, []byte(d.raw), 0o644); err != nil {
			s.logger.Warn("failed to write diagnostic dump", "path", path, "error", err)
			continue
		}
		s.logger.Debug("wrote diagnostic dump", "path", path, "bytes", len(d.raw))
	}
}
