package output

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// ResultWriter accepts results from the sniffer.
type ResultWriter interface {
	Write(res *Result) error
}

// FileWriter appends formatted results to a file. Results from earlier runs
// are kept; a CSV header is written only when the file starts empty.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	fmt  Formatter
}

// NewWriter opens a JSONL result file.
func NewWriter(path string) (*FileWriter, error) {
	return openFileWriter(path, func(w io.Writer, _ bool) Formatter { return NewJSONFormatter(w) })
}

// NewCSVWriter opens a CSV result file.
func NewCSVWriter(path string) (*FileWriter, error) {
	return openFileWriter(path, func(w io.Writer, fresh bool) Formatter {
		if fresh {
			return NewCSVFormatter(w)
		}
		return newCSVFormatter(w, false)
	})
}

func openFileWriter(path string, newFormatter func(w io.Writer, fresh bool) Formatter) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileWriter{file: f, fmt: newFormatter(f, st.Size() == 0)}, nil
}

func (w *FileWriter) Write(res *Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fmt.Write(res)
}

// Close flushes the formatter and syncs the file before closing it.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	flushErr := w.fmt.Flush()
	w.file.Sync()
	if err := w.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// Sink fans results out to every configured writer.
type Sink struct {
	writers []ResultWriter
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Add(w ResultWriter) { s.writers = append(s.writers, w) }

// Len reports how many writers are attached.
func (s *Sink) Len() int { return len(s.writers) }

// Write hands res to every writer and returns the first error. A failing
// writer does not stop the others.
func (s *Sink) Write(res *Result) error {
	var firstErr error
	for _, w := range s.writers {
		if err := w.Write(res); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes, in order, every writer that is an io.Closer.
func (s *Sink) Close() error {
	var firstErr error
	for _, w := range s.writers {
		c, ok := w.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
