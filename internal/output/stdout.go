package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
)

// StdoutWriter streams JSONL results to a pipe such as stdout. Results are
// grouped so a burst of SYNs becomes one write. Not combined with the TUI.
type StdoutWriter struct {
	b *batcher
}

// NewStdoutWriter writes batches of up to batchSize results to out.
func NewStdoutWriter(out io.Writer, batchSize int, log logrus.FieldLogger) *StdoutWriter {
	bw := bufio.NewWriterSize(out, 32*1024)
	enc := json.NewEncoder(bw)
	return &StdoutWriter{
		b: newBatcher(batchSize, 0, log, func(batch []*Result) error {
			for _, res := range batch {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return bw.Flush()
		}),
	}
}

func (w *StdoutWriter) Write(res *Result) error { return w.b.add(res) }

// Close writes everything still queued.
func (w *StdoutWriter) Close() error { return w.b.close() }
