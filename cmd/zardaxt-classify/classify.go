package main

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
	"github.com/Xxx-Bin/zardaxt/internal/output"
)

type options struct {
	Top     int
	Workers int
	Full    bool // emit osfp.Classification instead of output.Result
}

type stats struct {
	Total   int
	Exact   int
	Workers int
}

// classifyLog reads a fingerprint log (JSON object keyed by "ip:port"),
// classifies every fingerprint on a worker pool and writes one JSON line per
// fingerprint, ordered by key.
func classifyLog(r io.Reader, w io.Writer, db *osfp.Database, opts options) (stats, error) {
	var fps map[string]osfp.Fingerprint
	if err := json.NewDecoder(r).Decode(&fps); err != nil {
		return stats{}, errors.Wrap(err, "failed to parse fingerprint log")
	}

	keys := make([]string, 0, len(fps))
	for k := range fps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	st := stats{Total: len(keys), Workers: opts.Workers}

	results := make([]osfp.Classification, len(keys))
	work := make(chan int, opts.Workers*64)

	var wg sync.WaitGroup
	for range opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				fp := fps[keys[i]]
				results[i] = osfp.Classify(&fp, db, opts.Top)
			}
		}()
	}
	for i := range keys {
		work <- i
	}
	close(work)
	wg.Wait()

	bw := bufio.NewWriterSize(w, 256*1024)
	enc := json.NewEncoder(bw)
	for i := range results {
		c := &results[i]
		if best, ok := c.Best(); ok && best.Value == c.PerfectScore {
			st.Exact++
		}
		var rec any = c
		if !opts.Full {
			rec = output.FromClassification(c)
		}
		if err := enc.Encode(rec); err != nil {
			return st, errors.Wrap(err, "failed to write result")
		}
	}
	if err := bw.Flush(); err != nil {
		return st, errors.Wrap(err, "failed to write results")
	}
	return st, nil
}
