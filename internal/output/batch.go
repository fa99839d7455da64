package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize     = 64
	defaultFlushInterval = 250 * time.Millisecond
	batchQueueLen        = 4096
)

// batcher groups results and hands each group to flush from one goroutine,
// so flush implementations need no locking of their own. Enqueueing never
// blocks: the sniffer loop must not stall on a slow sink, so results that
// do not fit the queue are counted and dropped.
type batcher struct {
	size     int
	interval time.Duration
	flush    func([]*Result) error
	log      logrus.FieldLogger

	mu      sync.RWMutex // guards closed against a send on a closed queue
	closed  bool
	queue   chan *Result
	done    chan struct{}
	dropped atomic.Uint64
	err     error // last flush error, read after done
}

func newBatcher(size int, interval time.Duration, log logrus.FieldLogger, flush func([]*Result) error) *batcher {
	if size <= 0 {
		size = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &batcher{
		size:     size,
		interval: interval,
		flush:    flush,
		log:      log,
		queue:    make(chan *Result, batchQueueLen),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *batcher) loop() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	pending := make([]*Result, 0, b.size)
	send := func(why string) {
		if len(pending) == 0 {
			return
		}
		if err := b.flush(pending); err != nil {
			b.err = err
			b.log.WithError(err).WithField("results", len(pending)).Warnf("%s flush failed", why)
		}
		pending = make([]*Result, 0, b.size)
	}

	for {
		select {
		case res, ok := <-b.queue:
			if !ok {
				send("final")
				return
			}
			pending = append(pending, res)
			if len(pending) >= b.size {
				send("batch")
			}
		case <-ticker.C:
			send("periodic")
		}
	}
}

func (b *batcher) add(res *Result) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	select {
	case b.queue <- res:
	default:
		if b.dropped.Add(1)%1000 == 1 {
			b.log.Warnf("output queue full, %d results dropped so far", b.dropped.Load())
		}
	}
	return nil
}

// close flushes what is queued and stops the goroutine. Safe to call twice.
func (b *batcher) close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
	return b.err
}
