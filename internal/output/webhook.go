package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookConfig holds settings for the webhook output sink.
type WebhookConfig struct {
	URL        string
	BatchSize  int // results per POST
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration // first retry delay, doubled per attempt
	Headers    map[string]string
	Sensor     string // reported in every payload, usually the hostname
	Log        logrus.FieldLogger
}

// WebhookPayload is the JSON body of one POST.
type WebhookPayload struct {
	Sensor  string    `json:"sensor,omitempty"`
	Sent    string    `json:"sent"`
	Count   int       `json:"count"`
	Results []*Result `json:"results"`
}

// WebhookWriter posts batches of results to a collector such as a SIEM.
// Delivery happens on the batcher goroutine; a batch that still fails after
// MaxRetries attempts is logged and dropped.
type WebhookWriter struct {
	cfg    WebhookConfig
	client *http.Client
	log    logrus.FieldLogger
	b      *batcher
}

// NewWebhookWriter creates a writer that batches results and POSTs them to cfg.URL.
func NewWebhookWriter(cfg WebhookConfig) *WebhookWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	w := &WebhookWriter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    cfg.Log.WithField("component", "webhook"),
	}
	w.b = newBatcher(cfg.BatchSize, time.Second, w.log, w.deliver)
	return w
}

func (w *WebhookWriter) deliver(batch []*Result) error {
	body, err := json.Marshal(WebhookPayload{
		Sensor:  w.cfg.Sensor,
		Sent:    time.Now().UTC().Format(time.RFC3339),
		Count:   len(batch),
		Results: batch,
	})
	if err != nil {
		return err
	}

	delay := w.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err = w.post(body)
		if err == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		w.log.WithError(err).Warnf("POST failed (attempt %d/%d)", attempt, w.cfg.MaxRetries)
		time.Sleep(delay)
		delay *= 2
	}
	w.log.WithError(err).Errorf("dropping %d results after %d attempts", len(batch), w.cfg.MaxRetries)
	return err
}

func (w *WebhookWriter) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func (w *WebhookWriter) Write(res *Result) error { return w.b.add(res) }

// Close delivers the remaining results, retries included.
func (w *WebhookWriter) Close() error { return w.b.close() }
