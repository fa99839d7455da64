package output

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type collector struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	headers  []http.Header
	fail     int32 // respond 500 to this many requests first
	calls    atomic.Int32
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.calls.Add(1) <= c.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var p WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.payloads = append(c.payloads, p)
	c.headers = append(c.headers, r.Header.Clone())
	c.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func TestWebhookWriter_Payload(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	wh := NewWebhookWriter(WebhookConfig{
		URL:       srv.URL,
		BatchSize: 3,
		Sensor:    "edge-1",
		Headers:   map[string]string{"Authorization": "Bearer secret-token"},
	})
	for i := range 4 {
		wh.Write(linuxResult(uint16(80 + i)))
	}
	if err := wh.Close(); err != nil {
		t.Fatal(err)
	}

	if len(col.payloads) != 2 {
		t.Fatalf("got %d POSTs, want 2", len(col.payloads))
	}
	first := col.payloads[0]
	if first.Sensor != "edge-1" || first.Count != 3 || len(first.Results) != 3 {
		t.Errorf("first payload = %+v", first)
	}
	if first.Results[0].OS != "Linux" || first.Results[0].Port != 80 {
		t.Errorf("first result = %+v", first.Results[0])
	}
	if col.payloads[1].Count != 1 {
		t.Errorf("close should deliver the remainder, got %+v", col.payloads[1])
	}
	h := col.headers[0]
	if h.Get("Content-Type") != "application/json" || h.Get("Authorization") != "Bearer secret-token" {
		t.Errorf("headers = %v", h)
	}
}

func TestWebhookWriter_Retries(t *testing.T) {
	tests := []struct {
		name      string
		fail      int32
		retries   int
		delivered int
		wantErr   bool
	}{
		{"recovers", 2, 3, 1, false},
		{"gives up", 5, 2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := &collector{fail: tt.fail}
			srv := httptest.NewServer(col)
			defer srv.Close()

			wh := NewWebhookWriter(WebhookConfig{
				URL:        srv.URL,
				MaxRetries: tt.retries,
				Backoff:    time.Millisecond,
			})
			wh.Write(linuxResult(443))
			err := wh.Close()

			if (err != nil) != tt.wantErr {
				t.Errorf("Close error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(col.payloads) != tt.delivered {
				t.Errorf("delivered %d payloads, want %d", len(col.payloads), tt.delivered)
			}
		})
	}
}

func TestWebhookWriter_CloseWithoutResults(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	wh := NewWebhookWriter(WebhookConfig{URL: srv.URL})
	wh.Close()
	wh.Close()
	if n := col.calls.Load(); n != 0 {
		t.Errorf("empty writer sent %d requests", n)
	}
}
