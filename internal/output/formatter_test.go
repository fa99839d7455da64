package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
)

func TestFromClassification(t *testing.T) {
	res := FromClassification(benchClassification())

	if res.Event != EventClassified {
		t.Errorf("Event = %q", res.Event)
	}
	if res.OS != "Linux" || res.Score != "11.5/11.5" {
		t.Errorf("best guess = %q %q", res.OS, res.Score)
	}
	if len(res.Guesses) != 2 || res.Averages["Windows"] != "avg=5.12, N=80" {
		t.Errorf("guesses/averages not carried: %+v", res)
	}
	if res.Timestamp != "2023-11-14T22:13:20Z" {
		t.Errorf("Timestamp = %q", res.Timestamp)
	}
	if res.MSS == nil || *res.MSS != 1460 || res.TCPOptions != "M1460,S,T,N,W7" {
		t.Errorf("signals = mss %v opts %q", res.MSS, res.TCPOptions)
	}
}

func TestFromClassification_NoGuesses(t *testing.T) {
	c := benchClassification()
	c.BestNGuesses = nil
	res := FromClassification(c)
	if res.OS != "" || res.Score != "" {
		t.Errorf("expected empty best guess, got %q %q", res.OS, res.Score)
	}
}

func TestFromFingerprint(t *testing.T) {
	fp := benchClassification().Fingerprint
	res := FromFingerprint(&fp)
	if res.Event != EventSYN || res.OS != "" || res.Guesses != nil {
		t.Errorf("unexpected classification data: %+v", res)
	}

	data, _ := json.Marshal(res)
	if strings.Contains(string(data), `"guesses"`) || strings.Contains(string(data), `"os"`) {
		t.Errorf("empty classification fields should be omitted: %s", data)
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewCSVFormatter(&buf)
	f.Write(FromClassification(benchClassification()))
	fp := osfp.Fingerprint{SrcIP: "10.0.0.9", SrcPort: 1, IPTTL: 128}
	f.Write(FromFingerprint(&fp))
	if err := f.Flush(); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || len(rows[0]) != len(rows[1]) {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][9] != "1460" || rows[1][14] != "Linux 11.5/11.5|Android 11.5/11.5" {
		t.Errorf("row = %v", rows[1])
	}
	if rows[2][9] != "" || rows[2][12] != "" {
		t.Errorf("absent values should be empty, got %v", rows[2])
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	NewTextFormatter(&buf).Write(FromClassification(benchClassification()))
	want := "10.0.0.1:51515 ttl=64 win=64240 opts=M1460,S,T,N,W7 | Linux (11.5/11.5)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestSink_FanOut(t *testing.T) {
	dir := t.TempDir()
	jw, err := NewWriter(filepath.Join(dir, "results.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	cw, err := NewCSVWriter(filepath.Join(dir, "results.csv"))
	if err != nil {
		t.Fatal(err)
	}

	sink := NewSink()
	sink.Add(jw)
	sink.Add(cw)
	if sink.Len() != 2 {
		t.Fatalf("Len() = %d", sink.Len())
	}
	for i := 0; i < 3; i++ {
		if err := sink.Write(FromClassification(benchClassification())); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	jsonl, _ := os.ReadFile(filepath.Join(dir, "results.jsonl"))
	if n := strings.Count(string(jsonl), "\n"); n != 3 {
		t.Errorf("jsonl lines = %d", n)
	}
	csvData, _ := os.ReadFile(filepath.Join(dir, "results.csv"))
	if n := strings.Count(string(csvData), "\n"); n != 4 {
		t.Errorf("csv lines = %d, want header + 3", n)
	}
}

func TestCSVWriter_AppendKeepsSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.csv")
	for range 2 {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(FromClassification(benchClassification()))
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "timestamp,event,ip"); n != 1 {
		t.Errorf("header written %d times:\n%s", n, data)
	}
	if n := strings.Count(string(data), "\n"); n != 3 {
		t.Errorf("csv lines = %d, want header + 2", n)
	}
}
