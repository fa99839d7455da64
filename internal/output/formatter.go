package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
)

const (
	EventSYN        = "SYN"
	EventClassified = "CLASSIFIED"
)

// Result is one line of sink output: a SYN and, when classification is on,
// the best guesses for its sender.
type Result struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	IP        string `json:"ip"`
	Port      uint16 `json:"port"`
	DstIP     string `json:"dst_ip"`
	DstPort   uint16 `json:"dst_port"`
	// Raw TCP/IP signals
	TTL        int    `json:"ttl"`
	DF         int    `json:"df"`
	Window     int    `json:"window"`
	MSS        *int   `json:"mss,omitempty"`
	WScale     *int   `json:"wscale,omitempty"`
	TCPOptions string `json:"tcp_options"`
	// Classification
	OS       string            `json:"os,omitempty"`
	Score    string            `json:"score,omitempty"`
	Guesses  []osfp.Guess      `json:"guesses,omitempty"`
	Averages map[string]string `json:"avg_score_os_class,omitempty"`
}

// FromFingerprint builds an unclassified SYN result.
func FromFingerprint(fp *osfp.Fingerprint) *Result {
	return &Result{
		Event:      EventSYN,
		Timestamp:  time.Unix(fp.Timestamp, 0).UTC().Format(time.RFC3339),
		IP:         fp.SrcIP,
		Port:       fp.SrcPort,
		DstIP:      fp.DstIP,
		DstPort:    fp.DstPort,
		TTL:        fp.IPTTL,
		DF:         fp.IPDF,
		Window:     fp.TCPWindowSize,
		MSS:        fp.TCPMSS,
		WScale:     fp.TCPWindowScaling,
		TCPOptions: fp.TCPOptions,
	}
}

// FromClassification builds a result carrying the guesses of c.
func FromClassification(c *osfp.Classification) *Result {
	res := FromFingerprint(&c.Fingerprint)
	res.Event = EventClassified
	res.Guesses = c.BestNGuesses
	res.Averages = c.AvgScoreOsClass
	if best, ok := c.Best(); ok {
		res.OS = best.OS
		res.Score = best.Score
	}
	return res
}

type Formatter interface {
	Write(res *Result) error
	Flush() error
}

// JSONFormatter writes JSONL.
type JSONFormatter struct {
	enc *json.Encoder
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{enc: json.NewEncoder(w)}
}

func (f *JSONFormatter) Write(res *Result) error {
	return f.enc.Encode(res)
}

func (f *JSONFormatter) Flush() error { return nil }

// CSVFormatter writes CSV. Guesses beyond the best one are joined with "|".
type CSVFormatter struct {
	writer *csv.Writer
}

var csvHeader = []string{"timestamp", "event", "ip", "port", "dst_ip", "dst_port", "ttl", "df", "window", "mss", "wscale", "tcp_options", "os", "score", "guesses"}

// NewCSVFormatter writes the header row first.
func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return newCSVFormatter(w, true)
}

func newCSVFormatter(w io.Writer, header bool) *CSVFormatter {
	cw := csv.NewWriter(w)
	if header {
		cw.Write(csvHeader)
	}
	return &CSVFormatter{writer: cw}
}

func (f *CSVFormatter) Write(res *Result) error {
	guesses := make([]string, 0, len(res.Guesses))
	for _, g := range res.Guesses {
		guesses = append(guesses, g.OS+" "+g.Score)
	}
	return f.writer.Write([]string{
		res.Timestamp,
		res.Event,
		res.IP,
		strconv.Itoa(int(res.Port)),
		res.DstIP,
		strconv.Itoa(int(res.DstPort)),
		strconv.Itoa(res.TTL),
		strconv.Itoa(res.DF),
		strconv.Itoa(res.Window),
		optInt(res.MSS),
		optInt(res.WScale),
		res.TCPOptions,
		res.OS,
		res.Score,
		strings.Join(guesses, "|"),
	})
}

func (f *CSVFormatter) Flush() error {
	f.writer.Flush()
	return f.writer.Error()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

// TextFormatter writes one human-readable line per result.
type TextFormatter struct {
	w io.Writer
}

func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: w}
}

func (f *TextFormatter) Write(res *Result) error {
	guess := ""
	if res.OS != "" {
		guess = fmt.Sprintf(" | %s (%s)", res.OS, res.Score)
	}
	_, err := fmt.Fprintf(f.w, "%s:%d ttl=%d win=%d opts=%s%s\n",
		res.IP, res.Port, res.TTL, res.Window, res.TCPOptions, guess)
	return err
}

func (f *TextFormatter) Flush() error { return nil }
