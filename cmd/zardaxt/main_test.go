package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/Xxx-Bin/zardaxt/internal/config"
	"github.com/Xxx-Bin/zardaxt/internal/ui"
)

// helper: full config for testing
func fullTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Capture.Interface = "eth0"
	cfg.Capture.Filter = "tcp port 443"
	cfg.Classify.Enabled = true
	cfg.Classify.Database = "/opt/zardaxt/db.json"
	cfg.Classify.Top = 5
	cfg.Session.WriteAfter = 100
	cfg.Session.Eviction = "lru"
	cfg.API.Listen = ":8249"
	cfg.Output.Results = "results.jsonl"
	cfg.Output.Webhook = &config.WebhookOutput{URL: "https://hooks.example.com/syn", BatchSize: 10}
	cfg.Log.Level = "debug"
	return cfg
}

func TestApplyFlags_NothingSetKeepsConfig(t *testing.T) {
	cfg := fullTestConfig()
	cmd := newRootCommand()
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	if err := applyFlags(cfg, cmd.Flags(), &cliFlags{}); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}

	want := fullTestConfig()
	if cfg.Capture.Interface != want.Capture.Interface || cfg.Capture.Filter != want.Capture.Filter || len(cfg.Capture.Ignore) != 0 {
		t.Errorf("capture = %+v, want %+v", cfg.Capture, want.Capture)
	}
	if cfg.Classify != want.Classify || cfg.Session != want.Session {
		t.Errorf("classify/session changed: %+v %+v", cfg.Classify, cfg.Session)
	}
	if cfg.Output.Webhook.URL != want.Output.Webhook.URL {
		t.Errorf("webhook = %+v", cfg.Output.Webhook)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestApplyFlags_CLIOverridesConfig(t *testing.T) {
	cfg := fullTestConfig()
	var f cliFlags
	cmd := newRootCommandWith(&f)
	args := []string{
		"-r", "dump.pcap",
		"--filter", "tcp",
		"-n", "7",
		"--eviction", "clear",
		"--top", "1",
		"--ignore", "10.0.0.0/8,192.0.2.1",
		"--ignore", "192.0.2.9",
		"--webhook", "http://127.0.0.1:9000/hook",
		"--log-level", "warn",
		"-q",
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	if err := applyFlags(cfg, cmd.Flags(), &f); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}

	if cfg.Capture.Read != "dump.pcap" || cfg.Capture.Interface != "" {
		t.Errorf("-r should replace the configured interface: %+v", cfg.Capture)
	}
	if len(cfg.Capture.Ignore) != 3 {
		t.Errorf("ignore = %v", cfg.Capture.Ignore)
	}
	if cfg.Capture.Filter != "tcp" {
		t.Errorf("filter = %q", cfg.Capture.Filter)
	}
	if cfg.Session.WriteAfter != 7 || cfg.Session.Eviction != "clear" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Session.ClearAfter != 3000 {
		t.Errorf("unset --clear-after changed ClearAfter to %d", cfg.Session.ClearAfter)
	}
	if cfg.Classify.Top != 1 || !cfg.Classify.Enabled {
		t.Errorf("classify = %+v", cfg.Classify)
	}
	if cfg.Output.Webhook.URL != "http://127.0.0.1:9000/hook" || cfg.Output.Webhook.BatchSize != 10 {
		t.Errorf("webhook = %+v", cfg.Output.Webhook)
	}
	if !cfg.Output.Quiet || cfg.Log.Level != "warn" {
		t.Errorf("output/log = %+v %+v", cfg.Output, cfg.Log)
	}
}

func TestApplyFlags_Invalid(t *testing.T) {
	var f cliFlags
	cmd := newRootCommandWith(&f)
	if err := cmd.ParseFlags([]string{"--eviction", "random"}); err != nil {
		t.Fatal(err)
	}
	if err := applyFlags(config.Default(), cmd.Flags(), &f); err == nil {
		t.Error("expected error for unknown eviction policy")
	}
}

func TestRootCommand_RequiresSource(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-c"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected missing source error, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("usage not printed: %q", out.String())
	}
}

func TestPickMode(t *testing.T) {
	var buf bytes.Buffer
	tests := []struct {
		name string
		out  config.OutputConfig
		want ui.Mode
	}{
		{"quiet", config.OutputConfig{Quiet: true}, ui.ModeSilent},
		{"no tui", config.OutputConfig{NoTUI: true}, ui.ModeText},
		{"stdout results", config.OutputConfig{Stdout: true}, ui.ModeText},
		{"not a terminal", config.OutputConfig{}, ui.ModeText},
	}
	for _, tt := range tests {
		if got := pickMode(tt.out, &buf); got != tt.want {
			t.Errorf("%s: pickMode = %v, want %v", tt.name, got, tt.want)
		}
	}
}

const runTestDB = `[
  {"ip_ttl": 64, "ip_df": 1, "ip_mf": 0, "tcp_window_size": 64240, "tcp_flags": 2,
   "tcp_header_length": 10, "tcp_mss": 1460, "tcp_options": "M1460,S,T,N,W7", "os": {"name": "Linux"}},
  {"ip_ttl": 128, "ip_df": 1, "ip_mf": 0, "tcp_window_size": 64240, "tcp_flags": 2,
   "tcp_header_length": 8, "tcp_mss": 1460, "tcp_options": "M1460,N,W8,N,N,S", "os": {"name": "Windows"}}
]`

func synFrame(t *testing.T, src string, dport uint16) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Flags: layers.IPv4DontFragment, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP(src), DstIP: net.IPv4(198, 51, 100, 1),
	}
	tcp := &layers.TCP{
		SrcPort: 40000, DstPort: layers.TCPPort(dport), Seq: 1, SYN: true, Window: 64240,
		Options: []layers.TCPOption{
			{OptionType: layers.TCPOptionKindMSS, OptionData: []byte{0x05, 0xb4}},
			{OptionType: layers.TCPOptionKindSACKPermitted},
			{OptionType: layers.TCPOptionKindTimestamps, OptionData: make([]byte, 8)},
			{OptionType: layers.TCPOptionKindNop},
			{OptionType: layers.TCPOptionKindWindowScale, OptionData: []byte{7}},
		},
	}
	tcp.SetNetworkLayerForChecksum(ip)
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writePcap(t *testing.T, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for i, data := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000+int64(i), 0), CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRun_OfflineCapture(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "syn.pcap")
	writePcap(t, pcapPath,
		synFrame(t, "192.0.2.10", 443),
		synFrame(t, "192.0.2.11", 22), // filtered out
		synFrame(t, "192.0.2.12", 80),
	)
	dbPath := filepath.Join(dir, "db.json")
	if err := os.WriteFile(dbPath, []byte(runTestDB), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Capture.Read = pcapPath
	cfg.Classify.Enabled = true
	cfg.Classify.Database = dbPath
	cfg.Session.Fingerprints = filepath.Join(dir, "fingerprints.json")
	cfg.Output.Results = filepath.Join(dir, "results.jsonl")
	cfg.Output.Quiet = true

	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run(ctx, cfg, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}

	data, err := os.ReadFile(cfg.Session.Fingerprints)
	if err != nil {
		t.Fatalf("fingerprint log not flushed on exit: %v", err)
	}
	var fps map[string]map[string]any
	if err := json.Unmarshal(data, &fps); err != nil {
		t.Fatal(err)
	}
	if len(fps) != 2 {
		t.Fatalf("expected 2 fingerprints, got %d: %v", len(fps), fps)
	}
	if _, ok := fps["192.0.2.10:40000"]; !ok {
		t.Errorf("missing 192.0.2.10:40000 in %v", fps)
	}

	f, err := os.Open(cfg.Output.Results)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var res map[string]any
		if err := json.Unmarshal(sc.Bytes(), &res); err != nil {
			t.Fatalf("bad result line %q: %v", sc.Text(), err)
		}
		if res["os"] != "Linux" || res["score"] != "11.5/11.5" {
			t.Errorf("result = %v", res)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 results, got %d", lines)
	}
	if stdout.Len() != 0 {
		t.Errorf("quiet mode wrote to stdout: %q", stdout.String())
	}
}

func TestRun_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "syn.pcap")
	writePcap(t, pcapPath, synFrame(t, "192.0.2.10", 443))

	cfg := config.Default()
	cfg.Capture.Read = pcapPath
	cfg.Classify.Enabled = true
	cfg.Classify.Database = filepath.Join(dir, "missing.json")
	cfg.Output.Quiet = true

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, &stderr); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestShutdownSignals(t *testing.T) {
	for _, want := range []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP} {
		found := false
		for _, sig := range shutdownSignals {
			found = found || sig == want
		}
		if !found {
			t.Errorf("%v does not stop the capture", want)
		}
	}
}

func TestRun_InvalidFilter(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "syn.pcap")
	writePcap(t, pcapPath, synFrame(t, "192.0.2.10", 443))

	cfg := config.Default()
	cfg.Capture.Read = pcapPath
	cfg.Capture.Filter = "tcp port"
	cfg.Output.Quiet = true

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), cfg, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "failed to set BPF filter") {
		t.Fatalf("expected filter error, got %v", err)
	}
}
