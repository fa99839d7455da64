package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const maxRows = 10000

// Filter presets
const (
	FilterAll        = 0
	FilterClassified = 1
	FilterExact      = 2
)

// hostRow is the latest SYN and guess for one source IP.
type hostRow struct {
	IP         string
	Port       uint16
	TTL        int
	Window     int
	MSS        int
	Options    string
	OS         string
	Score      string
	ScoreValue float64
	Guesses    []string
	Classified bool
	Exact      bool
	SYNs       int
	Time       time.Time
	seq        int
}

// osCount tracks a best-guess OS and how many hosts it was given to.
type osCount struct {
	OS    string
	Count uint64
}

// Model is the bubbletea TUI model.
type Model struct {
	Source   string // interface name or capture file
	Filter   string // BPF expression
	Classify bool

	rows    map[string]*hostRow // keyed by source IP
	order   []string
	nextSeq int

	stats SniffStats

	// Cumulative counters (survive eviction)
	totalHosts      uint64
	totalClassified uint64
	totalExact      uint64
	clears          uint64

	osCounts   map[string]uint64
	topOS      []osCount
	topOSDirty bool

	rate rateHistory

	nav        pager
	follow     bool
	sortMode   int
	filterMode int
	searching  bool
	searchText string
	filtered   []*hostRow

	width, height int
	done          bool
	quitting      bool

	// Cancel stops the sniffer when the user quits.
	Cancel func()
}

func NewModel(source, filter string, classify bool, cancel func()) Model {
	return Model{
		Source:     source,
		Filter:     filter,
		Classify:   classify,
		Cancel:     cancel,
		rows:       make(map[string]*hostRow, 1024),
		order:      make([]string, 0, 1024),
		osCounts:   make(map[string]uint64, 32),
		follow:     true,
		filterMode: FilterAll,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			m.editSearch(msg)
			return m, nil
		}
		if act, ok := keyActions[msg.String()]; ok {
			return m, act(&m)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.refresh()

	case HostEvent:
		m.handleEvent(msg)
		if m.done {
			return m, tea.Quit
		}
		m.refresh()

	case SniffStats:
		m.stats = msg
		m.rate.observe(msg.SYNs)
	}
	return m, nil
}

// keyActions maps keys outside search mode to what they do.
var keyActions = map[string]func(m *Model) tea.Cmd{
	"q":      quit,
	"ctrl+c": quit,
	"/":      func(m *Model) tea.Cmd { m.searching = true; return nil },
	"1":      setFilter(FilterAll),
	"2":      setFilter(FilterClassified),
	"3":      setFilter(FilterExact),
	"s": func(m *Model) tea.Cmd {
		m.sortMode = (m.sortMode + 1) % len(sortNames)
		m.refresh()
		return nil
	},
	"f": func(m *Model) tea.Cmd {
		m.follow = !m.follow
		m.refresh()
		return nil
	},
	"j":      scroll(1),
	"down":   scroll(1),
	"k":      scroll(-1),
	"up":     scroll(-1),
	"pgdown": scrollPage(1),
	"ctrl+d": scrollPage(1),
	"pgup":   scrollPage(-1),
	"ctrl+u": scrollPage(-1),
	"g":      func(m *Model) tea.Cmd { m.follow = false; m.nav.toStart(); return nil },
	"home":   func(m *Model) tea.Cmd { m.follow = false; m.nav.toStart(); return nil },
	"G":      func(m *Model) tea.Cmd { m.follow = true; m.refresh(); return nil },
	"end":    func(m *Model) tea.Cmd { m.follow = true; m.refresh(); return nil },
	"esc": func(m *Model) tea.Cmd {
		m.searchText = ""
		m.refresh()
		return nil
	},
}

func quit(m *Model) tea.Cmd {
	m.quitting = true
	if m.Cancel != nil {
		m.Cancel()
	}
	return tea.Quit
}

func setFilter(mode int) func(m *Model) tea.Cmd {
	return func(m *Model) tea.Cmd {
		m.filterMode = mode
		m.refresh()
		return nil
	}
}

func scroll(delta int) func(m *Model) tea.Cmd {
	return func(m *Model) tea.Cmd {
		m.follow = false
		m.nav.moveBy(delta, len(m.filtered), m.visibleRows())
		return nil
	}
}

func scrollPage(dir int) func(m *Model) tea.Cmd {
	return func(m *Model) tea.Cmd {
		return scroll(dir * m.visibleRows())(m)
	}
}

// editSearch applies a key typed while the search box is open.
func (m *Model) editSearch(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.searching = false
		return
	case tea.KeyBackspace:
		if m.searchText == "" {
			return
		}
		m.searchText = m.searchText[:len(m.searchText)-1]
	case tea.KeyCtrlU:
		m.searchText = ""
	case tea.KeyRunes, tea.KeySpace:
		m.searchText += string(msg.Runes)
	default:
		return
	}
	m.refresh()
}

func (m *Model) handleEvent(ev HostEvent) {
	switch ev.Type {
	case EvtSYN, EvtClassified:
		row, exists := m.rows[ev.IP]
		if !exists {
			m.totalHosts++
			row = &hostRow{IP: ev.IP, seq: m.nextSeq}
			m.nextSeq++
			m.rows[ev.IP] = row
			m.order = append(m.order, ev.IP)
		}
		row.Port = ev.Port
		row.TTL = ev.TTL
		row.Window = ev.Window
		row.MSS = ev.MSS
		row.Options = ev.Options
		row.SYNs++
		row.Time = time.Now()

		if ev.Type == EvtClassified {
			m.classify(row, ev)
		}
		if !exists {
			m.evictOld()
		}

	case EvtCleared:
		m.clears++

	case EvtDone:
		m.done = true
	}
}

// classify moves row to the guess in ev and keeps the OS tally in step.
func (m *Model) classify(row *hostRow, ev HostEvent) {
	if !row.Classified {
		m.totalClassified++
	}
	if ev.Exact && !row.Exact {
		m.totalExact++
	}
	if row.OS != ev.OS {
		m.tally(row.OS, -1)
		m.tally(ev.OS, 1)
	}
	row.Classified = true
	row.Exact = row.Exact || ev.Exact
	row.OS = ev.OS
	row.Score = ev.Score
	row.ScoreValue = scoreValue(ev.Score)
	row.Guesses = ev.Guesses
}

func (m *Model) tally(os string, d int) {
	if os == "" {
		return
	}
	m.osCounts[os] = uint64(int64(m.osCounts[os]) + int64(d))
	m.topOSDirty = true
}

func (m *Model) evictOld() {
	for len(m.order) > maxRows {
		old := m.order[0]
		m.order = m.order[1:]
		if row, ok := m.rows[old]; ok {
			m.tally(row.OS, -1)
		}
		delete(m.rows, old)
	}
}

// scoreValue is the numerator of a "score/perfect" string.
func scoreValue(score string) float64 {
	num, _, _ := strings.Cut(score, "/")
	v, _ := strconv.ParseFloat(num, 64)
	return v
}

// ── Top OS ───────────────────────────────────────────────────────────

func (m *Model) rebuildTopOS() {
	if !m.topOSDirty {
		return
	}
	m.topOSDirty = false

	top := m.topOS[:0]
	for os, c := range m.osCounts {
		if c > 0 {
			top = append(top, osCount{os, c})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].OS < top[j].OS
	})
	m.topOS = top[:min(len(top), 6)]
}

// ── Rows ─────────────────────────────────────────────────────────────

// Sort modes, cycled with "s".
const (
	SortArrival = iota
	SortOS
	SortScore
)

var sortNames = []string{"arrival", "os", "score"}

// refresh rebuilds the visible row set and repositions the cursor.
func (m *Model) refresh() {
	m.rebuildFiltered()
	if m.follow {
		m.nav.toEnd(len(m.filtered), m.visibleRows())
		return
	}
	m.nav.clamp(len(m.filtered), m.visibleRows())
}

func (m *Model) rebuildFiltered() {
	m.filtered = m.filtered[:0]
	needle := strings.ToLower(m.searchText)

	for _, key := range m.order {
		row, ok := m.rows[key]
		if !ok || !m.keep(row, needle) {
			continue
		}
		m.filtered = append(m.filtered, row)
	}

	switch m.sortMode {
	case SortOS:
		sort.SliceStable(m.filtered, func(i, j int) bool { return m.filtered[i].OS < m.filtered[j].OS })
	case SortScore:
		sort.SliceStable(m.filtered, func(i, j int) bool { return m.filtered[i].ScoreValue > m.filtered[j].ScoreValue })
	}
}

func (m *Model) keep(row *hostRow, needle string) bool {
	switch m.filterMode {
	case FilterClassified:
		if !row.Classified {
			return false
		}
	case FilterExact:
		if !row.Exact {
			return false
		}
	}
	if needle == "" {
		return true
	}
	for _, field := range []string{row.IP, strconv.Itoa(int(row.Port)), row.OS, row.Options} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// visibleRows returns how many table rows fit on screen.
// Layout: 4 header lines + col header + separator + table + separator + detail + help
func (m Model) visibleRows() int {
	chrome := 4 + 1 + 1 + 1 + m.detailHeight() + 1
	rows := m.height - chrome
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m Model) detailHeight() int {
	h := m.height / 4
	if h < 4 {
		h = 4
	}
	if h > 8 {
		h = 8
	}
	return h
}

// ── View ──────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.quitting || m.done {
		return ""
	}

	w := m.width
	if w < 40 {
		w = 80
	}

	var b strings.Builder
	m.renderHeader(&b, w)
	m.renderStats(&b, w)
	m.renderTopOS(&b, w)
	m.renderFilterBar(&b, w)
	m.renderColHeader(&b, w)
	m.renderTable(&b, w)
	m.renderDetail(&b, w)
	m.renderHelp(&b, w)
	return b.String()
}

func (m Model) renderHeader(b *strings.Builder, w int) {
	title := styleAccent.Render("zardaxt")
	mode := "fingerprint"
	if m.Classify {
		mode = "classify"
	}
	meta := styleDim.Render(fmt.Sprintf(" %s · %s · %s", mode, truncStr(m.Source, 30), truncStr(m.Filter, 40)))
	b.WriteString(" " + title + meta + "\n")
}

func (m Model) renderStats(b *strings.Builder, w int) {
	spark := m.rate.render()
	sparkStr := ""
	if spark != "" {
		sparkStr = " " + styleBar.Render(spark)
	}
	stats := fmt.Sprintf(" %s SYN/s%s  Frames %s  SYN %s  Classified %s  Err %s  Drop %s",
		fmtCompact(uint64(m.stats.Rate)),
		sparkStr,
		fmtCompact(m.stats.Frames),
		fmtCompact(m.stats.SYNs),
		fmtCompact(m.stats.Classified),
		fmtCompact(m.stats.DecodeErrors),
		fmtCompact(m.stats.Drops))
	elapsed := m.stats.Elapsed.Truncate(time.Second).String()
	b.WriteString(styleDim.Render(stats) + "  " + styleDim.Render(elapsed) + "\n")
}

func (m *Model) renderTopOS(b *strings.Builder, w int) {
	m.rebuildTopOS()
	if len(m.topOS) == 0 {
		b.WriteString("\n")
		return
	}
	maxCount := m.topOS[0].Count

	var sb strings.Builder
	for i, oc := range m.topOS {
		if i > 0 {
			sb.WriteString("  ")
		}
		barLen := int(oc.Count * 10 / maxCount)
		if barLen < 1 {
			barLen = 1
		}
		sb.WriteString(fmt.Sprintf("%s %s %s", truncStr(oc.OS, 16), styleBar.Render(strings.Repeat("█", barLen)), fmtCompact(oc.Count)))
		if sb.Len() > w-8 {
			break
		}
	}
	b.WriteString(styleDim.Render(" OS: ") + sb.String() + "\n")
}

func (m Model) renderFilterBar(b *strings.Builder, w int) {
	tabs := " " + m.renderTab("1:Hosts", m.totalHosts, FilterAll) +
		" " + m.renderTab("2:Classified", m.totalClassified, FilterClassified) +
		" " + m.renderTab("3:Exact", m.totalExact, FilterExact)

	search := ""
	if m.searching {
		search = styleFilterBox.Render("  /" + m.searchText + "▌")
	} else if m.searchText != "" {
		search = styleDim.Render("  /") + styleFilterBox.Render(m.searchText)
	}

	extra := ""
	if m.clears > 0 {
		extra += styleDim.Render(fmt.Sprintf("  [cache cleared %d×]", m.clears))
	}
	if m.sortMode != SortArrival {
		extra += styleDim.Render("  [sort " + sortNames[m.sortMode] + "]")
	}
	if m.follow {
		extra += styleDim.Render("  [follow]")
	}
	b.WriteString(tabs + search + extra + "\n")
}

func (m Model) renderTab(label string, count uint64, mode int) string {
	text := fmt.Sprintf(" %s:%d ", label, count)
	if m.filterMode == mode {
		return styleTabActive.Render(text)
	}
	return styleTabInactive.Render(text)
}

// Column widths
const (
	colIP    = 16
	colPort  = 6
	colTTL   = 4
	colWin   = 6
	colOS    = 22
	colScore = 10
	// options take the rest
)

func (m Model) renderColHeader(b *strings.Builder, w int) {
	line := fmt.Sprintf(" %-*s %-*s %-*s %-*s %-*s %-*s %s",
		colIP, "IP",
		colPort, "PORT",
		colTTL, "TTL",
		colWin, "WIN",
		colOS, "OS",
		colScore, "SCORE",
		"OPTIONS")
	b.WriteString(styleColHeader.Render(line) + "\n")
	b.WriteString(styleSep.Render(" "+strings.Repeat("─", w-2)) + "\n")
}

func (m Model) renderTable(b *strings.Builder, w int) {
	vis := m.visibleRows()
	optW := w - colIP - colPort - colTTL - colWin - colOS - colScore - 8
	if optW < 10 {
		optW = 10
	}

	end := m.nav.offset + vis
	if end > len(m.filtered) {
		end = len(m.filtered)
	}

	for i := m.nav.offset; i < end; i++ {
		row := m.filtered[i]
		cells := []string{
			padRight(row.IP, colIP),
			padRight(strconv.Itoa(int(row.Port)), colPort),
			padRight(strconv.Itoa(row.TTL), colTTL),
			padRight(strconv.Itoa(row.Window), colWin),
			padRight(row.OS, colOS),
			padRight(row.Score, colScore),
			truncStr(row.Options, optW),
		}
		if i == m.nav.cursor {
			marker := styleAccent.Render("▸")
			b.WriteString(marker + styleCursor.Render(truncStr(strings.Join(cells, " "), w-2)) + "\n")
			continue
		}
		b.WriteString(renderRow(row, cells))
	}

	for i := end - m.nav.offset; i < vis; i++ {
		b.WriteString(styleDim.Render(" ~") + "\n")
	}
}

func renderRow(row *hostRow, cells []string) string {
	state := styleUnknown
	switch {
	case row.Exact:
		state = styleExact
	case row.Classified:
		state = stylePartial
	}
	return fmt.Sprintf(" %s %s %s %s %s %s %s\n",
		state.Render(cells[0]),
		state.Render(cells[1]),
		state.Render(cells[2]),
		state.Render(cells[3]),
		styleOS.Render(cells[4]),
		state.Render(cells[5]),
		styleOptTxt.Render(cells[6]))
}

func (m Model) renderDetail(b *strings.Builder, w int) {
	detailH := m.detailHeight()
	b.WriteString(styleSep.Render(" "+strings.Repeat("─", w-2)) + "\n")

	if m.nav.cursor < 0 || m.nav.cursor >= len(m.filtered) {
		for i := 0; i < detailH-1; i++ {
			b.WriteString("\n")
		}
		return
	}
	row := m.filtered[m.nav.cursor]

	mss := "-"
	if row.MSS > 0 {
		mss = strconv.Itoa(row.MSS)
	}
	header := fmt.Sprintf(" %s:%d  ttl=%d  win=%d  mss=%s  syns=%d  last=%s",
		row.IP, row.Port, row.TTL, row.Window, mss, row.SYNs, row.Time.Format("15:04:05"))
	b.WriteString(styleDim.Render(truncStr(header, w)) + "\n")
	b.WriteString(" " + styleDetailText.Render(truncStr("options "+row.Options, w-2)) + "\n")

	shown := 2
	if !row.Classified {
		b.WriteString(" " + styleDim.Render("(not classified)") + "\n")
		shown++
	}
	for _, g := range row.Guesses {
		if shown >= detailH-1 {
			break
		}
		b.WriteString(" " + styleDetailText.Render(truncStr("guess "+g, w-2)) + "\n")
		shown++
	}
	for i := shown; i < detailH-1; i++ {
		b.WriteString("\n")
	}
}

func (m Model) renderHelp(b *strings.Builder, w int) {
	help := " q:quit  ↑↓/jk:scroll  g/G:top/end  1-3:filter  s:sort  /:search  f:follow"
	b.WriteString(styleHelp.Render(truncStr(help, w)))
}

// ── Formatting helpers ────────────────────────────────────────────────

func fmtCompact(n uint64) string {
	if n < 1000 {
		return strconv.FormatUint(n, 10)
	}
	if n < 10_000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%.0fk", float64(n)/1000)
	}
	if n < 10_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	return fmt.Sprintf("%.0fM", float64(n)/1_000_000)
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s[:w]
	}
	return s + strings.Repeat(" ", w-len(s))
}

func truncStr(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w < 2 {
		return s[:w]
	}
	return s[:w-1] + "…"
}
