package ui

import (
	"strings"
	"unicode/utf8"
)

// pager is a cursor over n rows with a window of vis rows starting at offset.
type pager struct {
	cursor int
	offset int
}

func (p *pager) moveBy(delta, n, vis int) {
	p.cursor = min(max(p.cursor+delta, 0), max(n-1, 0))
	p.show(vis)
}

func (p *pager) toStart() {
	p.cursor, p.offset = 0, 0
}

func (p *pager) toEnd(n, vis int) {
	p.cursor = max(n-1, 0)
	p.show(vis)
}

// clamp keeps the cursor on a row after the row set shrank.
func (p *pager) clamp(n, vis int) {
	if n == 0 {
		p.toStart()
		return
	}
	p.moveBy(0, n, vis)
}

func (p *pager) show(vis int) {
	switch {
	case p.cursor < p.offset:
		p.offset = p.cursor
	case p.cursor >= p.offset+vis:
		p.offset = p.cursor - vis + 1
	}
}

// sparkBlocks are the eight levels of a one-character bar.
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

const rateSlots = 60

// rateHistory keeps the SYN count delta of the last rateSlots stats ticks.
type rateHistory struct {
	deltas [rateSlots]uint64
	next   int
	n      int
	last   uint64
}

// observe records the growth of a cumulative counter since the last call.
func (r *rateHistory) observe(total uint64) {
	var d uint64
	if total > r.last {
		d = total - r.last
	}
	r.last = total
	r.deltas[r.next] = d
	r.next = (r.next + 1) % rateSlots
	if r.n < rateSlots {
		r.n++
	}
}

// each visits the recorded deltas oldest first.
func (r *rateHistory) each(fn func(uint64)) {
	start := (r.next - r.n + rateSlots) % rateSlots
	for i := range r.n {
		fn(r.deltas[(start+i)%rateSlots])
	}
}

func (r *rateHistory) render() string {
	if r.n == 0 {
		return ""
	}
	var peak uint64 = 1
	r.each(func(d uint64) { peak = max(peak, d) })

	var sb strings.Builder
	sb.Grow(r.n * utf8.UTFMax)
	top := uint64(len(sparkBlocks) - 1)
	r.each(func(d uint64) {
		sb.WriteRune(sparkBlocks[min(d*top/peak, top)])
	})
	return sb.String()
}
