// Package progress draws a one-line status for long polling runs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 30

// Poll tracks a polling run: completed polls, failures and the latest RTT.
// With a zero total it shows a running count instead of a bar.
type Poll struct {
	out        io.Writer
	label      string
	total      int64
	done       int64
	failed     int64
	lastRTT    time.Duration
	start      time.Time
	lastRender time.Time
	interval   time.Duration
	now        func() time.Time
}

// NewPoll writes to out, redrawing at most every interval.
func NewPoll(out io.Writer, label string, total int64, interval time.Duration) *Poll {
	p := &Poll{out: out, label: label, total: total, interval: interval, now: time.Now}
	p.start = p.now()
	return p
}

// Observe records one poll.
func (p *Poll) Observe(ok bool, rtt time.Duration) {
	p.done++
	if !ok {
		p.failed++
	}
	p.lastRTT = rtt
	now := p.now()
	if now.Sub(p.lastRender) < p.interval && (p.total == 0 || p.done < p.total) {
		return
	}
	p.lastRender = now
	fmt.Fprint(p.out, "\r"+p.line(now))
}

// Finish draws the final state and ends the line.
func (p *Poll) Finish() {
	fmt.Fprint(p.out, "\r"+p.line(p.now())+"\n")
}

func (p *Poll) line(now time.Time) string {
	var b strings.Builder
	if p.label != "" {
		b.WriteString(p.label)
		b.WriteString(" ")
	}
	if p.total > 0 {
		filled := int(int64(barWidth) * p.done / p.total)
		if filled > barWidth {
			filled = barWidth
		}
		b.WriteString("[" + strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled) + "] ")
		fmt.Fprintf(&b, "%d/%d", p.done, p.total)
	} else {
		fmt.Fprintf(&b, "%d polls", p.done)
	}
	fmt.Fprintf(&b, " | failed %d | rtt %s | %s", p.failed, formatDuration(p.lastRTT), formatDuration(now.Sub(p.start)))
	return b.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
