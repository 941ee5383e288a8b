package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestPoll(total int64) (*Poll, *bytes.Buffer, *fakeClock) {
	var buf bytes.Buffer
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p := NewPoll(&buf, "ain0", total, time.Second)
	p.now = clock.now
	p.start = clock.t
	return p, &buf, clock
}

func TestPollBar(t *testing.T) {
	p, buf, clock := newTestPoll(4)

	p.Observe(true, 2*time.Millisecond)
	if !strings.Contains(buf.String(), "1/4") {
		t.Fatalf("first poll not drawn: %q", buf.String())
	}

	buf.Reset()
	p.Observe(false, time.Millisecond)
	if buf.Len() != 0 {
		t.Fatalf("redraw inside interval: %q", buf.String())
	}

	clock.t = clock.t.Add(2 * time.Second)
	p.Observe(true, 1500*time.Microsecond)
	if !strings.Contains(buf.String(), "3/4") || !strings.Contains(buf.String(), "failed 1") {
		t.Fatalf("unexpected line %q", buf.String())
	}

	buf.Reset()
	p.Observe(true, 500*time.Microsecond)
	got := buf.String()
	if !strings.Contains(got, "["+strings.Repeat("=", barWidth)+"]") || !strings.Contains(got, "rtt 500us") {
		t.Fatalf("last poll should always draw a full bar: %q", got)
	}
}

func TestPollUnbounded(t *testing.T) {
	p, buf, _ := newTestPoll(0)
	p.Observe(true, 3*time.Millisecond)
	p.Finish()
	out := buf.String()
	if !strings.Contains(out, "ain0 1 polls") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{750 * time.Microsecond, "750us"},
		{42 * time.Millisecond, "42ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
