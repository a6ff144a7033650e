package risk

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// OfTime returns the time of day of t in its own location.
func OfTime(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var out time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		out += time.Duration(n) * units[i]
	}
	return TimeOfDay(out), nil
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Window is a time-of-day range, inclusive at both ends. A window whose
// start is after its end wraps past midnight.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (w Window) Contains(tod TimeOfDay) bool {
	if w.Start <= w.End {
		return w.Start <= tod && tod <= w.End
	}
	return tod >= w.Start || tod <= w.End
}

// Ended reports whether tod is past the end of a window that does not wrap.
func (w Window) Ended(tod TimeOfDay) bool {
	return tod > w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Windows is a union of ranges.
type Windows []Window

func (ws Windows) Contains(t time.Time) bool {
	tod := OfTime(t)
	for _, w := range ws {
		if w.Contains(tod) {
			return true
		}
	}
	return false
}

// ParseWindows builds windows from ["HH:MM", "HH:MM"] pairs.
func ParseWindows(pairs [][]string) (Windows, error) {
	out := make(Windows, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("trading window %d: expected [start, end], got %v", i, p)
		}
		start, err := ParseTimeOfDay(p[0])
		if err != nil {
			return nil, fmt.Errorf("trading window %d: %w", i, err)
		}
		end, err := ParseTimeOfDay(p[1])
		if err != nil {
			return nil, fmt.Errorf("trading window %d: %w", i, err)
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out, nil
}

// DefaultComputationWindow is where the session high and low are collected.
func DefaultComputationWindow() Window {
	return Window{Start: Clock(14, 30), End: Clock(15, 0)}
}

// DefaultTradingWindows are the ranges in which pending orders are generated
// and positions are entered. Activation and reactivation run at all times.
func DefaultTradingWindows() Windows {
	ws := Windows{
		{Clock(15, 5), Clock(15, 57)},
		{Clock(16, 3), Clock(16, 57)},
		{Clock(17, 3), Clock(17, 57)},
		{Clock(18, 3), Clock(18, 57)},
		{Clock(19, 3), Clock(19, 57)},
		{Clock(20, 3), Clock(20, 45)}, // closes before MOC
		{Clock(23, 10), Clock(23, 57)},
	}
	for h := 0; h <= 12; h++ {
		ws = append(ws, Window{Clock(h, 3), Clock(h, 57)})
	}
	// levels are discarded after this one
	return append(ws, Window{Clock(13, 3), Clock(13, 25)})
}
