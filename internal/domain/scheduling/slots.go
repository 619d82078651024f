package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
)

var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseClock parses a 24h "HH:MM" time of day and returns minutes after
// midnight. A single-digit hour is accepted.
func ParseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM (00:00-23:59)", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return h*60 + min, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock returns s in zero-padded "HH:MM" form.
func NormalizeClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// SlotGrid is a clinic day: slots start at Open and every Step minutes after
// it, up to but not including Close.
type SlotGrid struct {
	Open  int
	Close int
	Step  int
}

// DefaultSlotGrid is 09:00-17:00 in 30-minute slots.
var DefaultSlotGrid = SlotGrid{Open: 9 * 60, Close: 17 * 60, Step: 30}

func NewSlotGrid(open, close string, stepMinutes int) (SlotGrid, error) {
	o, err := ParseClock(open)
	if err != nil {
		return SlotGrid{}, fmt.Errorf("clinic open: %w", err)
	}
	c, err := ParseClock(close)
	if err != nil {
		return SlotGrid{}, fmt.Errorf("clinic close: %w", err)
	}
	if c <= o {
		return SlotGrid{}, fmt.Errorf("clinic close %s must be after open %s", close, open)
	}
	if stepMinutes <= 0 {
		return SlotGrid{}, fmt.Errorf("slot length must be positive, got %d", stepMinutes)
	}
	return SlotGrid{Open: o, Close: c, Step: stepMinutes}, nil
}

// Slots lists every slot of the day in ascending order.
func (g SlotGrid) Slots() []string {
	out := make([]string, 0, (g.Close-g.Open+g.Step-1)/g.Step)
	for m := g.Open; m < g.Close; m += g.Step {
		out = append(out, FormatClock(m))
	}
	return out
}

// Contains reports whether t is the start of a slot on this grid.
func (g SlotGrid) Contains(t string) bool {
	m, err := ParseClock(t)
	if err != nil {
		return false
	}
	return m >= g.Open && m < g.Close && (m-g.Open)%g.Step == 0
}

// Free returns the slots of the day that are not in booked. booked holds
// normalized "HH:MM" strings; off-grid entries are ignored.
func (g SlotGrid) Free(booked []string) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	all := g.Slots()
	free := make([]string, 0, len(all))
	for _, s := range all {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}
