package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DateOrder resolves numeric dates such as 03/04/2024.
type DateOrder int

const (
	DayFirst DateOrder = iota
	MonthFirst
)

var textualLayouts = []string{
	"2 Jan 2006",
	"02 Jan 2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-06",
}

// dateOnly strips a trailing time of day such as "15/01/2024 10:31" or "2024-01-15T10:31:00".
func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i == 10 {
		return s[:i]
	}
	if i := strings.LastIndexByte(s, ' '); i > 0 && strings.Contains(s[i:], ":") {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func numericParts(s string) ([]int, []int, bool) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '.' || r == '-' })
	if len(parts) != 3 {
		return nil, nil, false
	}
	vals := make([]int, 3)
	widths := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, nil, false
		}
		vals[i], widths[i] = n, len(p)
	}
	return vals, widths, true
}

// detectDateOrder votes over samples; a component above 12 decides. Ties are day-first.
func detectDateOrder(samples []string) DateOrder {
	day, month := 0, 0
	for _, s := range samples {
		vals, widths, ok := numericParts(dateOnly(s))
		if !ok || widths[0] == 4 {
			continue
		}
		switch {
		case vals[0] > 12 && vals[1] <= 12:
			day++
		case vals[1] > 12 && vals[0] <= 12:
			month++
		}
	}
	if month > day {
		return MonthFirst
	}
	return DayFirst
}

// parseDate accepts ISO dates always, then the pinned layout, then numeric or textual forms.
func parseDate(raw, layout string, order DateOrder, serial bool) (time.Time, error) {
	s := dateOnly(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if layout != "" {
		t, err := time.Parse(layout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q does not match %q", raw, layout)
		}
		return utcDay(t), nil
	}
	if serial {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f < 2958466 {
			t, err := excelize.ExcelDateToTime(math.Floor(f), false)
			if err == nil {
				return utcDay(t), nil
			}
		}
	}
	if vals, widths, ok := numericParts(s); ok {
		var y, m, d int
		switch {
		case widths[0] == 4:
			y, m, d = vals[0], vals[1], vals[2]
		case order == MonthFirst:
			m, d, y = vals[0], vals[1], vals[2]
		default:
			d, m, y = vals[0], vals[1], vals[2]
		}
		if widths[0] != 4 && widths[2] <= 2 {
			y += 2000
		}
		if t, ok := validDate(y, m, d); ok {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	for _, l := range textualLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return utcDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

func validDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
