package temporal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a Cypher duration: months and days are kept apart from the
// sub-day part because neither has a fixed length in seconds.
type Duration struct {
	Months  int64
	Days    int64
	Seconds int64
	Nanos   int64
}

// String renders the ISO-8601 form Neo4j uses: P<y>Y<m>M<d>DT<h>H<m>M<s>S.
func (d Duration) String() string {
	var b strings.Builder
	b.WriteString("P")
	years, months := d.Months/12, d.Months%12
	if years != 0 {
		fmt.Fprintf(&b, "%dY", years)
	}
	if months != 0 {
		fmt.Fprintf(&b, "%dM", months)
	}
	if d.Days != 0 {
		fmt.Fprintf(&b, "%dD", d.Days)
	}
	if d.Seconds != 0 || d.Nanos != 0 || b.Len() == 1 {
		b.WriteString("T")
		h := d.Seconds / 3600
		m := (d.Seconds % 3600) / 60
		s := d.Seconds % 60
		if h != 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if m != 0 {
			fmt.Fprintf(&b, "%dM", m)
		}
		switch {
		case d.Nanos != 0:
			frac := strings.TrimRight(fmt.Sprintf("%09d", abs64(d.Nanos)), "0")
			sign := ""
			if d.Nanos < 0 && s == 0 {
				sign = "-"
			}
			fmt.Fprintf(&b, "%s%d.%sS", sign, s, frac)
		case s != 0 || (h == 0 && m == 0):
			fmt.Fprintf(&b, "%dS", s)
		}
	}
	return b.String()
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ParseDuration parses the ISO-8601 duration grammar, including weeks and
// fractional seconds: P1Y2M3DT4H5M6.7S, P2W, PT30M.
func ParseDuration(s string) (Duration, error) {
	orig := s
	fail := func() (Duration, error) {
		return Duration{}, fmt.Errorf("cannot parse duration %q", orig)
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return fail()
	}
	s = s[1:]
	var d Duration
	inTime := false
	for s != "" {
		if s[0] == 'T' {
			inTime = true
			s = s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.' || s[i] == ',') {
			i++
		}
		if i == 0 || i == len(s) {
			return fail()
		}
		numStr := strings.ReplaceAll(s[:i], ",", ".")
		unit := s[i]
		s = s[i+1:]
		val, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return fail()
		}
		whole := int64(val)
		switch {
		case !inTime && unit == 'Y':
			d.Months += whole * 12
		case !inTime && unit == 'M':
			d.Months += whole
		case !inTime && unit == 'W':
			d.Days += whole * 7
		case !inTime && unit == 'D':
			d.Days += whole
		case inTime && unit == 'H':
			d.Seconds += whole * 3600
			d.Nanos += int64((val - float64(whole)) * 3600e9)
		case inTime && unit == 'M':
			d.Seconds += whole * 60
			d.Nanos += int64((val - float64(whole)) * 60e9)
		case inTime && unit == 'S':
			d.Seconds += whole
			d.Nanos += int64((val - float64(whole)) * 1e9)
		default:
			return fail()
		}
	}
	d.Seconds += d.Nanos / 1e9
	d.Nanos %= 1e9
	if neg {
		d.Months, d.Days, d.Seconds, d.Nanos = -d.Months, -d.Days, -d.Seconds, -d.Nanos
	}
	return d, nil
}

// FromMap builds a duration from Cypher's component map:
// duration({days: 2, hours: 3}).
func FromMap(parts map[string]float64) Duration {
	var d Duration
	add := func(key string, months, days int64, secs float64) {
		v, ok := parts[key]
		if !ok {
			return
		}
		whole := int64(v)
		frac := v - float64(whole)
		d.Months += whole * months
		d.Days += whole * days
		if secs != 0 {
			d.Seconds += int64(v * secs)
			d.Nanos += int64(frac*secs*1e9) % 1e9
		} else {
			// Fractions of calendar units spill into the next-smaller unit.
			switch {
			case months != 0:
				d.Days += int64(frac * float64(months) * 30)
			case days != 0:
				d.Seconds += int64(frac * float64(days) * 86400)
			}
		}
	}
	add("years", 12, 0, 0)
	add("quarters", 3, 0, 0)
	add("months", 1, 0, 0)
	add("weeks", 0, 7, 0)
	add("days", 0, 1, 0)
	add("hours", 0, 0, 3600)
	add("minutes", 0, 0, 60)
	add("seconds", 0, 0, 1)
	if v, ok := parts["milliseconds"]; ok {
		d.Nanos += int64(v * 1e6)
	}
	if v, ok := parts["microseconds"]; ok {
		d.Nanos += int64(v * 1e3)
	}
	if v, ok := parts["nanoseconds"]; ok {
		d.Nanos += int64(v)
	}
	d.Seconds += d.Nanos / 1e9
	d.Nanos %= 1e9
	return d
}

// addMonthsClamped adds months clamping the day to the target month's end
// (Jan 31 + 1 month = Feb 29), the way calendar duration arithmetic works.
func addMonthsClamped(t time.Time, months int64) time.Time {
	total := int64(t.Year())*12 + int64(t.Month()) - 1 + months
	year := int(total / 12)
	month := int(total%12) + 1
	day := t.Day()
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, time.Month(month), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func (dt DateTime) utc() time.Time {
	t := time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hour, dt.Minute, dt.Second, dt.Nano, time.UTC)
	if dt.Offset != nil {
		t = t.Add(-time.Duration(*dt.Offset) * time.Second)
	}
	return t
}

// Between computes the duration from a to b with calendar-aware month and
// day components, the way Neo4j's duration.between does.
func Between(a, b DateTime) Duration {
	ta, tb := a.utc(), b.utc()
	neg := false
	if tb.Before(ta) {
		ta, tb = tb, ta
		neg = true
	}
	months := int64((tb.Year()-ta.Year())*12 + int(tb.Month()) - int(ta.Month()))
	anchor := addMonthsClamped(ta, months)
	if anchor.After(tb) {
		months--
		anchor = addMonthsClamped(ta, months)
	}
	rest := tb.Sub(anchor)
	days := int64(rest / (24 * time.Hour))
	rest -= time.Duration(days) * 24 * time.Hour
	d := Duration{
		Months:  months,
		Days:    days,
		Seconds: int64(rest / time.Second),
		Nanos:   int64(rest % time.Second),
	}
	if neg {
		d.Months, d.Days, d.Seconds, d.Nanos = -d.Months, -d.Days, -d.Seconds, -d.Nanos
	}
	return d
}

// InMonths truncates Between to whole months.
func InMonths(a, b DateTime) Duration {
	d := Between(a, b)
	return Duration{Months: d.Months}
}

// InDays truncates Between to whole days.
func InDays(a, b DateTime) Duration {
	ta, tb := a.utc(), b.utc()
	days := int64(tb.Sub(ta) / (24 * time.Hour))
	return Duration{Days: days}
}

// InSeconds expresses the exact elapsed time from a to b as seconds and
// nanoseconds.
func InSeconds(a, b DateTime) Duration {
	ta, tb := a.utc(), b.utc()
	diff := tb.Sub(ta)
	return Duration{Seconds: int64(diff / time.Second), Nanos: int64(diff % time.Second)}
}

// TotalSeconds flattens a duration to seconds for SQL datetime modifiers,
// counting a month as 30 days.
func (d Duration) TotalSeconds() int64 {
	return d.Months*30*86400 + d.Days*86400 + d.Seconds
}
