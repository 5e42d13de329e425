package schedule

import (
	"strconv"
	"strings"
	"time"
)

// NextRunEstimate returns an approximate next fire time for a cron
// expression, for UI display only. It recognizes a few common shapes and
// falls back to one hour from now for anything else. Firing decisions
// never depend on this value; the cron entry owns those.
func NextRunEstimate(schedule string, now time.Time) time.Time {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return now.Add(time.Hour)
	}

	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if dom != "*" || month != "*" {
		return now.Add(time.Hour)
	}

	// "every N minutes": */N * * * *
	if n, ok := parseStep(minute); ok && hour == "*" && dow == "*" {
		return nextMinuteMultiple(now, n)
	}

	// "every N hours at minute M": M */N * * *
	if n, ok := parseStep(hour); ok && dow == "*" {
		if m, err := strconv.Atoi(minute); err == nil && m >= 0 && m < 60 {
			return nextHourMultiple(now, n, m)
		}
	}

	// "fixed minute/hour, optionally restricted to a day-of-week set": M H * * dowSet
	m, errM := strconv.Atoi(minute)
	h, errH := strconv.Atoi(hour)
	if errM == nil && errH == nil && m >= 0 && m < 60 && h >= 0 && h < 24 {
		if days, ok := parseDowSet(dow); ok {
			return nextFixedTime(now, h, m, days)
		}
	}

	return now.Add(time.Hour)
}

// parseStep parses a "*/N" field
func parseStep(field string) (int, bool) {
	if !strings.HasPrefix(field, "*/") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(field, "*/"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseDowSet parses a day-of-week field: "*", a single day, a comma
// list, or a range (e.g. "1-5"). 7 is accepted as Sunday.
func parseDowSet(field string) (map[time.Weekday]bool, bool) {
	days := make(map[time.Weekday]bool)
	if field == "*" {
		for d := time.Sunday; d <= time.Saturday; d++ {
			days[d] = true
		}
		return days, true
	}

	for _, part := range strings.Split(field, ",") {
		if from, to, ok := strings.Cut(part, "-"); ok {
			lo, errLo := parseDowValue(from)
			hi, errHi := parseDowValue(to)
			if errLo != nil || errHi != nil || lo > hi {
				return nil, false
			}
			for d := lo; d <= hi; d++ {
				days[time.Weekday(d%7)] = true
			}
			continue
		}

		d, err := parseDowValue(part)
		if err != nil {
			return nil, false
		}
		days[time.Weekday(d%7)] = true
	}

	return days, len(days) > 0
}

func parseDowValue(s string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d < 0 || d > 7 {
		return 0, strconv.ErrRange
	}
	return d, nil
}

func nextMinuteMultiple(now time.Time, n int) time.Time {
	t := now.Truncate(time.Minute)
	for {
		t = t.Add(time.Minute)
		if t.Minute()%n == 0 {
			return t
		}
	}
}

func nextHourMultiple(now time.Time, n, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	for !t.After(now) || t.Hour()%n != 0 {
		t = t.Add(time.Hour)
	}
	return t
}

func nextFixedTime(now time.Time, hour, minute int, days map[time.Weekday]bool) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	// Strictly after now, skipping excluded weekdays; bounded by one week
	for i := 0; i < 8; i++ {
		if t.After(now) && days[t.Weekday()] {
			return t
		}
		t = t.AddDate(0, 0, 1)
	}
	return now.Add(time.Hour)
}
