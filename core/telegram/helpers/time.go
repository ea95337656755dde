package helpers

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2006-01-02",
	"2006-1-2",
	"02/01/2006",
	"2/1/2006",
}

// Genitive month names as written in Russian dates ("5 марта 2025").
var ruMonths = map[string]time.Month{
	"января": time.January, "февраля": time.February, "марта": time.March,
	"апреля": time.April, "мая": time.May, "июня": time.June,
	"июля": time.July, "августа": time.August, "сентября": time.September,
	"октября": time.October, "ноября": time.November, "декабря": time.December,
}

// ParseFlexibleDate accepts numeric dates (day first or ISO) and Russian
// "5 марта 2025" forms, with an optional trailing "г." marker. The result is
// midnight in the local timezone.
func ParseFlexibleDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(strings.ToLower(input))
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "г."), "года"))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return parseRussianDate(s)
}

func parseRussianDate(s string) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := ruMonths[fields[1]]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil || year < 1000 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
