package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/store"
)

const dateOnly = "2006-01-02"

// ParseFilters builds store filters from surface arguments. Dates are RFC 3339
// or YYYY-MM-DD; a date-only upper bound covers the whole day.
func ParseFilters(author, dateFrom, dateTo string, hasMedia bool) (store.Filters, error) {
	f := store.Filters{Author: strings.TrimSpace(author), HasMedia: hasMedia}

	if dateFrom != "" {
		t, _, err := parseDate(dateFrom)
		if err != nil {
			return f, errors.NewInvalidRequest("date_from: " + err.Error())
		}
		f.DateFrom = &t
	}
	if dateTo != "" {
		t, dayOnly, err := parseDate(dateTo)
		if err != nil {
			return f, errors.NewInvalidRequest("date_to: " + err.Error())
		}
		if dayOnly {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		f.DateTo = &t
	}
	return f, nil
}

func parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t, true, nil
}
