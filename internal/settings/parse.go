package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/feedvault/internal/errors"
)

// ParseAssignment turns "key=value" into a delta, for the CLI --set flag.
// Keys use the JSON names (maxRecords, autoCleanup, ...).
func ParseAssignment(d *Delta, kv string) error {
	key, value, ok := strings.Cut(kv, "=")
	if !ok {
		return errors.NewInvalidRequest(fmt.Sprintf("expected key=value, got %q", kv))
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case "maxRecords":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalidValue(key, value)
		}
		d.MaxRecords = &n
	case "cleanupDays":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalidValue(key, value)
		}
		d.CleanupDays = &n
	case "warningThreshold", "criticalThreshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalidValue(key, value)
		}
		if key == "warningThreshold" {
			d.WarningThreshold = &f
		} else {
			d.CriticalThreshold = &f
		}
	case "autoCleanup", "saveVideos", "enableNotifications":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return invalidValue(key, value)
		}
		switch key {
		case "autoCleanup":
			d.AutoCleanup = &b
		case "saveVideos":
			d.SaveVideos = &b
		default:
			d.EnableNotifications = &b
		}
	default:
		return errors.NewInvalidRequest(fmt.Sprintf("unknown setting %q", key))
	}
	return nil
}

func invalidValue(key, value string) error {
	return errors.NewInvalidRequest(fmt.Sprintf("invalid value %q for %s", value, key))
}
