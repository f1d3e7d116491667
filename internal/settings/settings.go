// Package settings holds the runtime storage policy consumed by the store and
// the quota monitor. Unlike config.Config it is persisted and mutated at runtime.
package settings

import (
	"fmt"

	"github.com/hpungsan/feedvault/internal/errors"
)

// Settings is the persisted storage policy.
type Settings struct {
	MaxRecords          int     `json:"maxRecords"`
	AutoCleanup         bool    `json:"autoCleanup"`
	CleanupDays         int     `json:"cleanupDays"`
	WarningThreshold    float64 `json:"warningThreshold"`
	CriticalThreshold   float64 `json:"criticalThreshold"`
	SaveVideos          bool    `json:"saveVideos"`
	EnableNotifications bool    `json:"enableNotifications"`
}

// Ceilings applied by Tighten when the quota goes critical.
const (
	TightMaxRecords  = 500
	TightCleanupDays = 14
)

// Defaults returns the settings created on first open.
func Defaults() Settings {
	return Settings{
		MaxRecords:          1000,
		AutoCleanup:         false,
		CleanupDays:         30,
		WarningThreshold:    0.8,
		CriticalThreshold:   0.95,
		SaveVideos:          true,
		EnableNotifications: true,
	}
}

// Validate checks ranges. Violations are INVALID_REQUEST errors.
func (s Settings) Validate() error {
	if s.MaxRecords < 1 {
		return errors.NewInvalidRequest("maxRecords must be at least 1")
	}
	if s.CleanupDays < 1 {
		return errors.NewInvalidRequest("cleanupDays must be at least 1")
	}
	if s.WarningThreshold <= 0 || s.WarningThreshold >= s.CriticalThreshold || s.CriticalThreshold > 1 {
		return errors.NewInvalidRequest(fmt.Sprintf(
			"thresholds must satisfy 0 < warning < critical <= 1 (got %.2f, %.2f)",
			s.WarningThreshold, s.CriticalThreshold))
	}
	return nil
}

// Delta is a partial update. Nil fields are left untouched.
type Delta struct {
	MaxRecords          *int     `json:"maxRecords,omitempty"`
	AutoCleanup         *bool    `json:"autoCleanup,omitempty"`
	CleanupDays         *int     `json:"cleanupDays,omitempty"`
	WarningThreshold    *float64 `json:"warningThreshold,omitempty"`
	CriticalThreshold   *float64 `json:"criticalThreshold,omitempty"`
	SaveVideos          *bool    `json:"saveVideos,omitempty"`
	EnableNotifications *bool    `json:"enableNotifications,omitempty"`
}

// IsEmpty reports whether the delta changes nothing.
func (d Delta) IsEmpty() bool {
	return d == Delta{}
}

// Apply returns s with d applied, or an error if the result is out of range.
// s itself is never modified.
func (s Settings) Apply(d Delta) (Settings, error) {
	out := s
	if d.MaxRecords != nil {
		out.MaxRecords = *d.MaxRecords
	}
	if d.AutoCleanup != nil {
		out.AutoCleanup = *d.AutoCleanup
	}
	if d.CleanupDays != nil {
		out.CleanupDays = *d.CleanupDays
	}
	if d.WarningThreshold != nil {
		out.WarningThreshold = *d.WarningThreshold
	}
	if d.CriticalThreshold != nil {
		out.CriticalThreshold = *d.CriticalThreshold
	}
	if d.SaveVideos != nil {
		out.SaveVideos = *d.SaveVideos
	}
	if d.EnableNotifications != nil {
		out.EnableNotifications = *d.EnableNotifications
	}
	if err := out.Validate(); err != nil {
		return s, err
	}
	return out, nil
}

// Tighten returns s with growth-limiting ceilings applied.
func (s Settings) Tighten() Settings {
	if s.MaxRecords > TightMaxRecords {
		s.MaxRecords = TightMaxRecords
	}
	if s.CleanupDays > TightCleanupDays {
		s.CleanupDays = TightCleanupDays
	}
	s.AutoCleanup = true
	s.SaveVideos = false
	return s
}
