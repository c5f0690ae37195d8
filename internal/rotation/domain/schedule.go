// Package domain models rotation schedules and the results of secret, DEK and
// dual-slot database credential rotations.
package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
)

const (
	StrategyGenerate = "generate"
	StrategyCallback = "callback"

	DefaultGracePeriodHours = 24
)

// Config is the caller-supplied part of a schedule.
type Config struct {
	IntervalDays     int
	GracePeriodHours int
	Automatic        bool
	Strategy         string
	CallbackURL      string
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IntervalDays, validation.Required, validation.Min(1), validation.Max(3650)),
		validation.Field(&c.GracePeriodHours, validation.Min(0), validation.Max(24*90)),
		validation.Field(&c.Strategy, validation.In(StrategyGenerate, StrategyCallback)),
		validation.Field(&c.CallbackURL, validation.When(c.Strategy == StrategyCallback, validation.Required)),
	)
}

// Schedule drives automatic rotation of one secret path.
type Schedule struct {
	ID               uuid.UUID
	SecretPath       string
	IntervalDays     int
	GracePeriodHours int
	Automatic        bool
	Strategy         string
	CallbackURL      string
	LastRotatedAt    *time.Time
	NextRotationAt   time.Time
	Active           bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSchedule creates an active schedule whose first rotation is one interval from now.
func NewSchedule(path string, cfg Config, actor string, now time.Time) *Schedule {
	s := &Schedule{
		ID:         uuid.Must(uuid.NewV7()),
		SecretPath: path,
		Active:     true,
		CreatedBy:  actor,
		CreatedAt:  now,
	}
	s.UpdateConfig(cfg, now)
	return s
}

// IsDue reports whether an automatic rotation should run now.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && s.Automatic && !now.Before(s.NextRotationAt)
}

// RecordRotation moves the schedule forward one interval from now.
func (s *Schedule) RecordRotation(now time.Time) {
	s.LastRotatedAt = &now
	s.NextRotationAt = now.AddDate(0, 0, s.IntervalDays)
	s.UpdatedAt = now
}

// UpdateConfig applies cfg and recomputes the next rotation from the last rotation, or now.
func (s *Schedule) UpdateConfig(cfg Config, now time.Time) {
	s.IntervalDays = cfg.IntervalDays
	s.GracePeriodHours = cfg.GracePeriodHours
	if s.GracePeriodHours == 0 {
		s.GracePeriodHours = DefaultGracePeriodHours
	}
	s.Automatic = cfg.Automatic
	s.Strategy = cfg.Strategy
	if s.Strategy == "" {
		s.Strategy = StrategyGenerate
	}
	s.CallbackURL = cfg.CallbackURL
	s.Active = true

	base := now
	if s.LastRotatedAt != nil {
		base = *s.LastRotatedAt
	}
	s.NextRotationAt = base.AddDate(0, 0, s.IntervalDays)
	s.UpdatedAt = now
}
