package shared

import (
	"time"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	return prefix + uuid.NewString()
}

type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  5,
		Multiplier:   2,
	}
}

func (b BackoffConfig) Normalize() BackoffConfig {
	def := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = def.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = def.MaxDelay
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = def.MaxAttempts
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	return b
}
