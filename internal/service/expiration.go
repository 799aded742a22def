package service

import (
	"errors"
	"time"
)

// Store-level TTLs shorter than this are rejected.
const minExpirationLead = 60 * time.Second

var ErrInvalidExpiration = errors.New("expiration must be at least 60 seconds in the future")

// ExpirationPolicy turns a requested expiration (unix seconds, 0 = none)
// into the one that is stored.
type ExpirationPolicy struct {
	PreviewMode bool
	PreviewTTL  time.Duration
	Now         func() time.Time
}

func (p ExpirationPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Validate checks an expiration supplied by a client.
func (p ExpirationPolicy) Validate(requested int64) error {
	if requested == 0 {
		return nil
	}
	if requested < p.now().Add(minExpirationLead).Unix() {
		return ErrInvalidExpiration
	}
	return nil
}

// Apply caps the expiration in preview mode, where every link is temporary.
func (p ExpirationPolicy) Apply(requested int64) int64 {
	if !p.PreviewMode {
		return requested
	}
	ttl := p.PreviewTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	limit := p.now().Add(ttl).Unix()
	if requested == 0 || requested > limit {
		return limit
	}
	return requested
}

func (p ExpirationPolicy) Resolve(requested int64) (int64, error) {
	if err := p.Validate(requested); err != nil {
		return 0, err
	}
	return p.Apply(requested), nil
}
