package license

import (
	"fmt"
	"time"
)

// DefaultTTL is how long an issued admin token stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// Manager issues and validates tokens for the current machine.
type Manager struct {
	secret  string
	machine func() (string, error)
	now     func() time.Time
}

func NewManager(secret string) *Manager {
	return &Manager{secret: secret, machine: MachineID, now: time.Now}
}

// WithMachineID replaces the machine id lookup.
func (m *Manager) WithMachineID(fn func() (string, error)) *Manager {
	m.machine = fn
	return m
}

// WithClock replaces the time source used for issuing and expiry checks.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue signs a token for subject bound to this machine.
func (m *Manager) Issue(subject string, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	mid, err := m.machine()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("machine id: %w", err)
	}
	issued := m.now()
	token, err = CreateToken(m.secret, subject, mid, issued, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, issued.Add(ttl), nil
}

// Validate checks the token and that it was issued on this machine.
func (m *Manager) Validate(token string) (*Claims, error) {
	claims, err := ParseToken(m.secret, token, m.now)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	mid, err := m.machine()
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}
	if claims.Machine != mid {
		return nil, ErrMachineMismatch
	}
	return claims, nil
}
