package license

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMachine(id string) func() (string, error) {
	return func() (string, error) { return id, nil }
}

func TestIssueAndValidate(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager("s3cret").WithMachineID(fixedMachine("host-a")).WithClock(func() time.Time { return now })

	token, exp, err := m.Issue("ops", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "host-a", claims.Machine)
}

func TestValidateRejects(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := NewManager("s3cret").WithMachineID(fixedMachine("host-a")).WithClock(clock)
	token, _, err := issuer.Issue("ops", time.Hour)
	require.NoError(t, err)

	t.Run("other machine", func(t *testing.T) {
		m := NewManager("s3cret").WithMachineID(fixedMachine("host-b")).WithClock(clock)
		_, err := m.Validate(token)
		assert.ErrorIs(t, err, ErrMachineMismatch)
	})
	t.Run("wrong secret", func(t *testing.T) {
		m := NewManager("other").WithMachineID(fixedMachine("host-a")).WithClock(clock)
		_, err := m.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})
	t.Run("expired", func(t *testing.T) {
		later := func() time.Time { return now.Add(2 * time.Hour) }
		m := NewManager("s3cret").WithMachineID(fixedMachine("host-a")).WithClock(later)
		_, err := m.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
	t.Run("empty secret", func(t *testing.T) {
		_, _, err := NewManager("").WithMachineID(fixedMachine("host-a")).Issue("ops", time.Hour)
		assert.ErrorIs(t, err, ErrNoSecret)
	})
}
