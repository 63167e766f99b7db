package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginIssuesValidToken(t *testing.T) {
	s := NewTokenStore([]Credential{{Username: "ops", Password: "hunter2"}}, time.Hour)

	token, expires, err := s.Login("ops", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expires.After(time.Now()))

	user, ok := s.Validate(token)
	assert.True(t, ok)
	assert.Equal(t, "ops", user)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := NewTokenStore([]Credential{{Username: "ops", Password: "hunter2"}}, time.Hour)

	_, _, err := s.Login("ops", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, _, err = s.Login("nobody", "hunter2")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestTokenExpiry(t *testing.T) {
	s := NewTokenStore([]Credential{{Username: "ops", Password: "hunter2"}}, time.Minute)
	current := time.Unix(1_000_000, 0)
	s.now = func() time.Time { return current }

	token, _, err := s.Login("ops", "hunter2")
	require.NoError(t, err)

	_, ok := s.Validate(token)
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = s.Validate(token)
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	s := NewTokenStore([]Credential{{Username: "ops", Password: "hunter2"}}, time.Hour)

	token, _, err := s.Login("ops", "hunter2")
	require.NoError(t, err)

	s.Revoke(token)
	_, ok := s.Validate(token)
	assert.False(t, ok)
}

func TestVerifyBody(t *testing.T) {
	body := []byte(`{"vehicle_id":"bus-1","ts":1000,"lat":37.45,"lon":126.65}`)
	sig := SignBody("device-secret", body)

	assert.True(t, VerifyBody("device-secret", body, sig))
	assert.False(t, VerifyBody("device-secret", body, sig+"00"), "tampered signature")
	assert.False(t, VerifyBody("device-secret", append(body, ' '), sig), "tampered body")
	assert.False(t, VerifyBody("other-secret", body, sig), "wrong secret")
	assert.False(t, VerifyBody("", body, sig), "unsigned vehicle")
}
