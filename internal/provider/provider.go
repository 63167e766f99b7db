// Package provider wraps third-party directions services behind one
// capability interface. Every call is fallible; the ETA pipeline
// treats failures as missing candidates, never as request errors.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the provider is not configured (no
	// credentials) and can never succeed.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrTimeout means the provider did not answer within the call
	// deadline.
	ErrTimeout = errors.New("provider timeout")
	// ErrBadResponse means the provider answered with a non-2xx status
	// or an unparseable body.
	ErrBadResponse = errors.New("provider error")
)

// Provider answers road distance and duration between two points.
type Provider interface {
	Name() string
	// DistanceDuration returns road distance in meters and duration in
	// seconds from origin to destination.
	DistanceDuration(ctx context.Context, originLat, originLon, destLat, destLon float64) (meters float64, seconds int, err error)
}

// wrapTransportErr maps a transport failure onto the provider error
// taxonomy.
func wrapTransportErr(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", name, ErrBadResponse, err)
}
