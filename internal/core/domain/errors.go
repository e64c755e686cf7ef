package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryNotReady means the city's station directory has not
	// completed its first build.
	ErrDirectoryNotReady = errors.New("station directory not ready")

	// ErrUnsupportedCity means the city is not present in configuration.
	ErrUnsupportedCity = errors.New("unsupported city")
)

// UpstreamError wraps a network failure, timeout, or non-success HTTP status
// from the vendor API. It is never retried by this layer.
type UpstreamError struct {
	City string
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed for city %q: %v", e.Op, e.City, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InvalidStationError means the vendor explicitly rejected a station query
// (success=false) or returned an empty payload for it.
type InvalidStationError struct {
	City string
	UID  string
}

func (e *InvalidStationError) Error() string {
	return fmt.Sprintf("vendor rejected station %q in city %q", e.UID, e.City)
}

// UnknownStationError means the external station id has no entry in the
// built directory for the city.
type UnknownStationError struct {
	City string
	ID   string
}

func (e *UnknownStationError) Error() string {
	return fmt.Sprintf("unknown station %q in city %q", e.ID, e.City)
}
