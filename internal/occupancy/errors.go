package occupancy

import "errors"

var (
	// ErrEmptyIdentifier means the scan carried no plate.
	ErrEmptyIdentifier = errors.New("no plate found")
	// ErrUnknownArea means the target area is not registered.
	ErrUnknownArea = errors.New("unknown area")
	// ErrAreaFull aborts an admission into an area at capacity. Scan reports
	// it as a StatusFull result, not as an error.
	ErrAreaFull = errors.New("area is full")
	// ErrStorage wraps any persistence failure. Nothing from the scan is committed.
	ErrStorage = errors.New("storage error")
)
