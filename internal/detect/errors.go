package detect

import "errors"

// Sentinel errors for the detection engine. Callers match with errors.Is.
var (
	// ErrDataUnavailable wraps storage failures while reading observations or
	// writing records. The affected pair is retried on the next tick.
	ErrDataUnavailable = errors.New("telemetry data unavailable")

	// ErrInsufficientSample means a window held fewer than two observations,
	// so the sample standard deviation is undefined. A normal skip, not a
	// failure.
	ErrInsufficientSample = errors.New("insufficient sample")

	// ErrDuplicateRejected means an anomaly record for the same source
	// observation already exists. Expected under overlapping runs; callers
	// treat it as success.
	ErrDuplicateRejected = errors.New("duplicate anomaly record rejected")

	// ErrPairTimeout means a single pair exceeded its detection deadline.
	// Other pairs in the run are unaffected.
	ErrPairTimeout = errors.New("pair detection timed out")

	// ErrInvalidConfiguration means the engine configuration cannot produce
	// correct results. Fatal at startup, never raised at run time.
	ErrInvalidConfiguration = errors.New("invalid detection configuration")
)
