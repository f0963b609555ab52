package airquality

import "errors"

// Error taxonomy shared by every component. Callers wrap these with
// fmt.Errorf("%w: ...") and match them with errors.Is.
var (
	// ErrValidation marks bad input rejected before any I/O.
	ErrValidation = errors.New("validation failed")

	// ErrUpstreamRejected is returned when a provider says the location is unknown (4xx).
	ErrUpstreamRejected = errors.New("upstream rejected location")

	// ErrCollectionFailed is returned when both providers failed transiently.
	ErrCollectionFailed = errors.New("collection failed")

	// ErrInsufficientHistory means not enough recent readings to build a feature vector.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInsufficientData means not enough history to train a model.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrModelUnavailable means no usable artifact exists for a horizon.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrDuplicateLocation is returned when (city, country) is already registered.
	ErrDuplicateLocation = errors.New("location already registered")

	// ErrNotFound is returned when a location or reading does not exist.
	ErrNotFound = errors.New("not found")
)
