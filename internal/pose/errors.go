package pose

import (
	"errors"
	"math"
)

var (
	// ErrMalformedFrame is returned when a landmark frame is too short or holds non-finite values.
	ErrMalformedFrame = errors.New("malformed landmark frame")

	// ErrUnknownEmotion is returned when parsing an emotion name fails.
	ErrUnknownEmotion = errors.New("unknown emotion")

	// ErrInvalidAxis is returned for an axis index outside 0..2.
	ErrInvalidAxis = errors.New("axis index out of range")

	// ErrInvalidKind is returned for a transform kind other than rotation or position.
	ErrInvalidKind = errors.New("invalid transform kind")

	// ErrInvalidValue is returned for NaN or infinite offset values.
	ErrInvalidValue = errors.New("offset value is not finite")
)

const epsilon = 1e-9

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
