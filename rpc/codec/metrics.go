package codec

import (
	"errors"
	"github.com/VictoriaMetrics/metrics"
)

var (
	framesEncoded = metrics.NewCounter(`solo_frames_encoded_total`)
	framesDecoded = metrics.NewCounter(`solo_frames_decoded_total`)

	invalidMagic    = metrics.NewCounter(`solo_frames_invalid_total{reason="magic"}`)
	invalidVersion  = metrics.NewCounter(`solo_frames_invalid_total{reason="version"}`)
	invalidType     = metrics.NewCounter(`solo_frames_invalid_total{reason="type"}`)
	invalidLength   = metrics.NewCounter(`solo_frames_invalid_total{reason="length"}`)
	invalidChecksum = metrics.NewCounter(`solo_frames_invalid_total{reason="checksum"}`)
)

// countInvalid increments the invalid counter matching the validation error
func countInvalid(err error) {
	switch {
	case errors.Is(err, ErrMagicMismatch):
		invalidMagic.Inc()
	case errors.Is(err, ErrProtocolVersionTooNew):
		invalidVersion.Inc()
	case errors.Is(err, ErrUnexpectedMessageType):
		invalidType.Inc()
	case errors.Is(err, ErrOversizeContent):
		invalidLength.Inc()
	case errors.Is(err, ErrChecksumMismatch):
		invalidChecksum.Inc()
	}
}

// Stats is a snapshot of the process wide codec counters
type Stats struct {
	FramesEncoded uint64 `json:"frames_encoded"`
	FramesDecoded uint64 `json:"frames_decoded"`
	Invalid       uint64 `json:"invalid"`
}

// ReadStats returns the current codec counters
func ReadStats() Stats {
	return Stats{
		FramesEncoded: framesEncoded.Get(),
		FramesDecoded: framesDecoded.Get(),
		Invalid: invalidMagic.Get() + invalidVersion.Get() + invalidType.Get() +
			invalidLength.Get() + invalidChecksum.Get(),
	}
}
