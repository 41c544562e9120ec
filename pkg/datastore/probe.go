package datastore

import (
	"context"

	"dbrouter/pkg/log"
)

// UnknownSize is reported when a backend's size could not be determined.
// It must never be read as "empty".
const UnknownSize int64 = -1

// ProbeSize returns the occupied size of the backend behind handle, or
// UnknownSize on any failure. It never returns another negative value and
// never panics.
func ProbeSize(ctx context.Context, handle Handle) (size int64) {
	if handle == nil {
		return UnknownSize
	}

	sizer, ok := handle.(Sizer)
	if !ok {
		log.Debug().Msg("Handle does not support size probing")
		return UnknownSize
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error().Interface("panic", recovered).Msg("Size probe panicked")
			size = UnknownSize
		}
	}()

	probed, err := sizer.SizeBytes(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Size probe failed")
		return UnknownSize
	}
	if probed < 0 {
		log.Warn().Int64("size", probed).Msg("Size probe returned a negative size")
		return UnknownSize
	}
	return probed
}
