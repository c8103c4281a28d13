package infra

import "github.com/rs/zerolog"

// BestEffort runs a non-critical side mutation. A failure is logged as a
// warning and never propagated, so the critical path's error stays the one
// that is surfaced.
func BestEffort(logger zerolog.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("non-critical operation failed")
	}
}
