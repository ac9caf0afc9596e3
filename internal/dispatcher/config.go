package dispatcher

import (
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Default settings.
const (
	DefaultDebounceInterval  = 250 * time.Millisecond
	DefaultHealthInterval    = 30 * time.Second
	DefaultManualModeTimeout = 2 * time.Minute
	DefaultPersistTimeout    = 5 * time.Second

	// manualModePoll is how often LocoManualMode checks the worker.
	manualModePoll = 50 * time.Millisecond

	// persistQueueSize bounds the writes waiting for the store.
	persistQueueSize = 256
)

// Config holds the interlocking settings of a Manager.
type Config struct {
	// TickInterval is the polling interval of every loco worker.
	TickInterval time.Duration

	// DebounceInterval is the period of the feedback debounce worker.
	DebounceInterval time.Duration

	// HealthInterval is the period of the command station health check.
	HealthInterval time.Duration

	// ManualModeTimeout bounds LocoManualMode when the caller's context
	// has no earlier deadline.
	ManualModeTimeout time.Duration

	// PersistTimeout bounds each store write.
	PersistTimeout time.Duration

	// NrOfTracksToReserve is 1 or 2: how far ahead automode trains reserve.
	NrOfTracksToReserve int

	// SelectRouteApproach orders candidate routes for tracks that do not
	// set their own approach.
	SelectRouteApproach interlock.SelectRouteApproach

	// StopOnFeedbackInFreeTrack stops the booster when a feedback fires on
	// a track nobody reserved.
	StopOnFeedbackInFreeTrack bool
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = loco.DefaultTickInterval
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = DefaultDebounceInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.ManualModeTimeout <= 0 {
		c.ManualModeTimeout = DefaultManualModeTimeout
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.NrOfTracksToReserve != 1 {
		c.NrOfTracksToReserve = loco.DefaultNrOfTracksToReserve
	}
	if c.SelectRouteApproach == interlock.SelectRouteSystemDefault {
		c.SelectRouteApproach = interlock.SelectRouteDoNotCare
	}
	return c
}
