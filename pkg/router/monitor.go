package router

import (
	"context"
	"sync"
	"time"

	"dbrouter/pkg/datastore"
	"dbrouter/pkg/log"
	"dbrouter/pkg/metrics"
)

const (
	defaultCheckInterval        = time.Hour
	defaultStartupProbeDelay    = 5 * time.Second
	defaultStartupEvaluateDelay = 10 * time.Second
)

// MonitorConfig controls the capacity monitor schedule.
type MonitorConfig struct {
	CheckInterval        time.Duration
	StartupProbeDelay    time.Duration
	StartupEvaluateDelay time.Duration
}

// Monitor periodically probes backend sizes and fails the active backend
// over when it reaches the capacity limit.
type Monitor struct {
	router *Router
	cfg    MonitorConfig

	mu      sync.Mutex
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a monitor for router. Zero durations use the defaults.
func NewMonitor(router *Router, cfg MonitorConfig) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.StartupProbeDelay <= 0 {
		cfg.StartupProbeDelay = defaultStartupProbeDelay
	}
	if cfg.StartupEvaluateDelay <= 0 {
		cfg.StartupEvaluateDelay = defaultStartupEvaluateDelay
	}
	return &Monitor{router: router, cfg: cfg}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopCh = make(chan struct{})
	m.running = true

	m.wg.Add(1)
	go m.loop(loopCtx, m.stopCh)

	log.Info().
		Int("backend_count", m.router.Len()).
		Dur("interval", m.cfg.CheckInterval).
		Dur("startup_probe_delay", m.cfg.StartupProbeDelay).
		Dur("startup_evaluate_delay", m.cfg.StartupEvaluateDelay).
		Msg("Capacity monitor started")
}

// Stop halts the loop and waits for an in-flight evaluation to finish.
// Handles must only be closed after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	log.Info().Msg("Capacity monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	probeTimer := time.NewTimer(m.cfg.StartupProbeDelay)
	defer probeTimer.Stop()
	evaluateTimer := time.NewTimer(m.cfg.StartupEvaluateDelay)
	defer evaluateTimer.Stop()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-probeTimer.C:
			m.PopulateSizes(ctx)
		case <-evaluateTimer.C:
			m.Tick(ctx)
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// PopulateSizes connects to and probes every available backend once. It
// runs shortly after startup, when no size history exists yet.
func (m *Monitor) PopulateSizes(ctx context.Context) {
	if !m.router.switching.CompareAndSwap(false, true) {
		log.Debug().Msg("Capacity evaluation in progress, skipping size population")
		return
	}
	defer m.router.switching.Store(false)

	m.router.populateAll(ctx)
	log.Info().Msg("Backend sizes populated")
}

// Tick runs one capacity evaluation. If another evaluation is in progress
// it returns OutcomeSkipped without doing anything.
func (m *Monitor) Tick(ctx context.Context) Outcome {
	r := m.router
	if !r.switching.CompareAndSwap(false, true) {
		log.Debug().Msg("Capacity evaluation already running, skipping tick")
		metrics.MonitorTicksTotal.WithLabelValues(OutcomeSkipped.String()).Inc()
		return OutcomeSkipped
	}
	defer r.switching.Store(false)

	outcome := m.evaluate(ctx)
	metrics.MonitorTicksTotal.WithLabelValues(outcome.String()).Inc()
	if handle := r.currentActiveHandle(); handle != nil {
		if statser, ok := handle.(datastore.Statser); ok {
			metrics.UpdateDBPoolStats(statser.Stats())
		}
	}
	return outcome
}

func (m *Monitor) evaluate(ctx context.Context) Outcome {
	r := m.router
	r.refreshOpened(ctx)

	active := r.ActiveIndex()
	size := r.backends[active].size()
	thresholds := r.thresholds

	switch classify(size, thresholds) {
	case levelUnknown:
		log.Warn().Int("active_index", active).Msg("Active backend size unknown, skipping capacity evaluation")
		return OutcomeUnknown
	case levelHealthy:
		log.Debug().Int("active_index", active).Str("size", log.Bytes(size)).Msg("Active backend within capacity")
		return OutcomeHealthy
	case levelWarning:
		log.Warn().
			Int("active_index", active).
			Str("size", log.Bytes(size)).
			Str("warn", log.Bytes(thresholds.WarnBytes)).
			Str("limit", log.Bytes(thresholds.LimitBytes)).
			Msg("Active backend approaching capacity limit")
		return OutcomeWarning
	case levelFull:
	}

	log.Warn().
		Int("active_index", active).
		Str("size", log.Bytes(size)).
		Str("limit", log.Bytes(thresholds.LimitBytes)).
		Msg("Active backend reached capacity limit, looking for a replacement")

	candidate, found := firstFit(r.Len(), active, thresholds.LimitBytes, func(index int) (int64, bool) {
		return r.candidateSize(ctx, index)
	})
	if !found {
		// Fail open: keep serving from the full backend.
		log.Error().
			Err(ErrNoCandidate).
			Int("active_index", active).
			Int("backend_count", r.Len()).
			Msg("No backend with free capacity, continuing on the active backend")
		return OutcomeNoCandidate
	}

	if _, err := r.switchTo(ctx, candidate, triggerCapacity); err != nil {
		log.Error().Err(err).Int("candidate", candidate).Msg("Capacity failover failed, will retry next cycle")
		return OutcomeSwitchFailed
	}
	return OutcomeSwitched
}
