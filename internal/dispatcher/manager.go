package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/layout"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Deps holds the collaborators of a Manager. Everything except Logger may
// be nil: without Control commands are only logged, without Hub nothing is
// broadcast, without Telemetry nothing is recorded and without Store
// nothing survives a restart.
type Deps struct {
	Control   Control
	Hub       Hub
	Telemetry Telemetry
	Store     Store
	Logger    Logger
}

// pinKey addresses a feedback input on a command station.
type pinKey struct {
	control string
	pin     uint32
}

// persistJob is a store write queued for the persist worker.
type persistJob struct {
	what string
	run  func(ctx context.Context) error
}

// Manager owns every object of the layout and is the dispatcher the
// interlocking objects and locos call back into. It implements both
// interlock.Dispatcher and loco.Dispatcher.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	cfg       Config
	control   Control
	hub       Hub
	telemetry Telemetry
	store     Store
	logger    Logger

	tracks      *registry[interlock.Track]
	routes      *registry[interlock.Route]
	feedbacks   *registry[interlock.Feedback]
	counters    *registry[interlock.Counter]
	accessories *registry[interlock.Accessory]
	clusters    *registry[interlock.Cluster]
	locos       *registry[loco.Loco]

	pinsMu sync.RWMutex
	pins   map[pinKey]*interlock.Feedback

	// decoders maps loco ids to their decoder. It is read on the drive
	// path, where the loco's own accessors must not be called.
	decodersMu sync.RWMutex
	decoders   map[interlock.ObjectID]Decoder

	boosterMu sync.Mutex
	booster   interlock.BoosterState

	// usage holds the last route counter handed to the store.
	usageMu sync.Mutex
	usage   map[interlock.ObjectID]uint64

	controlHealthy atomic.Bool
	built          atomic.Bool

	persist chan persistJob

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a dispatcher without objects. Build fills it from a layout.
//
// Parameters:
//   - cfg: Interlocking settings; zero fields take the defaults
//   - deps: Collaborators; see Deps for which may be nil
func New(cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	m := &Manager{
		cfg:         cfg.withDefaults(),
		control:     deps.Control,
		hub:         deps.Hub,
		telemetry:   deps.Telemetry,
		store:       deps.Store,
		logger:      logger,
		tracks:      newRegistry[interlock.Track](),
		routes:      newRegistry[interlock.Route](),
		feedbacks:   newRegistry[interlock.Feedback](),
		counters:    newRegistry[interlock.Counter](),
		accessories: newRegistry[interlock.Accessory](),
		clusters:    newRegistry[interlock.Cluster](),
		locos:       newRegistry[loco.Loco](),
		pins:        make(map[pinKey]*interlock.Feedback),
		decoders:    make(map[interlock.ObjectID]Decoder),
		booster:     interlock.BoosterStop,
		usage:       make(map[interlock.ObjectID]uint64),
		persist:     make(chan persistJob, persistQueueSize),
	}
	m.controlHealthy.Store(deps.Control != nil)
	return m
}

// ─── Build ──────────────────────────────────────────────────────────────────

// Build creates every object of l and places the locos on their saved
// tracks. It may be called once, before Start.
//
// Objects are created bottom-up so that every reference resolves:
// clusters, counters and accessories first, then tracks, feedbacks,
// routes and finally locos.
func (m *Manager) Build(l *layout.Layout) error {
	if err := layout.Validate(l); err != nil {
		return fmt.Errorf("validating layout: %w", err)
	}
	if !m.built.CompareAndSwap(false, true) {
		return ErrAlreadyBuilt
	}

	for _, c := range l.Clusters {
		m.clusters.add(c.ID, interlock.NewCluster(c, m))
	}
	for _, c := range l.Counters {
		m.counters.add(c.ID, interlock.NewCounter(c))
	}
	for _, c := range l.Accessories {
		m.accessories.add(c.ID, interlock.NewAccessory(c, m))
	}

	for _, c := range l.Tracks {
		m.tracks.add(c.ID, interlock.NewTrack(c, m, m.logger))
		if cluster := m.clusters.get(c.Cluster); cluster != nil {
			cluster.AddTrack(c.ID)
		}
	}

	for _, c := range l.Feedbacks {
		f := interlock.NewFeedback(c, m, m.logger)
		m.feedbacks.add(c.ID, f)
		if c.ControlID != "" {
			m.pinsMu.Lock()
			m.pins[pinKey{control: c.ControlID, pin: c.Pin}] = f
			m.pinsMu.Unlock()
		}
		if track := m.tracks.get(c.TrackID); track != nil {
			track.BindFeedback(c.ID)
		}
	}

	for _, c := range l.Routes {
		route, err := interlock.NewRoute(c, m, m.logger)
		if err != nil {
			return fmt.Errorf("creating route %d: %w", c.ID, err)
		}
		if usage, ok := l.RouteUsage[c.ID]; ok {
			route.SetUsage(usage.LastUsed, usage.Counter)
			m.usageMu.Lock()
			m.usage[c.ID] = usage.Counter
			m.usageMu.Unlock()
		}
		m.routes.add(c.ID, route)
		if track := m.tracks.get(c.FromTrack); track != nil {
			track.AddRoute(c.ID)
		}
	}

	for _, c := range l.Locos {
		m.decodersMu.Lock()
		m.decoders[c.ID] = Decoder{ControlID: c.ControlID, Protocol: c.Protocol, Address: c.Address}
		m.decodersMu.Unlock()

		lc := loco.New(c, m, m.cfg.TickInterval, m.logger)
		m.locos.add(c.ID, lc)
		if c.TrackID != 0 {
			m.placeLoco(lc, c.TrackID, c.Orientation)
		}
	}

	m.logger.Info("layout built",
		"tracks", m.tracks.len(),
		"routes", m.routes.len(),
		"feedbacks", m.feedbacks.len(),
		"locos", m.locos.len(),
	)
	return nil
}

// placeLoco reserves and locks the track a loco was saved on. A loco whose
// track cannot be taken stays in the registry without a track reservation.
func (m *Manager) placeLoco(lc *loco.Loco, trackID interlock.ObjectID, o interlock.Orientation) {
	track := m.tracks.get(trackID)
	if track == nil {
		return
	}
	h := lc.Handle()
	if err := track.ReserveForce(h); err != nil {
		m.logger.Warn("loco track taken", "loco_id", lc.ID(), "track_id", trackID, "error", err)
		return
	}
	if err := track.Lock(h); err != nil {
		m.logger.Warn("loco track not locked", "loco_id", lc.ID(), "track_id", trackID, "error", err)
	}
	if err := track.SetLocoOrientation(o); err != nil {
		m.logger.Warn("loco orientation not set", "loco_id", lc.ID(), "track_id", trackID, "error", err)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Start runs the debounce, health and persist workers until ctx is
// cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.debounceLoop(gctx) })
	g.Go(func() error { return m.healthLoop(gctx) })
	g.Go(func() error { return m.persistLoop(gctx) })

	m.cancel = cancel
	m.group = g
	m.logger.Info("dispatcher started",
		"debounce_interval", m.cfg.DebounceInterval.String(),
		"tracks_to_reserve", m.cfg.NrOfTracksToReserve,
	)
	return nil
}

// Stop halts every loco, puts it in manual mode and stops the workers.
// Reservations are kept so the saved positions stay valid. Writes still
// queued for the store are flushed before Stop returns.
func (m *Manager) Stop() error {
	for _, lc := range m.locos.list() {
		lc.SetSpeed(loco.SpeedMin)
		lc.ForceManualMode()
	}

	m.runMu.Lock()
	cancel, g := m.cancel, m.group
	m.cancel, m.group = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Info("dispatcher stopped")
	return nil
}

// debounceLoop advances every feedback's free countdown once per interval.
func (m *Manager) debounceLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.DebounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, f := range m.feedbacks.list() {
				f.Debounce()
			}
		}
	}
}

// healthLoop checks the command stations and logs transitions.
func (m *Manager) healthLoop(ctx context.Context) error {
	if m.control == nil {
		return nil
	}
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkControl(ctx)
		}
	}
}

func (m *Manager) checkControl(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthInterval/2)
	defer cancel()
	err := m.control.HealthCheck(checkCtx)
	healthy := err == nil
	if m.controlHealthy.Swap(healthy) == healthy {
		return
	}
	if healthy {
		m.logger.Info("command stations reachable again")
	} else {
		m.logger.Warn("command stations unreachable", "error", err)
	}
}

// ControlHealthy reports the result of the last command station check.
func (m *Manager) ControlHealthy() bool {
	return m.controlHealthy.Load()
}

// persistLoop hands queued writes to the store. On shutdown it drains the
// queue so final positions are not lost.
func (m *Manager) persistLoop(ctx context.Context) error {
	for {
		select {
		case job := <-m.persist:
			m.runPersist(context.WithoutCancel(ctx), job)
		case <-ctx.Done():
			for {
				select {
				case job := <-m.persist:
					m.runPersist(context.WithoutCancel(ctx), job)
				default:
					return nil
				}
			}
		}
	}
}

func (m *Manager) runPersist(ctx context.Context, job persistJob) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
	defer cancel()
	if err := job.run(ctx); err != nil {
		m.logger.Error("persisting state failed", "what", job.what, "error", err)
	}
}

// enqueuePersist queues a store write. It never blocks; when the queue is
// full the write is dropped and logged.
func (m *Manager) enqueuePersist(what string, run func(ctx context.Context) error) {
	if m.store == nil {
		return
	}
	select {
	case m.persist <- persistJob{what: what, run: run}:
	default:
		m.logger.Warn("persist queue full, dropping write", "what", what)
	}
}

// ─── Lookups ────────────────────────────────────────────────────────────────

func (m *Manager) GetTrack(id interlock.ObjectID) *interlock.Track         { return m.tracks.get(id) }
func (m *Manager) GetRoute(id interlock.ObjectID) *interlock.Route         { return m.routes.get(id) }
func (m *Manager) GetFeedback(id interlock.ObjectID) *interlock.Feedback   { return m.feedbacks.get(id) }
func (m *Manager) GetCounter(id interlock.ObjectID) *interlock.Counter     { return m.counters.get(id) }
func (m *Manager) GetAccessory(id interlock.ObjectID) *interlock.Accessory { return m.accessories.get(id) }
func (m *Manager) GetCluster(id interlock.ObjectID) *interlock.Cluster     { return m.clusters.get(id) }
func (m *Manager) GetLoco(id interlock.ObjectID) *loco.Loco                { return m.locos.get(id) }

// FeedbackByPin returns the feedback wired to pin of a command station.
func (m *Manager) FeedbackByPin(control string, pin uint32) *interlock.Feedback {
	m.pinsMu.RLock()
	defer m.pinsMu.RUnlock()
	return m.pins[pinKey{control: control, pin: pin}]
}

// locoFor resolves a holder handle to its loco. Other holders yield nil.
func (m *Manager) locoFor(h interlock.Handle) *loco.Loco {
	if h.Type != interlock.ObjectTypeLoco {
		return nil
	}
	return m.locos.get(h.ID)
}

func (m *Manager) decoder(id interlock.ObjectID) (Decoder, bool) {
	m.decodersMu.RLock()
	defer m.decodersMu.RUnlock()
	d, ok := m.decoders[id]
	return d, ok
}

// ─── Settings ───────────────────────────────────────────────────────────────

func (m *Manager) NrOfTracksToReserve() int                           { return m.cfg.NrOfTracksToReserve }
func (m *Manager) SelectRouteApproach() interlock.SelectRouteApproach { return m.cfg.SelectRouteApproach }
func (m *Manager) StopOnFeedbackInFreeTrack() bool                    { return m.cfg.StopOnFeedbackInFreeTrack }
