package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap"
)

// ErrGameNotFound is returned when a game id is neither live nor stored.
var ErrGameNotFound = errors.New("game not found")

// SaveRecord is the persisted form of a live match.
type SaveRecord struct {
	GameID   string
	State    []byte
	Turn     int
	Checksum string
}

// PlayerStats is one player's line in a finished match record.
type PlayerStats struct {
	PlayerID          int
	Score             int
	ResourcesGathered int
	UnitsAlive        int
	UnitsLost         int
	Energy            int
}

// MatchRecord describes a finished match.
type MatchRecord struct {
	GameID     string
	WinnerID   *int
	Reason     EndReason
	Turns      int
	FinalState []byte
	Players    []PlayerStats
}

// Store persists live matches and finished match history.
type Store interface {
	SaveGame(ctx context.Context, rec SaveRecord) error
	// LoadGame returns ErrGameNotFound when nothing is stored under gameID.
	LoadGame(ctx context.Context, gameID string) (*SaveRecord, error)
	DeleteGame(ctx context.Context, gameID string) error
	RecordMatch(ctx context.Context, rec MatchRecord) error
}

// ManagerOptions configures a Manager. Store and Recorder are optional.
type ManagerOptions struct {
	Config   Config
	Store    Store
	Recorder *ReplayRecorder
	// FlushTimeout bounds the final flush when Run exits.
	FlushTimeout time.Duration
}

type session struct {
	mu       sync.Mutex
	game     *Game
	finished bool
}

// Manager owns the live matches of a server. Each match is guarded by its own
// mutex; writes to the store are coalesced and performed by Run.
type Manager struct {
	logger   *zap.Logger
	cfg      Config
	store    Store
	recorder *ReplayRecorder
	timeout  time.Duration

	mu       sync.RWMutex
	sessions map[string]*session

	pendingMu sync.Mutex
	saves     map[string]SaveRecord
	matches   []MatchRecord
	wake      chan struct{}
}

// NewManager creates a manager.
func NewManager(opts ManagerOptions, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.FlushTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		logger:   logger,
		cfg:      opts.Config,
		store:    opts.Store,
		recorder: opts.Recorder,
		timeout:  timeout,
		sessions: make(map[string]*session),
		saves:    make(map[string]SaveRecord),
		wake:     make(chan struct{}, 1),
	}
}

// Create starts a new match and returns its id.
func (m *Manager) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	g, err := New(id, m.cfg, m.logger)
	if err != nil {
		return "", err
	}

	s := &session{game: g}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.StartRecording(id)
	}
	s.mu.Lock()
	m.afterMutation(s)
	s.mu.Unlock()

	m.logger.Info("game registered", zap.String("game_id", id))
	return id, nil
}

// Load makes a stored match live again. A match that is already live is
// returned as is.
func (m *Manager) Load(ctx context.Context, id string) error {
	if _, ok := m.session(id); ok {
		return nil
	}
	if m.store == nil {
		return violation.Newf(violation.CodeNotFound, "game %s not found", id)
	}

	rec, err := m.store.LoadGame(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			return violation.Newf(violation.CodeNotFound, "game %s not found", id)
		}
		return fmt.Errorf("load game %s: %w", id, err)
	}
	g, err := Deserialize(rec.State, m.cfg, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = &session{game: g, finished: g.Result() != nil}
	}
	return nil
}

func (m *Manager) session(id string) (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// With runs fn with exclusive access to the match. When fn succeeds the match
// is queued for saving and recorded for replay.
func (m *Manager) With(id string, fn func(*Game) error) error {
	s, ok := m.session(id)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "game %s not found", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.game); err != nil {
		return err
	}
	m.afterMutation(s)
	return nil
}

// View runs fn with exclusive access but queues nothing. fn must not mutate.
func (m *Manager) View(id string, fn func(*Game)) error {
	s, ok := m.session(id)
	if !ok {
		return violation.Newf(violation.CodeNotFound, "game %s not found", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.game)
	return nil
}

// Snapshot returns a detached snapshot of the match.
func (m *Manager) Snapshot(id string) (*Snapshot, error) {
	var snap *Snapshot
	err := m.View(id, func(g *Game) { snap = g.Snapshot() })
	return snap, err
}

// Subscribe attaches listener to the match's event bus. Listeners run while
// the match is locked and must not call back into the manager for the same
// match. The returned func detaches the listener.
func (m *Manager) Subscribe(id string, listener rules.Listener) (func(), error) {
	var handle int
	if err := m.View(id, func(g *Game) { handle = g.Bus().Subscribe(listener) }); err != nil {
		return nil, err
	}
	return func() {
		_ = m.View(id, func(g *Game) { g.Bus().Unsubscribe(handle) })
	}, nil
}

// List returns the live match ids in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Remove drops a match from memory and from the store.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return violation.Newf(violation.CodeNotFound, "game %s not found", id)
	}

	m.pendingMu.Lock()
	delete(m.saves, id)
	m.pendingMu.Unlock()

	if m.recorder != nil {
		m.recorder.ClearReplay(id)
	}
	if m.store != nil {
		if err := m.store.DeleteGame(ctx, id); err != nil {
			return fmt.Errorf("delete game %s: %w", id, err)
		}
	}
	m.logger.Info("game removed", zap.String("game_id", id))
	return nil
}

// afterMutation runs with s.mu held. Once a finished match has been queued
// for recording it is never saved again, so its active row stays deleted.
func (m *Manager) afterMutation(s *session) {
	if s.finished {
		return
	}
	g := s.game
	snap := g.Snapshot()

	if m.recorder != nil {
		m.recorder.Record(g.ID(), snap)
	}

	var match *MatchRecord
	if g.Result() != nil {
		s.finished = true
		rec := matchRecord(g)
		match = &rec
	}
	if m.store == nil && m.recorder == nil {
		return
	}

	data, err := g.Serialize()
	if err != nil {
		m.logger.Error("failed to serialize game", zap.String("game_id", g.ID()), zap.Error(err))
		return
	}
	sum, err := snap.Checksum()
	if err != nil {
		m.logger.Error("failed to checksum game", zap.String("game_id", g.ID()), zap.Error(err))
		return
	}

	m.pendingMu.Lock()
	m.saves[g.ID()] = SaveRecord{GameID: g.ID(), State: data, Turn: g.Turn(), Checksum: sum}
	if match != nil {
		match.FinalState = data
		m.matches = append(m.matches, *match)
	}
	m.pendingMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func matchRecord(g *Game) MatchRecord {
	res := g.Result()
	rec := MatchRecord{
		GameID:   g.ID(),
		WinnerID: res.WinnerID,
		Reason:   res.Reason,
		Turns:    res.Turn,
	}
	for _, p := range g.AllPlayers() {
		rec.Players = append(rec.Players, PlayerStats{
			PlayerID:          p.ID,
			Score:             p.Score,
			ResourcesGathered: p.ResourcesGathered,
			UnitsAlive:        len(g.PlayerUnits(p.ID)),
			UnitsLost:         g.UnitsLost(p.ID),
			Energy:            p.Energy,
		})
	}
	return rec
}

// Run writes queued saves until ctx is cancelled, then flushes once more.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
			err := m.Flush(flushCtx)
			cancel()
			return err
		case <-m.wake:
			if err := m.Flush(ctx); err != nil {
				m.logger.Warn("autosave failed", zap.Error(err))
			}
		}
	}
}

// Flush writes every queued save and match record. Failed writes are
// re-queued; a failed save yields to a newer one for the same match.
func (m *Manager) Flush(ctx context.Context) error {
	m.pendingMu.Lock()
	saves := m.saves
	matches := m.matches
	m.saves = make(map[string]SaveRecord)
	m.matches = nil
	m.pendingMu.Unlock()

	var errs []error
	if m.store != nil {
		ids := make([]string, 0, len(saves))
		for id := range saves {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			rec := saves[id]
			if err := m.store.SaveGame(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("save game %s: %w", id, err))
				m.requeue(rec)
				continue
			}
			m.logger.Debug("game saved", zap.String("game_id", id), zap.Int("turn", rec.Turn))
		}
	}

	for _, rec := range matches {
		if m.store != nil {
			if err := m.store.RecordMatch(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("record match %s: %w", rec.GameID, err))
				m.pendingMu.Lock()
				m.matches = append(m.matches, rec)
				m.pendingMu.Unlock()
				continue
			}
		}
		m.pendingMu.Lock()
		delete(m.saves, rec.GameID)
		m.pendingMu.Unlock()
		if m.recorder != nil && m.recorder.IsRecording(rec.GameID) {
			if err := m.recorder.SaveReplay(rec.GameID); err != nil {
				errs = append(errs, err)
			}
		}
		m.logger.Info("match recorded", zap.String("game_id", rec.GameID), zap.String("reason", string(rec.Reason)))
	}
	return errors.Join(errs...)
}

func (m *Manager) requeue(rec SaveRecord) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if _, newer := m.saves[rec.GameID]; !newer {
		m.saves[rec.GameID] = rec
	}
}
