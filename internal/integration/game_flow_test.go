package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/thraizz/skirmish-server-go/internal/game"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/types/known/structpb"
)

// memoryStore is an in-process game.Store.
type memoryStore struct {
	mu      sync.Mutex
	games   map[string]game.SaveRecord
	matches []game.MatchRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{games: make(map[string]game.SaveRecord)}
}

func (s *memoryStore) SaveGame(_ context.Context, rec game.SaveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[rec.GameID] = rec
	return nil
}

func (s *memoryStore) LoadGame(_ context.Context, id string) (*game.SaveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[id]
	if !ok {
		return nil, game.ErrGameNotFound
	}
	return &rec, nil
}

func (s *memoryStore) DeleteGame(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
	return nil
}

func (s *memoryStore) RecordMatch(_ context.Context, rec game.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, rec)
	delete(s.games, rec.GameID)
	return nil
}

type gameServerEnv struct {
	service   *server.GameService
	manager   *game.Manager
	store     *memoryStore
	replayDir string
	logger    *zap.Logger
}

func newGameServerEnv(t testing.TB, store *memoryStore) *gameServerEnv {
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	mgr := game.NewManager(game.ManagerOptions{
		Config:   game.DefaultConfig(),
		Store:    store,
		Recorder: game.NewReplayRecorder(logger, dir),
	}, logger)

	return &gameServerEnv{
		service:   server.NewGameService(mgr, logger),
		manager:   mgr,
		store:     store,
		replayDir: dir,
		logger:    logger,
	}
}

func request(t testing.TB, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return s
}

func (env *gameServerEnv) call(t testing.TB, name string, fn func(context.Context, *structpb.Struct) (*structpb.Struct, error), fields map[string]any) map[string]any {
	t.Helper()
	reply, err := fn(context.Background(), request(t, fields))
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	state, _ := reply.AsMap()["state"].(map[string]any)
	return state
}

func (env *gameServerEnv) command(t testing.TB, id string, cmd map[string]any) map[string]any {
	t.Helper()
	return env.call(t, "ExecuteCommand", env.service.ExecuteCommand, map[string]any{"gameId": id, "command": cmd})
}

func playerField(state map[string]any, playerID int, field string) float64 {
	for _, raw := range state["players"].([]any) {
		p := raw.(map[string]any)
		if int(p["id"].(float64)) == playerID {
			return p[field].(float64)
		}
	}
	return -1
}

// TestFullMatchFlow plays two turns through the gRPC service, ends the match
// by surrender and checks what the manager persisted.
func TestFullMatchFlow(t *testing.T) {
	env := newGameServerEnv(t, newMemoryStore())
	ctx := context.Background()

	reply, err := env.service.CreateGame(ctx, request(t, map[string]any{}))
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}
	id := reply.GetFields()["gameId"].GetStringValue()

	var (
		mu     sync.Mutex
		events []rules.EventType
	)
	unsubscribe, err := env.manager.Subscribe(id, func(e rules.Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	defer unsubscribe()

	gameReq := map[string]any{"gameId": id}

	// Turn 1, player 1: move the worker out, then recruit a second one.
	state := env.call(t, "NextPhase", env.service.NextPhase, gameReq)
	if state["currentPhase"] != "ACTION" {
		t.Fatalf("expected ACTION phase, got %v", state["currentPhase"])
	}
	env.command(t, id, map[string]any{"kind": "move", "playerId": 1, "unitId": "unit-12", "x": 3, "y": 3})
	env.call(t, "NextPhase", env.service.NextPhase, gameReq)
	state = env.command(t, id, map[string]any{"kind": "build", "playerId": 1, "unitType": "worker", "x": 2, "y": 1})
	if got := playerField(state, 1, "energy"); got != 10 {
		t.Fatalf("expected 10 energy after recruiting, got %v", got)
	}

	state = env.call(t, "NextPhase", env.service.NextPhase, gameReq)
	if state["currentPlayerId"] != 2.0 || state["turnNumber"] != 2.0 {
		t.Fatalf("expected player 2 on turn 2, got player %v turn %v", state["currentPlayerId"], state["turnNumber"])
	}
	if depth := state["history"].(map[string]any)["undoDepth"]; depth != 0.0 {
		t.Fatalf("expected history cleared on turn change, got depth %v", depth)
	}

	// Turn 2, player 2 passes.
	state = env.call(t, "EndTurn", env.service.EndTurn, gameReq)
	if state["currentPlayerId"] != 1.0 || state["currentPhase"] != "RESOURCE" {
		t.Fatalf("expected player 1 in RESOURCE, got player %v phase %v", state["currentPlayerId"], state["currentPhase"])
	}

	// Player 2 concedes.
	state = env.call(t, "Surrender", env.service.Surrender, map[string]any{"gameId": id, "playerId": 2})
	result, ok := state["result"].(map[string]any)
	if !ok || result["winnerId"] != 1.0 || result["reason"] != "surrender" {
		t.Fatalf("unexpected result: %v", state["result"])
	}

	if err := env.manager.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	env.store.mu.Lock()
	matches := append([]game.MatchRecord(nil), env.store.matches...)
	_, stillActive := env.store.games[id]
	env.store.mu.Unlock()

	if len(matches) != 1 {
		t.Fatalf("expected one recorded match, got %d", len(matches))
	}
	match := matches[0]
	if match.WinnerID == nil || *match.WinnerID != 1 || match.Reason != game.ReasonSurrender {
		t.Fatalf("unexpected match record: %+v", match)
	}
	if match.Turns != 3 {
		t.Fatalf("expected match to end on turn 3, got %d", match.Turns)
	}
	for _, p := range match.Players {
		if p.PlayerID == 1 && (p.UnitsAlive != 2 || p.Energy != 10) {
			t.Fatalf("unexpected stats for player 1: %+v", p)
		}
	}
	if stillActive {
		t.Fatal("expected finished match to leave the active table")
	}

	replay, err := game.LoadReplayFromFile(env.replayDir, id)
	if err != nil {
		t.Fatalf("failed to load replay: %v", err)
	}
	// create, three phase changes, two commands, end turn and surrender
	if replay.Size() != 8 {
		t.Fatalf("expected 8 replay frames, got %d", replay.Size())
	}
	last := replay.FrameAt(replay.Size() - 1)
	if last == nil || last.Result == nil {
		t.Fatal("expected last replay frame to carry the result")
	}

	mu.Lock()
	defer mu.Unlock()
	var sawBuild, sawVictory bool
	for _, e := range events {
		switch e {
		case rules.EventUnitCreated:
			sawBuild = true
		case rules.EventVictoryAchieved:
			sawVictory = true
		}
	}
	if !sawBuild || !sawVictory {
		t.Fatalf("missing events in %v", events)
	}
}

// TestMatchSurvivesRestart resumes a stored match in a fresh manager.
func TestMatchSurvivesRestart(t *testing.T) {
	store := newMemoryStore()
	first := newGameServerEnv(t, store)
	ctx := context.Background()

	id, err := first.manager.Create(ctx)
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}
	gameReq := map[string]any{"gameId": id}
	first.call(t, "NextPhase", first.service.NextPhase, gameReq)
	first.command(t, id, map[string]any{"kind": "move", "playerId": 1, "unitId": "unit-12", "x": 4, "y": 2})

	if err := first.manager.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	before, err := first.manager.Snapshot(id)
	if err != nil {
		t.Fatalf("failed to snapshot: %v", err)
	}

	second := newGameServerEnv(t, store)
	state := second.call(t, "GetState", second.service.GetState, gameReq)
	if state["currentPhase"] != "ACTION" {
		t.Fatalf("expected restored ACTION phase, got %v", state["currentPhase"])
	}

	after, err := second.manager.Snapshot(id)
	if err != nil {
		t.Fatalf("failed to snapshot restored game: %v", err)
	}
	sumBefore, err := before.Checksum()
	if err != nil {
		t.Fatalf("checksum failed: %v", err)
	}
	sumAfter, err := after.Checksum()
	if err != nil {
		t.Fatalf("checksum failed: %v", err)
	}
	if sumBefore != sumAfter {
		t.Fatalf("restored checksum %s differs from %s", sumAfter, sumBefore)
	}

	// The restored match keeps playing; the worker has one action left.
	state = second.command(t, id, map[string]any{"kind": "move", "playerId": 1, "unitId": "unit-12", "x": 4, "y": 4})
	for _, raw := range state["units"].([]any) {
		u := raw.(map[string]any)
		if u["id"] == "unit-12" {
			pos := u["position"].(map[string]any)
			if pos["x"] != 4.0 || pos["y"] != 4.0 {
				t.Fatalf("unexpected position %v", pos)
			}
		}
	}
}
