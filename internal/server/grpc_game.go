package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thraizz/skirmish-server-go/internal/game"
	"github.com/thraizz/skirmish-server-go/internal/game/command"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GameService implements GameServiceServer on top of a game.Manager.
type GameService struct {
	manager *game.Manager
	logger  *zap.Logger
}

var _ GameServiceServer = (*GameService)(nil)

// NewGameService creates the gRPC game service.
func NewGameService(manager *game.Manager, logger *zap.Logger) *GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameService{manager: manager, logger: logger}
}

// toStruct converts any JSON-encodable value to a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// fromStruct decodes a structpb.Struct into out through its JSON form.
func fromStruct(s *structpb.Struct, out any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func gameID(req *structpb.Struct) (string, error) {
	id := strings.TrimSpace(req.GetFields()["gameId"].GetStringValue())
	if id == "" {
		return "", status.Errorf(codes.InvalidArgument, "gameId is required")
	}
	return id, nil
}

func playerID(req *structpb.Struct) (int, error) {
	v, ok := req.GetFields()["playerId"]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "playerId is required")
	}
	id := int(v.GetNumberValue())
	if id != 1 && id != 2 {
		return 0, status.Errorf(codes.InvalidArgument, "playerId must be 1 or 2")
	}
	return id, nil
}

// stateResponse wraps the snapshot of a match in the standard reply.
func (s *GameService) stateResponse(id string) (*structpb.Struct, error) {
	snap, err := s.manager.Snapshot(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"gameId": id, "state": snap})
}

// mutate runs fn under the match lock and replies with the new state.
func (s *GameService) mutate(req *structpb.Struct, fn func(*game.Game) error) (*structpb.Struct, error) {
	id, err := gameID(req)
	if err != nil {
		return nil, err
	}
	if err := s.manager.With(id, fn); err != nil {
		return nil, toStatus(err)
	}
	return s.stateResponse(id)
}

func (s *GameService) CreateGame(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.manager.Create(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.stateResponse(id)
}

// GetState returns the current snapshot, loading the match from the store
// when it is not live.
func (s *GameService) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := gameID(req)
	if err != nil {
		return nil, err
	}
	if err := s.manager.Load(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return s.stateResponse(id)
}

func (s *GameService) ExecuteCommand(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmdField, ok := req.GetFields()["command"]
	if !ok || cmdField.GetStructValue() == nil {
		return nil, status.Errorf(codes.InvalidArgument, "command is required")
	}
	var cr command.Request
	if err := fromStruct(cmdField.GetStructValue(), &cr); err != nil {
		return nil, err
	}
	cmd, err := cr.Build()
	if err != nil {
		return nil, toStatus(err)
	}
	return s.mutate(req, func(g *game.Game) error { return g.ExecuteCommand(cmd) })
}

func (s *GameService) Undo(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.mutate(req, (*game.Game).Undo)
}

func (s *GameService) Redo(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.mutate(req, (*game.Game).Redo)
}

func (s *GameService) NextPhase(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.mutate(req, func(g *game.Game) error {
		_, err := g.NextPhase()
		return err
	})
}

func (s *GameService) EndTurn(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.mutate(req, (*game.Game).EndTurn)
}

func (s *GameService) CheckVictory(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := gameID(req)
	if err != nil {
		return nil, err
	}
	var res *game.Result
	if err := s.manager.View(id, func(g *game.Game) { res = g.Result() }); err != nil {
		return nil, toStatus(err)
	}
	if res == nil {
		if err := s.manager.With(id, func(g *game.Game) error {
			res = g.CheckVictory()
			return nil
		}); err != nil {
			return nil, toStatus(err)
		}
	}
	return toStruct(map[string]any{"gameId": id, "result": res})
}

func (s *GameService) Surrender(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pid, err := playerID(req)
	if err != nil {
		return nil, err
	}
	return s.mutate(req, func(g *game.Game) error { return g.Surrender(pid) })
}

// WatchEvents streams the match's events until the client goes away.
func (s *GameService) WatchEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	id, err := gameID(req)
	if err != nil {
		return err
	}

	events := make(chan rules.Event, 64)
	unsubscribe, err := s.manager.Subscribe(id, func(e rules.Event) {
		select {
		case events <- e:
		default:
			s.logger.Warn("dropping event for slow watcher",
				zap.String("game_id", id),
				zap.String("event", string(e.Type)),
			)
		}
	})
	if err != nil {
		return toStatus(err)
	}
	defer unsubscribe()

	// Headers tell the client the subscription is live.
	if err := stream.SendHeader(metadata.Pairs("game-id", id)); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			msg, err := toStruct(e)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return fmt.Errorf("send event: %w", err)
			}
		}
	}
}
