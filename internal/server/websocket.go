package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thraizz/skirmish-server-go/internal/config"
	"github.com/thraizz/skirmish-server-go/internal/game"
	"github.com/thraizz/skirmish-server-go/internal/game/command"
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
	"github.com/thraizz/skirmish-server-go/internal/game/violation"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Message types exchanged with websocket clients.
const (
	MsgCommand   = "command"
	MsgUndo      = "undo"
	MsgRedo      = "redo"
	MsgNextPhase = "next_phase"
	MsgEndTurn   = "end_turn"
	MsgSurrender = "surrender"
	MsgGetState  = "get_state"

	MsgGameState = "game_state"
	MsgEvent     = "event"
	MsgError     = "error"
)

// WSMessage is a client request.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WSReply is a server push.
type WSReply struct {
	Type   string   `json:"type"`
	GameID string   `json:"game_id"`
	Data   any      `json:"data,omitempty"`
	Error  *WSError `json:"error,omitempty"`
}

type WSError struct {
	Code    violation.Code `json:"code"`
	Message string         `json:"message"`
}

// Client is one websocket connection bound to a match. PlayerID 0 is a
// spectator.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	gameID   string
	playerID int
}

type gameMessage struct {
	gameID string
	data   []byte
}

type clientMessage struct {
	client *Client
	data   []byte
}

// Hub fans match events out to the websocket clients watching that match.
type Hub struct {
	manager  *game.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	broadcast  chan gameMessage
	unicast    chan clientMessage
	done       chan struct{}

	// owned by Run
	clients map[string]map[*Client]bool
	unsubs  map[string]func()
}

// NewHub creates a hub. Run must be called for it to deliver anything.
func NewHub(manager *game.Manager, cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		manager:    manager,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan gameMessage, 256),
		unicast:    make(chan clientMessage),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]bool),
		unsubs:     make(map[string]func()),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run delivers messages until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for id, clients := range h.clients {
			for c := range clients {
				close(c.send)
			}
			h.detach(id)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			clients, ok := h.clients[c.gameID]
			if !ok {
				if err := h.attach(c.gameID); err != nil {
					h.logger.Warn("failed to subscribe to game",
						zap.String("game_id", c.gameID),
						zap.Error(err),
					)
					close(c.send)
					continue
				}
				clients = make(map[*Client]bool)
				h.clients[c.gameID] = clients
			}
			clients[c] = true
			h.logger.Info("websocket client registered",
				zap.String("game_id", c.gameID),
				zap.Int("player_id", c.playerID),
			)
			h.sendState(c)

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.unicast:
			if !h.clients[m.client.gameID][m.client] {
				continue
			}
			select {
			case m.client.send <- m.data:
			default:
				h.drop(m.client)
			}

		case m := <-h.broadcast:
			for c := range h.clients[m.gameID] {
				select {
				case c.send <- m.data:
				default:
					h.drop(c)
				}
			}
		}
	}
}

// attach subscribes the hub to a match's bus. The listener never blocks
// since it runs under the match lock.
func (h *Hub) attach(gameID string) error {
	unsubscribe, err := h.manager.Subscribe(gameID, func(e rules.Event) {
		data, err := json.Marshal(WSReply{Type: MsgEvent, GameID: gameID, Data: e})
		if err != nil {
			h.logger.Error("failed to encode event", zap.Error(err))
			return
		}
		select {
		case h.broadcast <- gameMessage{gameID: gameID, data: data}:
		default:
			h.logger.Warn("websocket broadcast queue full, dropping event",
				zap.String("game_id", gameID),
				zap.String("event", string(e.Type)),
			)
		}
	})
	if err != nil {
		return err
	}
	h.unsubs[gameID] = unsubscribe
	return nil
}

func (h *Hub) detach(gameID string) {
	if unsubscribe, ok := h.unsubs[gameID]; ok {
		unsubscribe()
		delete(h.unsubs, gameID)
	}
}

func (h *Hub) drop(c *Client) {
	clients := h.clients[c.gameID]
	if !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	h.logger.Info("websocket client unregistered",
		zap.String("game_id", c.gameID),
		zap.Int("player_id", c.playerID),
	)
	if len(clients) == 0 {
		delete(h.clients, c.gameID)
		h.detach(c.gameID)
	}
}

func (h *Hub) sendState(c *Client) {
	data, err := h.stateMessage(c.gameID)
	if err != nil {
		h.logger.Warn("failed to build game state", zap.String("game_id", c.gameID), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) stateMessage(gameID string) ([]byte, error) {
	snap, err := h.manager.Snapshot(gameID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSReply{Type: MsgGameState, GameID: gameID, Data: snap})
}

// BroadcastState pushes the current snapshot to every client of the match.
func (h *Hub) BroadcastState(gameID string) {
	data, err := h.stateMessage(gameID)
	if err != nil {
		h.logger.Warn("failed to build game state", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- gameMessage{gameID: gameID, data: data}:
	case <-h.done:
	}
}

// ServeWS upgrades /ws?game_id=<id>&player_id=<1|2> requests.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		http.Error(w, "game_id is required", http.StatusBadRequest)
		return
	}
	playerID := 0
	if raw := r.URL.Query().Get("player_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || (id != 1 && id != 2) {
			http.Error(w, "player_id must be 1 or 2", http.StatusBadRequest)
			return
		}
		playerID = id
	}
	if err := h.manager.Load(r.Context(), gameID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		gameID:   gameID,
		playerID: playerID,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError(violation.Newf(violation.CodeInvalidTarget, "malformed message: %v", err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle applies a client request. Failures go back to the sender only;
// successful mutations push the new state to everyone watching the match.
func (c *Client) handle(msg WSMessage) {
	if msg.Type == MsgGetState {
		data, err := c.hub.stateMessage(c.gameID)
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply(data)
		return
	}

	var err error
	switch msg.Type {
	case MsgCommand:
		err = c.executeCommand(msg.Data)
	case MsgUndo:
		err = c.onTurn((*game.Game).Undo)
	case MsgRedo:
		err = c.onTurn((*game.Game).Redo)
	case MsgNextPhase:
		err = c.onTurn(func(g *game.Game) error {
			_, err := g.NextPhase()
			return err
		})
	case MsgEndTurn:
		err = c.onTurn((*game.Game).EndTurn)
	case MsgSurrender:
		if c.playerID == 0 {
			err = violation.New(violation.CodeNotOwner, "spectators cannot surrender")
			break
		}
		err = c.hub.manager.With(c.gameID, func(g *game.Game) error { return g.Surrender(c.playerID) })
	default:
		err = violation.Newf(violation.CodeInvalidTarget, "unknown message type %q", msg.Type)
	}

	if err != nil {
		c.replyError(err)
		return
	}
	c.hub.BroadcastState(c.gameID)
}

func (c *Client) executeCommand(data json.RawMessage) error {
	if c.playerID == 0 {
		return violation.New(violation.CodeNotOwner, "spectators cannot issue commands")
	}
	var req command.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return violation.Newf(violation.CodeInvalidTarget, "malformed command: %v", err)
	}
	req.PlayerID = c.playerID
	cmd, err := req.Build()
	if err != nil {
		return err
	}
	return c.hub.manager.With(c.gameID, func(g *game.Game) error { return g.ExecuteCommand(cmd) })
}

// onTurn runs fn only when the client is the player to act.
func (c *Client) onTurn(fn func(*game.Game) error) error {
	return c.hub.manager.With(c.gameID, func(g *game.Game) error {
		if c.playerID == 0 || g.CurrentPlayer().ID != c.playerID {
			return violation.New(violation.CodeNotOwner, "not your turn")
		}
		return fn(g)
	})
}

func (c *Client) replyError(err error) {
	reply := WSReply{Type: MsgError, GameID: c.gameID, Error: &WSError{
		Code:    violation.CodeOf(err),
		Message: err.Error(),
	}}
	data, merr := json.Marshal(reply)
	if merr != nil {
		return
	}
	c.reply(data)
}

// reply queues data for this client only.
func (c *Client) reply(data []byte) {
	select {
	case c.hub.unicast <- clientMessage{client: c, data: data}:
	case <-c.hub.done:
	}
}
