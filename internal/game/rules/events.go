package rules

import (
	"sort"
	"sync"
	"time"

	"github.com/thraizz/skirmish-server-go/internal/game/entity"
)

// EventType indicates the category of a game event.
type EventType string

const (
	// Turn events
	EventTurnStarted  EventType = "turnStarted"
	EventTurnEnded    EventType = "turnEnded"
	EventPhaseChanged EventType = "phaseChanged"

	// Unit events
	EventUnitCreated    EventType = "unitCreated"
	EventUnitMoved      EventType = "unitMoved"
	EventUnitAttacked   EventType = "unitAttacked"
	EventUnitDestroyed  EventType = "unitDestroyed"
	EventUnitSelected   EventType = "unitSelected"
	EventUnitDeselected EventType = "unitDeselected"

	// Base events
	EventBaseAttacked  EventType = "baseAttacked"
	EventBaseDestroyed EventType = "baseDestroyed"

	// Economy events
	EventResourcesGathered    EventType = "resourcesGathered"
	EventResourcesDeposited   EventType = "resourcesDeposited"
	EventResourceNodeDepleted EventType = "resourceNodeDepleted"
	EventResourcesRegenerated EventType = "resourcesRegenerated"

	// Match events
	EventVictoryAchieved   EventType = "victoryAchieved"
	EventDrawDeclared      EventType = "drawDeclared"
	EventPlayerSurrendered EventType = "playerSurrendered"

	// History events
	EventCommandUndone EventType = "commandUndone"
	EventCommandRedone EventType = "commandRedone"
)

// Payload is the typed body of an event. Subscribers type-switch on it.
type Payload interface {
	EventType() EventType
}

type TurnStarted struct {
	Turn     int `json:"turn"`
	PlayerID int `json:"playerId"`
}

type TurnEnded struct {
	Turn     int `json:"turn"`
	PlayerID int `json:"playerId"`
}

type PhaseChanged struct {
	Turn     int   `json:"turn"`
	PlayerID int   `json:"playerId"`
	From     Phase `json:"from"`
	To       Phase `json:"to"`
}

type UnitCreated struct {
	UnitID   string          `json:"unitId"`
	UnitType entity.UnitType `json:"unitType"`
	PlayerID int             `json:"playerId"`
	Position entity.Position `json:"position"`
	Cost     int             `json:"cost"`
}

type UnitMoved struct {
	UnitID   string          `json:"unitId"`
	PlayerID int             `json:"playerId"`
	From     entity.Position `json:"from"`
	To       entity.Position `json:"to"`
}

type UnitAttacked struct {
	AttackerID      string `json:"attackerId"`
	PlayerID        int    `json:"playerId"`
	TargetID        string `json:"targetId"`
	TargetOwnerID   int    `json:"targetOwnerId"`
	Damage          int    `json:"damage"`
	RemainingHealth int    `json:"remainingHealth"`
}

type UnitDestroyed struct {
	UnitID   string          `json:"unitId"`
	PlayerID int             `json:"playerId"`
	Position entity.Position `json:"position"`
}

type UnitSelected struct {
	UnitID   string `json:"unitId"`
	PlayerID int    `json:"playerId"`
}

type UnitDeselected struct {
	UnitID   string `json:"unitId"`
	PlayerID int    `json:"playerId"`
}

type BaseAttacked struct {
	AttackerID      string `json:"attackerId"`
	PlayerID        int    `json:"playerId"`
	BaseID          string `json:"baseId"`
	OwnerID         int    `json:"ownerId"`
	Damage          int    `json:"damage"`
	RemainingHealth int    `json:"remainingHealth"`
}

type BaseDestroyed struct {
	BaseID   string          `json:"baseId"`
	OwnerID  int             `json:"ownerId"`
	Position entity.Position `json:"position"`
}

type ResourcesGathered struct {
	UnitID        string `json:"unitId"`
	NodeID        string `json:"nodeId"`
	PlayerID      int    `json:"playerId"`
	Amount        int    `json:"amount"`
	NodeRemaining int    `json:"nodeRemaining"`
}

type ResourcesDeposited struct {
	UnitID   string `json:"unitId"`
	PlayerID int    `json:"playerId"`
	Amount   int    `json:"amount"`
	Energy   int    `json:"energy"`
}

type ResourceNodeDepleted struct {
	NodeID   string          `json:"nodeId"`
	Position entity.Position `json:"position"`
}

type ResourcesRegenerated struct {
	Turn   int `json:"turn"`
	Amount int `json:"amount"`
}

type VictoryAchieved struct {
	WinnerID int    `json:"winnerId"`
	Reason   string `json:"reason"`
}

type DrawDeclared struct {
	Reason string `json:"reason"`
}

type PlayerSurrendered struct {
	PlayerID int `json:"playerId"`
}

type CommandUndone struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type CommandRedone struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

func (TurnStarted) EventType() EventType          { return EventTurnStarted }
func (TurnEnded) EventType() EventType            { return EventTurnEnded }
func (PhaseChanged) EventType() EventType         { return EventPhaseChanged }
func (UnitCreated) EventType() EventType          { return EventUnitCreated }
func (UnitMoved) EventType() EventType            { return EventUnitMoved }
func (UnitAttacked) EventType() EventType         { return EventUnitAttacked }
func (UnitDestroyed) EventType() EventType        { return EventUnitDestroyed }
func (UnitSelected) EventType() EventType         { return EventUnitSelected }
func (UnitDeselected) EventType() EventType       { return EventUnitDeselected }
func (BaseAttacked) EventType() EventType         { return EventBaseAttacked }
func (BaseDestroyed) EventType() EventType        { return EventBaseDestroyed }
func (ResourcesGathered) EventType() EventType    { return EventResourcesGathered }
func (ResourcesDeposited) EventType() EventType   { return EventResourcesDeposited }
func (ResourceNodeDepleted) EventType() EventType { return EventResourceNodeDepleted }
func (ResourcesRegenerated) EventType() EventType { return EventResourcesRegenerated }
func (VictoryAchieved) EventType() EventType      { return EventVictoryAchieved }
func (DrawDeclared) EventType() EventType         { return EventDrawDeclared }
func (PlayerSurrendered) EventType() EventType    { return EventPlayerSurrendered }
func (CommandUndone) EventType() EventType        { return EventCommandUndone }
func (CommandRedone) EventType() EventType        { return EventCommandRedone }

// Event is a state change that the UI and other subsystems may react to.
// Payloads hold plain data only, never entity pointers.
type Event struct {
	Type      EventType `json:"type"`
	GameID    string    `json:"gameId,omitempty"`
	Turn      int       `json:"turn"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// NewEvent wraps a payload in an event envelope.
func NewEvent(p Payload) Event {
	return Event{
		Type:      p.EventType(),
		Timestamp: time.Now(),
		Payload:   p,
	}
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type subscription struct {
	handle    int
	eventType EventType // empty for all events
	callback  Listener
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
// Listeners run in subscription order.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[int]subscription
	next      int
	sequence  int64
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[int]subscription),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	return bus.add("", listener)
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, listener Listener) int {
	return bus.add(eventType, listener)
}

func (bus *EventBus) add(eventType EventType, listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.next
	bus.next++
	bus.listeners[handle] = subscription{handle: handle, eventType: eventType, callback: listener}
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
}

// Publish stamps the event with a sequence number and delivers it to matching
// listeners synchronously. Listeners may subscribe or unsubscribe while handling.
func (bus *EventBus) Publish(event Event) {
	bus.mu.Lock()
	bus.sequence++
	event.Sequence = bus.sequence
	targets := make([]subscription, 0, len(bus.listeners))
	for _, sub := range bus.listeners {
		if sub.eventType == "" || sub.eventType == event.Type {
			targets = append(targets, sub)
		}
	}
	bus.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].handle < targets[j].handle })
	for _, sub := range targets {
		sub.callback(event)
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}
