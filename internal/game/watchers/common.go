// Package watchers tallies per-player match activity from the event stream.
package watchers

import (
	"github.com/thraizz/skirmish-server-go/internal/game/rules"
)

const (
	KeyUnitsBuilt        = "units_built"
	KeyUnitsDestroyed    = "units_destroyed"
	KeyDamageDealt       = "damage_dealt"
	KeyResourcesGathered = "resources_gathered"
	KeyUndosThisTurn     = "undos_this_turn"
)

// PlayerCounter sums an amount per player. The match decides which payloads
// count through the extract func.
type PlayerCounter struct {
	rules.Tally
	extract func(rules.Payload) (playerID, amount int, ok bool)
	counts  map[int]int
}

func newPlayerCounter(key string, lifetime rules.Lifetime, extract func(rules.Payload) (int, int, bool)) *PlayerCounter {
	return &PlayerCounter{
		Tally:   rules.NewTally(key, lifetime),
		extract: extract,
		counts:  make(map[int]int),
	}
}

func (c *PlayerCounter) Watch(event rules.Event) {
	playerID, amount, ok := c.extract(event.Payload)
	if !ok || playerID == 0 {
		return
	}
	c.counts[playerID] += amount
	c.MarkObserved()
}

func (c *PlayerCounter) Reset() {
	c.Tally.Reset()
	c.counts = make(map[int]int)
}

func (c *PlayerCounter) Copy() rules.Watcher {
	dup := &PlayerCounter{Tally: c.Tally, extract: c.extract, counts: make(map[int]int, len(c.counts))}
	for k, v := range c.counts {
		dup.counts[k] = v
	}
	return dup
}

// Get returns the tally for a player.
func (c *PlayerCounter) Get(playerID int) int { return c.counts[playerID] }

// Total returns the sum over both players.
func (c *PlayerCounter) Total() int {
	total := 0
	for _, v := range c.counts {
		total += v
	}
	return total
}

// NewUnitsBuiltWatcher counts units recruited per player.
func NewUnitsBuiltWatcher() *PlayerCounter {
	return newPlayerCounter(KeyUnitsBuilt, rules.LifetimeMatch, func(p rules.Payload) (int, int, bool) {
		e, ok := p.(rules.UnitCreated)
		return e.PlayerID, 1, ok
	})
}

// NewUnitsDestroyedWatcher counts units lost per owner.
func NewUnitsDestroyedWatcher() *PlayerCounter {
	return newPlayerCounter(KeyUnitsDestroyed, rules.LifetimeMatch, func(p rules.Payload) (int, int, bool) {
		e, ok := p.(rules.UnitDestroyed)
		return e.PlayerID, 1, ok
	})
}

// NewDamageDealtWatcher sums damage each attacking player dealt to units and bases.
func NewDamageDealtWatcher() *PlayerCounter {
	return newPlayerCounter(KeyDamageDealt, rules.LifetimeMatch, func(p rules.Payload) (int, int, bool) {
		switch e := p.(type) {
		case rules.UnitAttacked:
			return e.PlayerID, e.Damage, true
		case rules.BaseAttacked:
			return e.PlayerID, e.Damage, true
		}
		return 0, 0, false
	})
}

// NewResourcesGatheredWatcher sums energy harvested per player. Empty
// harvests from depleted nodes are ignored.
func NewResourcesGatheredWatcher() *PlayerCounter {
	return newPlayerCounter(KeyResourcesGathered, rules.LifetimeMatch, func(p rules.Payload) (int, int, bool) {
		e, ok := p.(rules.ResourcesGathered)
		return e.PlayerID, e.Amount, ok && e.Amount > 0
	})
}

// UndoWatcher counts undone commands by kind within the current turn.
type UndoWatcher struct {
	rules.Tally
	undone map[string]int
}

func NewUndoWatcher() *UndoWatcher {
	return &UndoWatcher{
		Tally:  rules.NewTally(KeyUndosThisTurn, rules.LifetimeTurn),
		undone: make(map[string]int),
	}
}

func (w *UndoWatcher) Watch(event rules.Event) {
	if p, ok := event.Payload.(rules.CommandUndone); ok {
		w.undone[p.Kind]++
		w.MarkObserved()
	}
}

func (w *UndoWatcher) Reset() {
	w.Tally.Reset()
	w.undone = make(map[string]int)
}

func (w *UndoWatcher) Copy() rules.Watcher {
	c := &UndoWatcher{Tally: w.Tally, undone: make(map[string]int, len(w.undone))}
	for k, v := range w.undone {
		c.undone[k] = v
	}
	return c
}

// Count returns how many commands of kind were undone this turn.
func (w *UndoWatcher) Count(kind string) int { return w.undone[kind] }

func (w *UndoWatcher) Total() int {
	total := 0
	for _, v := range w.undone {
		total += v
	}
	return total
}

// RegisterDefaults adds the activity watchers to a registry.
func RegisterDefaults(registry *rules.WatcherRegistry) {
	for _, w := range []rules.Watcher{
		NewUnitsBuiltWatcher(),
		NewUnitsDestroyedWatcher(),
		NewDamageDealtWatcher(),
		NewResourcesGatheredWatcher(),
		NewUndoWatcher(),
	} {
		_ = registry.Add(w)
	}
}

// Activity is a per-player view over the default watchers.
type Activity struct {
	PlayerID          int `json:"playerId"`
	UnitsBuilt        int `json:"unitsBuilt"`
	UnitsLost         int `json:"unitsLost"`
	DamageDealt       int `json:"damageDealt"`
	ResourcesGathered int `json:"resourcesGathered"`
	UndosThisTurn     int `json:"undosThisTurn"`
}

// Summarize reads a player's activity from the registry. Missing watchers
// read as zero. Counts include actions that were later undone. Undos are
// reported for the turn in progress regardless of playerID.
func Summarize(registry *rules.WatcherRegistry, playerID int) Activity {
	a := Activity{PlayerID: playerID}
	count := func(key string) int {
		if c, ok := registry.Lookup(key).(*PlayerCounter); ok {
			return c.Get(playerID)
		}
		return 0
	}
	a.UnitsBuilt = count(KeyUnitsBuilt)
	a.UnitsLost = count(KeyUnitsDestroyed)
	a.DamageDealt = count(KeyDamageDealt)
	a.ResourcesGathered = count(KeyResourcesGathered)
	if w, ok := registry.Lookup(KeyUndosThisTurn).(*UndoWatcher); ok {
		a.UndosThisTurn = w.Total()
	}
	return a
}
