package engine

import (
	"sync"

	"modhost.dev/internal/logging"
)

// Handle identifies one registration for later removal.
type Handle struct {
	id uint64
}

type listener[T any] struct {
	id    uint64
	owner string
	fn    func(T)
}

// Event is one named pub-sub channel. Listeners run in registration order.
// Register/Unregister are safe for concurrent use; Raise takes a defensive
// snapshot of the listener list, so add/remove mid-dispatch affects the next
// raise, not the current one.
type Event[T any] struct {
	name string
	mon  *logging.Monitor

	mu        sync.Mutex
	nextID    uint64
	listeners []listener[T]
}

func newEvent[T any](name string, mon *logging.Monitor) *Event[T] {
	return &Event[T]{name: name, mon: mon}
}

func (e *Event[T]) Name() string { return e.name }

// Register appends fn to the listener list, attributed to owner for fault
// logging. Listeners registered during a raise are not invoked by that raise.
func (e *Event[T]) Register(owner string, fn func(T)) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.listeners = append(e.listeners, listener[T]{id: e.nextID, owner: owner, fn: fn})
	return Handle{id: e.nextID}
}

// Unregister removes one registration. Unknown handles are ignored.
func (e *Event[T]) Unregister(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id == h.id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Raise invokes every listener with the payload produced by build. With zero
// listeners the payload is never constructed. A panicking listener is logged
// against its owner and never blocks siblings or the caller.
func (e *Event[T]) Raise(build func() T) {
	e.mu.Lock()
	if len(e.listeners) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make([]listener[T], len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	payload := build()
	for _, l := range snapshot {
		e.invoke(l, payload)
	}
}

func (e *Event[T]) invoke(l listener[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			e.mon.Log(l.owner, logging.Error, "listener for %s failed: %v", e.name, r)
		}
	}()
	l.fn(payload)
}

// Events is the full named-event registry exposed to observers. Field order
// mirrors the fixed per-tick firing order.
type Events struct {
	// Save/load boundaries.
	SaveCreated *Event[SaveCreated]
	SaveLoaded  *Event[SaveLoaded]

	// Locale and stage boundaries.
	LocaleChanged   *Event[LocaleChanged]
	StageChanged    *Event[StageChanged]
	ReturnedToTitle *Event[ReturnedToTitle]

	// Window and input.
	WindowResized      *Event[WindowResized]
	CursorMoved        *Event[CursorMoved]
	MouseWheelScrolled *Event[MouseWheelScrolled]
	ButtonsChanged     *Event[ButtonsChanged]

	// Menus.
	MenuChanged *Event[MenuChanged]

	// World lists; the per-location events fire in this order for each
	// changed location.
	LocationListChanged       *Event[LocationListChanged]
	BuildingListChanged       *Event[MemberListChanged]
	DebrisListChanged         *Event[MemberListChanged]
	TerrainFeatureListChanged *Event[MemberListChanged]
	NPCListChanged            *Event[MemberListChanged]
	ObjectListChanged         *Event[MemberListChanged]
	ChestInventoryChanged     *Event[ChestInventoryChanged]
	FurnitureListChanged      *Event[MemberListChanged]

	// Time and player.
	TimeChanged      *Event[TimeChanged]
	Warped           *Event[Warped]
	LevelChanged     *Event[LevelChanged]
	InventoryChanged *Event[InventoryChanged]

	// Tick lifecycle.
	GameLaunched             *Event[GameLaunched]
	UpdateTicking            *Event[TickInfo]
	OneSecondUpdateTicking   *Event[TickInfo]
	UpdateTicked             *Event[TickInfo]
	OneSecondUpdateTicked    *Event[TickInfo]
	UnvalidatedUpdateTicking *Event[TickInfo]
	UnvalidatedUpdateTicked  *Event[TickInfo]

	// Render pass.
	Rendering *Event[RenderInfo]
	Rendered  *Event[RenderInfo]
}

func NewEvents(mon *logging.Monitor) *Events {
	return &Events{
		SaveCreated:               newEvent[SaveCreated]("SaveCreated", mon),
		SaveLoaded:                newEvent[SaveLoaded]("SaveLoaded", mon),
		LocaleChanged:             newEvent[LocaleChanged]("LocaleChanged", mon),
		StageChanged:              newEvent[StageChanged]("StageChanged", mon),
		ReturnedToTitle:           newEvent[ReturnedToTitle]("ReturnedToTitle", mon),
		WindowResized:             newEvent[WindowResized]("WindowResized", mon),
		CursorMoved:               newEvent[CursorMoved]("CursorMoved", mon),
		MouseWheelScrolled:        newEvent[MouseWheelScrolled]("MouseWheelScrolled", mon),
		ButtonsChanged:            newEvent[ButtonsChanged]("ButtonsChanged", mon),
		MenuChanged:               newEvent[MenuChanged]("MenuChanged", mon),
		LocationListChanged:       newEvent[LocationListChanged]("LocationListChanged", mon),
		BuildingListChanged:       newEvent[MemberListChanged]("BuildingListChanged", mon),
		DebrisListChanged:         newEvent[MemberListChanged]("DebrisListChanged", mon),
		TerrainFeatureListChanged: newEvent[MemberListChanged]("TerrainFeatureListChanged", mon),
		NPCListChanged:            newEvent[MemberListChanged]("NPCListChanged", mon),
		ObjectListChanged:         newEvent[MemberListChanged]("ObjectListChanged", mon),
		ChestInventoryChanged:     newEvent[ChestInventoryChanged]("ChestInventoryChanged", mon),
		FurnitureListChanged:      newEvent[MemberListChanged]("FurnitureListChanged", mon),
		TimeChanged:               newEvent[TimeChanged]("TimeChanged", mon),
		Warped:                    newEvent[Warped]("Warped", mon),
		LevelChanged:              newEvent[LevelChanged]("LevelChanged", mon),
		InventoryChanged:          newEvent[InventoryChanged]("InventoryChanged", mon),
		GameLaunched:              newEvent[GameLaunched]("GameLaunched", mon),
		UpdateTicking:             newEvent[TickInfo]("UpdateTicking", mon),
		OneSecondUpdateTicking:    newEvent[TickInfo]("OneSecondUpdateTicking", mon),
		UpdateTicked:              newEvent[TickInfo]("UpdateTicked", mon),
		OneSecondUpdateTicked:     newEvent[TickInfo]("OneSecondUpdateTicked", mon),
		UnvalidatedUpdateTicking:  newEvent[TickInfo]("UnvalidatedUpdateTicking", mon),
		UnvalidatedUpdateTicked:   newEvent[TickInfo]("UnvalidatedUpdateTicked", mon),
		Rendering:                 newEvent[RenderInfo]("Rendering", mon),
		Rendered:                  newEvent[RenderInfo]("Rendered", mon),
	}
}
