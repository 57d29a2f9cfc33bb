package engine

import (
	"testing"

	"modhost.dev/internal/worldstate"
)

func TestRunTick_LocationListChangeWithoutMemberNoise(t *testing.T) {
	w := worldstate.New()
	w.AddLocation("Farm")

	e, _ := newTestEngine(t, w, Options{})
	e.TransitionTo(StageReady)

	var locs []LocationListChanged
	members := 0
	e.Events().LocationListChanged.Register("modA", func(c LocationListChanged) { locs = append(locs, c) })
	e.Events().NPCListChanged.Register("modA", func(MemberListChanged) { members++ })
	e.Events().ObjectListChanged.Register("modA", func(MemberListChanged) { members++ })

	e.RunTick()
	mines := w.AddLocation("Mines")
	mines.NPCs["dwarf"] = struct{}{}
	mines.Objects["ladder"] = struct{}{}
	e.RunTick()

	if len(locs) != 1 || len(locs[0].Added) != 1 || locs[0].Added[0] != "Mines" {
		t.Fatalf("location list changes: got %+v", locs)
	}
	if members != 0 {
		t.Fatalf("a new location's initial members must not fire member events: %d", members)
	}

	// Removal reports identity only; the dropped location's watcher goes away.
	delete(w.Locations, "Mines")
	e.RunTick()
	if len(locs) != 2 || len(locs[1].Removed) != 1 || locs[1].Removed[0] != "Mines" {
		t.Fatalf("location removal: got %+v", locs)
	}
}

func TestRunTick_ChestInventoryDelta(t *testing.T) {
	w := worldstate.New()
	farm := w.AddLocation("Farm")
	farm.Chests["chest_1"] = map[string]int{"seed": 4}

	e, _ := newTestEngine(t, w, Options{})
	e.TransitionTo(StageReady)

	var got []ChestInventoryChanged
	e.Events().ChestInventoryChanged.Register("modA", func(c ChestInventoryChanged) { got = append(got, c) })

	e.RunTick()
	farm.Chests["chest_1"]["seed"] = 1
	farm.Chests["chest_1"]["hoe"] = 1
	e.RunTick()

	if len(got) != 1 {
		t.Fatalf("chest events: got %d want 1 (%+v)", len(got), got)
	}
	c := got[0]
	if c.Location != "Farm" || c.Chest != "chest_1" {
		t.Fatalf("chest identity: got %+v", c)
	}
	if len(c.Added) != 1 || c.Added[0] != "hoe" {
		t.Fatalf("added: got %v want [hoe]", c.Added)
	}
	if len(c.Updated) != 1 || c.Updated[0].Old != 4 || c.Updated[0].New != 1 {
		t.Fatalf("updated: got %+v", c.Updated)
	}

	// A chest appearing mid-run is baselined silently.
	got = nil
	farm.Chests["chest_2"] = map[string]int{"ore": 9}
	e.RunTick()
	if len(got) != 0 {
		t.Fatalf("new chest contents must not fire as a delta: %+v", got)
	}
}

func TestRunTick_MenuAndWindowEvents(t *testing.T) {
	w := worldstate.New()
	e, _ := newTestEngine(t, w, Options{})
	e.TransitionTo(StageReady)

	var menus []MenuChanged
	var sizes []WindowResized
	e.Events().MenuChanged.Register("modA", func(c MenuChanged) { menus = append(menus, c) })
	e.Events().WindowResized.Register("modA", func(c WindowResized) { sizes = append(sizes, c) })

	e.RunTick()
	w.ActiveMenu = "inventory"
	w.Window = worldstate.Size{W: 1280, H: 720}
	e.RunTick()

	if len(menus) != 1 || menus[0].Old != "" || menus[0].New != "inventory" {
		t.Fatalf("menu changes: got %+v", menus)
	}
	if len(sizes) != 1 || sizes[0].New != (worldstate.Size{W: 1280, H: 720}) {
		t.Fatalf("window changes: got %+v", sizes)
	}
}
