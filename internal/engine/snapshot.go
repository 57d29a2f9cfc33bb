package engine

import (
	"sort"

	"modhost.dev/internal/watch"
	"modhost.dev/internal/worldstate"
)

// Snapshot is the immutable per-tick aggregate of all world-level watcher
// diffs. It is built fresh each tick between watcher update and reset, and
// must not be read after the reset.
type Snapshot struct {
	Tick uint64

	LocationsAdded   []string
	LocationsRemoved []string
	Locations        []LocationDelta // changed locations only, sorted by name

	TimeChanged bool
	TimeOld     int
	TimeNew     int

	MenuChanged bool
	MenuOld     string
	MenuNew     string

	WindowChanged bool
	WindowOld     worldstate.Size
	WindowNew     worldstate.Size

	LocaleChanged bool
	LocaleOld     string
	LocaleNew     string
}

// MemberDelta is one collection's identity delta for the current tick.
type MemberDelta struct {
	Added   []string
	Removed []string
}

func (d MemberDelta) changed() bool { return len(d.Added) > 0 || len(d.Removed) > 0 }

type ChestDelta struct {
	Chest   string
	Added   []string
	Removed []string
	Updated []watch.Pair[string, int]
}

// LocationDelta aggregates every per-location diff for one changed location.
type LocationDelta struct {
	Name            string
	Buildings       MemberDelta
	Debris          MemberDelta
	TerrainFeatures MemberDelta
	NPCs            MemberDelta
	Objects         MemberDelta
	Furniture       MemberDelta
	Chests          []ChestDelta // sorted by chest id
}

func (d LocationDelta) changed() bool {
	return d.Buildings.changed() || d.Debris.changed() || d.TerrainFeatures.changed() ||
		d.NPCs.changed() || d.Objects.changed() || d.Furniture.changed() || len(d.Chests) > 0
}

// ScreenSnapshot is the per-screen diff aggregate (player and input).
type ScreenSnapshot struct {
	ScreenID int

	Warped      bool
	LocationOld string
	LocationNew string

	Levels []watch.Pair[string, int]

	InventoryChanged bool
	InvAdded         []string
	InvRemoved       []string
	InvUpdated       []watch.Pair[string, int]

	CursorChanged bool
	CursorOld     worldstate.Point
	CursorNew     worldstate.Point

	WheelChanged bool
	WheelOld     int
	WheelNew     int

	Pressed  []string
	Released []string
}

// locationWatcher tracks every member collection of one location. Watchers
// for chests are created as chests appear, baselined to current contents so
// a new chest does not report its initial items as added.
type locationWatcher struct {
	loc *worldstate.Location

	buildings *watch.KeySet[string]
	debris    *watch.KeySet[string]
	terrain   *watch.KeySet[string]
	npcs      *watch.KeySet[string]
	objects   *watch.KeySet[string]
	furniture *watch.KeySet[string]
	chests    map[string]*watch.Dict[string, int]
}

func newLocationWatcher(loc *worldstate.Location) *locationWatcher {
	lw := &locationWatcher{
		loc:       loc,
		buildings: watch.NewKeySet(loc.BuildingNames),
		debris:    watch.NewKeySet(loc.DebrisNames),
		terrain:   watch.NewKeySet(loc.TerrainFeatureNames),
		npcs:      watch.NewKeySet(loc.NPCNames),
		objects:   watch.NewKeySet(loc.ObjectNames),
		furniture: watch.NewKeySet(loc.FurnitureNames),
		chests:    map[string]*watch.Dict[string, int]{},
	}
	for id := range loc.Chests {
		lw.chests[id] = newChestWatcher(loc, id)
	}
	return lw
}

func newChestWatcher(loc *worldstate.Location, chestID string) *watch.Dict[string, int] {
	return watch.NewDict(func() map[string]int {
		// A removed chest reads as empty until its watcher is dropped.
		return loc.Chests[chestID]
	})
}

func (lw *locationWatcher) update() {
	lw.buildings.Update()
	lw.debris.Update()
	lw.terrain.Update()
	lw.npcs.Update()
	lw.objects.Update()
	lw.furniture.Update()
	for id := range lw.loc.Chests {
		if _, ok := lw.chests[id]; !ok {
			lw.chests[id] = newChestWatcher(lw.loc, id)
		}
	}
	for id, cw := range lw.chests {
		if _, ok := lw.loc.Chests[id]; !ok {
			delete(lw.chests, id)
			continue
		}
		cw.Update()
	}
}

func (lw *locationWatcher) reset() {
	lw.buildings.Reset()
	lw.debris.Reset()
	lw.terrain.Reset()
	lw.npcs.Reset()
	lw.objects.Reset()
	lw.furniture.Reset()
	for _, cw := range lw.chests {
		cw.Reset()
	}
}

func (lw *locationWatcher) delta() LocationDelta {
	d := LocationDelta{
		Name:            lw.loc.Name,
		Buildings:       memberDelta(lw.buildings),
		Debris:          memberDelta(lw.debris),
		TerrainFeatures: memberDelta(lw.terrain),
		NPCs:            memberDelta(lw.npcs),
		Objects:         memberDelta(lw.objects),
		Furniture:       memberDelta(lw.furniture),
	}
	ids := make([]string, 0, len(lw.chests))
	for id := range lw.chests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cw := lw.chests[id]
		if !cw.IsChanged() {
			continue
		}
		d.Chests = append(d.Chests, ChestDelta{
			Chest:   id,
			Added:   sortedCopy(cw.Added()),
			Removed: sortedCopy(cw.Removed()),
			Updated: pairsCopy(cw.Updated()),
		})
	}
	return d
}

func memberDelta(w *watch.KeySet[string]) MemberDelta {
	if !w.IsChanged() {
		return MemberDelta{}
	}
	return MemberDelta{Added: sortedCopy(w.Added()), Removed: sortedCopy(w.Removed())}
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func pairsCopy(in []watch.Pair[string, int]) []watch.Pair[string, int] {
	if len(in) == 0 {
		return nil
	}
	out := append([]watch.Pair[string, int](nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// worldWatcher composes every world-level watcher, mirroring world structure.
type worldWatcher struct {
	world *worldstate.World

	locations *watch.KeySet[string]
	perLoc    map[string]*locationWatcher

	timeOfDay *watch.Value[int]
	menu      *watch.Value[string]
	window    *watch.Value[worldstate.Size]
	locale    *watch.Value[string]
}

func newWorldWatcher(w *worldstate.World, content ContentCache) *worldWatcher {
	localeGet := func() string { return "" }
	if content != nil {
		localeGet = content.CurrentLocale
	}
	ww := &worldWatcher{
		world:     w,
		locations: watch.NewKeySet(w.LocationNames),
		perLoc:    map[string]*locationWatcher{},
		timeOfDay: watch.NewValue(func() int { return w.TimeOfDay }),
		menu:      watch.NewValue(func() string { return w.ActiveMenu }),
		window:    watch.NewValue(func() worldstate.Size { return w.Window }),
		locale:    watch.NewValue(localeGet),
	}
	for name, loc := range w.Locations {
		ww.perLoc[name] = newLocationWatcher(loc)
	}
	return ww
}

func (ww *worldWatcher) update() {
	ww.timeOfDay.Update()
	ww.menu.Update()
	ww.window.Update()
	ww.locale.Update()

	ww.locations.Update()
	for name, loc := range ww.world.Locations {
		if _, ok := ww.perLoc[name]; !ok {
			ww.perLoc[name] = newLocationWatcher(loc)
		}
	}
	for name, lw := range ww.perLoc {
		if _, ok := ww.world.Locations[name]; !ok {
			delete(ww.perLoc, name)
			continue
		}
		lw.update()
	}
}

func (ww *worldWatcher) reset() {
	ww.timeOfDay.Reset()
	ww.menu.Reset()
	ww.window.Reset()
	ww.locale.Reset()
	ww.locations.Reset()
	for _, lw := range ww.perLoc {
		lw.reset()
	}
}

func (ww *worldWatcher) buildSnapshot(tick uint64) *Snapshot {
	snap := &Snapshot{Tick: tick}

	if ww.locations.IsChanged() {
		snap.LocationsAdded = sortedCopy(ww.locations.Added())
		snap.LocationsRemoved = sortedCopy(ww.locations.Removed())
	}
	names := make([]string, 0, len(ww.perLoc))
	for name := range ww.perLoc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if d := ww.perLoc[name].delta(); d.changed() {
			snap.Locations = append(snap.Locations, d)
		}
	}

	if ww.timeOfDay.IsChanged() {
		snap.TimeChanged = true
		snap.TimeOld, snap.TimeNew = ww.timeOfDay.Old(), ww.timeOfDay.New()
	}
	if ww.menu.IsChanged() {
		snap.MenuChanged = true
		snap.MenuOld, snap.MenuNew = ww.menu.Old(), ww.menu.New()
	}
	if ww.window.IsChanged() {
		snap.WindowChanged = true
		snap.WindowOld, snap.WindowNew = ww.window.Old(), ww.window.New()
	}
	if ww.locale.IsChanged() {
		snap.LocaleChanged = true
		snap.LocaleOld, snap.LocaleNew = ww.locale.Old(), ww.locale.New()
	}
	return snap
}

// playerWatcher tracks one screen's player diffs.
type playerWatcher struct {
	location  *watch.Value[string]
	skills    *watch.Dict[string, int]
	inventory *watch.Dict[string, int]
}

func newPlayerWatcher(w *worldstate.World, screenID int) *playerWatcher {
	p := w.Player(screenID)
	return &playerWatcher{
		location:  watch.NewValue(func() string { return p.Location }),
		skills:    watch.NewDict(func() map[string]int { return p.Skills }),
		inventory: watch.NewDict(func() map[string]int { return p.Inventory }),
	}
}

func (pw *playerWatcher) update() {
	pw.location.Update()
	pw.skills.Update()
	pw.inventory.Update()
}

func (pw *playerWatcher) reset() {
	pw.location.Reset()
	pw.skills.Reset()
	pw.inventory.Reset()
}

// inputWatcher tracks one screen's low-level input diffs. Updated every tick
// even while events are suppressed.
type inputWatcher struct {
	cursor  *watch.Value[worldstate.Point]
	wheel   *watch.Value[int]
	buttons *watch.KeySet[string]
}

func newInputWatcher(w *worldstate.World, screenID int) *inputWatcher {
	in := w.InputFor(screenID)
	return &inputWatcher{
		cursor:  watch.NewValue(func() worldstate.Point { return in.Cursor }),
		wheel:   watch.NewValue(func() int { return in.WheelValue }),
		buttons: watch.NewKeySet(in.HeldButtons),
	}
}

func (iw *inputWatcher) update() {
	iw.cursor.Update()
	iw.wheel.Update()
	iw.buttons.Update()
}

func (iw *inputWatcher) reset() {
	iw.cursor.Reset()
	iw.wheel.Reset()
	iw.buttons.Reset()
}

func (e *Engine) buildScreenSnapshot(ctx *ScreenContext) ScreenSnapshot {
	ss := ScreenSnapshot{ScreenID: ctx.ID}

	pw := ctx.players
	if pw.location.IsChanged() {
		ss.Warped = true
		ss.LocationOld, ss.LocationNew = pw.location.Old(), pw.location.New()
	}
	ss.Levels = pairsCopy(pw.skills.Updated())
	for _, skill := range sortedCopy(pw.skills.Added()) {
		if lvl, ok := pw.skills.Current(skill); ok {
			ss.Levels = append(ss.Levels, watch.Pair[string, int]{Key: skill, Old: 0, New: lvl})
		}
	}
	if pw.inventory.IsChanged() {
		ss.InventoryChanged = true
		ss.InvAdded = sortedCopy(pw.inventory.Added())
		ss.InvRemoved = sortedCopy(pw.inventory.Removed())
		ss.InvUpdated = pairsCopy(pw.inventory.Updated())
	}

	iw := ctx.input
	if iw.cursor.IsChanged() {
		ss.CursorChanged = true
		ss.CursorOld, ss.CursorNew = iw.cursor.Old(), iw.cursor.New()
	}
	if iw.wheel.IsChanged() {
		ss.WheelChanged = true
		ss.WheelOld, ss.WheelNew = iw.wheel.Old(), iw.wheel.New()
	}
	if iw.buttons.IsChanged() {
		ss.Pressed = sortedCopy(iw.buttons.Added())
		ss.Released = sortedCopy(iw.buttons.Removed())
	}
	return ss
}
