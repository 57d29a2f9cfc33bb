// Package worldstate holds the mutable world model the engine observes. The
// engine never mutates it; the host simulation does, between or during ticks,
// on the tick goroutine only.
package worldstate

// Point is a cursor position in screen coordinates.
type Point struct {
	X, Y int
}

// Size is a window size in pixels.
type Size struct {
	W, H int
}

// InputState is the low-level input for one screen. Updated every tick even
// inside suppression windows.
type InputState struct {
	Cursor     Point
	WheelValue int
	Held       map[string]struct{}
}

func NewInputState() *InputState {
	return &InputState{Held: map[string]struct{}{}}
}

func (s *InputState) HeldButtons() []string {
	out := make([]string, 0, len(s.Held))
	for b := range s.Held {
		out = append(out, b)
	}
	return out
}

// Location is one world area with its member collections. Members are tracked
// by identity (name/id), which is what the list-changed events report.
type Location struct {
	Name string

	Buildings       map[string]struct{}
	Debris          map[string]struct{}
	TerrainFeatures map[string]struct{}
	NPCs            map[string]struct{}
	Objects         map[string]struct{}
	Furniture       map[string]struct{}

	// Chests maps chest id -> item -> count.
	Chests map[string]map[string]int
}

func NewLocation(name string) *Location {
	return &Location{
		Name:            name,
		Buildings:       map[string]struct{}{},
		Debris:          map[string]struct{}{},
		TerrainFeatures: map[string]struct{}{},
		NPCs:            map[string]struct{}{},
		Objects:         map[string]struct{}{},
		Furniture:       map[string]struct{}{},
		Chests:          map[string]map[string]int{},
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (l *Location) BuildingNames() []string       { return keys(l.Buildings) }
func (l *Location) DebrisNames() []string         { return keys(l.Debris) }
func (l *Location) TerrainFeatureNames() []string { return keys(l.TerrainFeatures) }
func (l *Location) NPCNames() []string            { return keys(l.NPCs) }
func (l *Location) ObjectNames() []string         { return keys(l.Objects) }
func (l *Location) FurnitureNames() []string      { return keys(l.Furniture) }

func (l *Location) ChestIDs() []string {
	out := make([]string, 0, len(l.Chests))
	for id := range l.Chests {
		out = append(out, id)
	}
	return out
}

// Player is the per-screen player state the engine watches.
type Player struct {
	Location  string
	Skills    map[string]int
	Inventory map[string]int
}

func NewPlayer() *Player {
	return &Player{Skills: map[string]int{}, Inventory: map[string]int{}}
}

// World is the whole observed state. One instance per engine.
type World struct {
	Locations map[string]*Location
	Players   map[int]*Player // keyed by screen id
	Input     map[int]*InputState

	TimeOfDay  int
	Locale     string
	ActiveMenu string
	Window     Size
}

func New() *World {
	return &World{
		Locations: map[string]*Location{},
		Players:   map[int]*Player{},
		Input:     map[int]*InputState{},
	}
}

func (w *World) LocationNames() []string {
	out := make([]string, 0, len(w.Locations))
	for name := range w.Locations {
		out = append(out, name)
	}
	return out
}

// AddLocation creates and registers an empty location.
func (w *World) AddLocation(name string) *Location {
	loc := NewLocation(name)
	w.Locations[name] = loc
	return loc
}

// Player returns the player for a screen, creating it on first use.
func (w *World) Player(screenID int) *Player {
	p := w.Players[screenID]
	if p == nil {
		p = NewPlayer()
		w.Players[screenID] = p
	}
	return p
}

// InputFor returns the input state for a screen, creating it on first use.
func (w *World) InputFor(screenID int) *InputState {
	s := w.Input[screenID]
	if s == nil {
		s = NewInputState()
		w.Input[screenID] = s
	}
	return s
}
