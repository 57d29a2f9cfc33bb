package engine

import "sort"

// ScreenContext is the isolated state for one active local screen. Fields are
// read and mutated only during that screen's own tick pass.
type ScreenContext struct {
	ID int

	PendingCommands []QueuedCommand
	LastRenderTick  uint64

	PendingSaveCreated  bool
	PendingSaveLoaded   bool
	JustReturnedToTitle bool

	// loadSequence, when set, is pumped to completion on this screen's next
	// pass (never across ticks).
	loadSequence LoadSequence

	players *playerWatcher
	input   *inputWatcher

	passSuppressed bool
	secondTicking  bool
}

// ScreenStore maps screen ids to their contexts. Storage is one table, but by
// contract a context is only touched during its own screen's pass.
type ScreenStore struct {
	screens map[int]*ScreenContext
}

func NewScreenStore() *ScreenStore {
	return &ScreenStore{screens: map[int]*ScreenContext{}}
}

// Get returns the context for a screen, creating a zeroed one on first access.
func (s *ScreenStore) Get(screenID int) *ScreenContext {
	ctx := s.screens[screenID]
	if ctx == nil {
		ctx = &ScreenContext{ID: screenID}
		s.screens[screenID] = ctx
	}
	return ctx
}

// Remove drops a screen's context. Ownership of when to call this sits with
// the host (screen teardown).
func (s *ScreenStore) Remove(screenID int) {
	delete(s.screens, screenID)
}

// Active returns contexts ordered by screen id so pass order is deterministic.
func (s *ScreenStore) Active() []*ScreenContext {
	out := make([]*ScreenContext, 0, len(s.screens))
	for _, ctx := range s.screens {
		out = append(out, ctx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *ScreenStore) Len() int { return len(s.screens) }
