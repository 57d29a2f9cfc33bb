package engine

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"modhost.dev/internal/logging"
	"modhost.dev/internal/worldstate"
)

func newTestEngine(t *testing.T, w *worldstate.World, opts Options) (*Engine, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mon := logging.New(&buf, "", logging.Trace)
	if w == nil {
		w = worldstate.New()
	}
	if opts.Hooks.SimStep == nil {
		opts.Hooks.SimStep = func() {}
	}
	return New(mon, w, opts), &buf
}

func TestRunTick_CountersAdvanceExactlyOncePerPass(t *testing.T) {
	step := 0
	e, _ := newTestEngine(t, nil, Options{
		CrashTolerance: 60,
		Hooks: Hooks{SimStep: func() {
			step++
			if step == 2 {
				panic("boom")
			}
		}},
	})

	e.RunTick() // success
	e.RunTick() // pipeline fault
	e.TransitionTo(StageSaveParsing)
	e.RunTick() // suppressed
	e.Cancel()
	e.RunTick() // cancelled

	if got := e.TicksElapsed(); got != 4 {
		t.Fatalf("ticksElapsed: got %d want 4", got)
	}
	if got := e.UpdateCount(); got != 4 {
		t.Fatalf("updateCount: got %d want 4", got)
	}
}

func TestRunTick_SimStepRunsOncePerTick(t *testing.T) {
	steps := 0
	e, _ := newTestEngine(t, nil, Options{Hooks: Hooks{SimStep: func() { steps++ }}})
	// Two active screens still mean one simulation step.
	e.Screens().Get(0)
	e.Screens().Get(1)
	e.RunTick()
	if steps != 1 {
		t.Fatalf("simulation step ran %d times, want 1", steps)
	}
}

func TestRunTick_FirstTickHookAndGameLaunched(t *testing.T) {
	first := 0
	e, _ := newTestEngine(t, nil, Options{Hooks: Hooks{FirstTick: func() { first++ }}})
	launched := 0
	e.Events().GameLaunched.Register("modA", func(GameLaunched) { launched++ })

	e.RunTick()
	e.RunTick()
	if first != 1 {
		t.Fatalf("first-tick hook ran %d times, want 1", first)
	}
	if launched != 1 {
		t.Fatalf("GameLaunched fired %d times, want 1", launched)
	}
}

// Scenario: a tick arrives while the load stage is Saving. Only the
// unvalidated pre/post pair fires; world events stay withheld despite real
// watcher-visible changes underneath.
func TestRunTick_SavingSuppressesWorldEvents(t *testing.T) {
	w := worldstate.New()
	farm := w.AddLocation("Farm")
	farm.NPCs["npc2"] = struct{}{}

	e, _ := newTestEngine(t, w, Options{})
	var fired []string
	e.Events().NPCListChanged.Register("modA", func(MemberListChanged) { fired = append(fired, "npc") })
	e.Events().TimeChanged.Register("modA", func(TimeChanged) { fired = append(fired, "time") })
	e.Events().UnvalidatedUpdateTicking.Register("modA", func(TickInfo) { fired = append(fired, "pre") })
	e.Events().UnvalidatedUpdateTicked.Register("modA", func(TickInfo) { fired = append(fired, "post") })
	e.Events().UpdateTicking.Register("modA", func(TickInfo) { fired = append(fired, "ticking") })

	e.TransitionTo(StageReady)
	e.TransitionTo(StageSaving)

	farm.NPCs["npc1"] = struct{}{}
	w.TimeOfDay = 900
	e.RunTick()

	if got, want := strings.Join(fired, ","), "pre,post"; got != want {
		t.Fatalf("suppressed tick events: got %q want %q", got, want)
	}

	// Resuming at Ready releases the accumulated diffs on that same tick.
	fired = nil
	e.TransitionTo(StageReady)
	e.RunTick()
	joined := strings.Join(fired, ",")
	if !strings.Contains(joined, "npc") || !strings.Contains(joined, "time") {
		t.Fatalf("resumed tick must release withheld diffs: got %q", joined)
	}
	if strings.Contains(joined, "pre") || strings.Contains(joined, "post") {
		t.Fatalf("unvalidated pair must not fire outside suppression: %q", joined)
	}
}

// Scenario: between two ticks, Farm gains npc1 and loses npc2. Exactly one
// NPC list event fires, for Farm only, with the exact identity delta.
func TestRunTick_NPCListDeltaPerLocation(t *testing.T) {
	w := worldstate.New()
	farm := w.AddLocation("Farm")
	farm.NPCs["npc2"] = struct{}{}
	town := w.AddLocation("Town")
	town.NPCs["mayor"] = struct{}{}

	e, _ := newTestEngine(t, w, Options{})
	e.TransitionTo(StageReady)

	var got []MemberListChanged
	e.Events().NPCListChanged.Register("modA", func(c MemberListChanged) { got = append(got, c) })

	e.RunTick() // baseline pass, no changes yet
	if len(got) != 0 {
		t.Fatalf("no-op tick fired %d NPC events", len(got))
	}

	farm.NPCs["npc1"] = struct{}{}
	delete(farm.NPCs, "npc2")
	e.RunTick()

	if len(got) != 1 {
		t.Fatalf("NPC events: got %d want 1 (%+v)", len(got), got)
	}
	ev := got[0]
	if ev.Location != "Farm" {
		t.Fatalf("location: got %q want Farm", ev.Location)
	}
	if len(ev.Added) != 1 || ev.Added[0] != "npc1" {
		t.Fatalf("added: got %v want [npc1]", ev.Added)
	}
	if len(ev.Removed) != 1 || ev.Removed[0] != "npc2" {
		t.Fatalf("removed: got %v want [npc2]", ev.Removed)
	}
}

// Scenario: pipeline faults on five consecutive ticks with tolerance 60 leave
// 55 remaining and no shutdown; one success restores full tolerance.
func TestRunTick_CountdownDrainAndRestore(t *testing.T) {
	failing := true
	fatals := 0
	e, _ := newTestEngine(t, nil, Options{
		CrashTolerance: 60,
		Hooks: Hooks{
			SimStep: func() {
				if failing {
					panic("tick exploded")
				}
			},
			OnFatal: func(string) { fatals++ },
		},
	})

	for i := 0; i < 5; i++ {
		e.RunTick()
	}
	if got := e.CrashToleranceRemaining(); got != 55 {
		t.Fatalf("remaining after 5 faults: got %d want 55", got)
	}
	if fatals != 0 || e.Cancelled() {
		t.Fatalf("no fatal shutdown expected at remaining=55")
	}

	failing = false
	e.RunTick()
	if got := e.CrashToleranceRemaining(); got != 60 {
		t.Fatalf("remaining after success: got %d want 60", got)
	}
}

func TestRunTick_CountdownExhaustionIsFatal(t *testing.T) {
	fatals := 0
	e, buf := newTestEngine(t, nil, Options{
		CrashTolerance: 2,
		Hooks: Hooks{
			SimStep: func() { panic("always broken") },
			OnFatal: func(string) { fatals++ },
		},
	})

	e.RunTick()
	if e.Cancelled() {
		t.Fatalf("cancelled too early")
	}
	e.RunTick()
	if !e.Cancelled() {
		t.Fatalf("exhausted countdown must set the cancellation signal")
	}
	if fatals != 1 {
		t.Fatalf("OnFatal ran %d times, want 1", fatals)
	}
	if e.FatalReason() == "" {
		t.Fatalf("fatal reason must be descriptive")
	}
	if !strings.Contains(buf.String(), "FATAL") {
		t.Fatalf("fatal fault must be logged distinctly: %q", buf.String())
	}

	// Past the fatal point a pass reduces to counter upkeep.
	before := e.TicksElapsed()
	e.RunTick()
	if e.TicksElapsed() != before+1 {
		t.Fatalf("counters must keep advancing after cancellation")
	}
	if fatals != 1 {
		t.Fatalf("OnFatal must not repeat")
	}
}

func TestRunTick_CommandsRunInOwnScreenPass(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{})
	var order []string
	err := e.Commands().RegisterCommand(&Command{
		Name:  "probe",
		Owner: "modA",
		Handler: func(screenID int, _ string, _ []string) {
			order = append(order, fmt.Sprintf("cmd@%d", screenID))
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	e.Events().UpdateTicking.Register("modA", func(ti TickInfo) {
		order = append(order, fmt.Sprintf("tick@%d", ti.ScreenID))
	})

	e.Commands().Enqueue("@2 probe")
	e.Commands().Enqueue("@1 probe")
	e.RunTick()

	want := "cmd@1,tick@1,cmd@2,tick@2"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("pass order: got %q want %q", got, want)
	}
}

func TestRunTick_ParseFaultSkipsEntryOnly(t *testing.T) {
	e, buf := newTestEngine(t, nil, Options{})
	ran := 0
	_ = e.Commands().RegisterCommand(&Command{
		Name:    "ok",
		Owner:   "modA",
		Handler: func(int, string, []string) { ran++ },
	})

	e.Commands().Enqueue("definitely-not-a-command")
	e.Commands().Enqueue("ok")
	e.RunTick()

	if ran != 1 {
		t.Fatalf("valid command ran %d times, want 1", ran)
	}
	if !strings.Contains(buf.String(), "definitely-not-a-command") {
		t.Fatalf("parse fault must be logged: %q", buf.String())
	}
}

func TestRunTick_CommandPanicIsIsolated(t *testing.T) {
	e, buf := newTestEngine(t, nil, Options{})
	ran := 0
	_ = e.Commands().RegisterCommand(&Command{
		Name: "bad", Owner: "modB",
		Handler: func(int, string, []string) { panic("handler broke") },
	})
	_ = e.Commands().RegisterCommand(&Command{
		Name: "good", Owner: "modA",
		Handler: func(int, string, []string) { ran++ },
	})

	e.Commands().Enqueue("bad")
	e.Commands().Enqueue("good")
	e.RunTick()

	if ran != 1 {
		t.Fatalf("sibling command ran %d times, want 1", ran)
	}
	if got := e.CrashToleranceRemaining(); got != 60 {
		t.Fatalf("isolated command fault must not drain the countdown: %d", got)
	}
	if !strings.Contains(buf.String(), "modB") {
		t.Fatalf("command fault must name the owner: %q", buf.String())
	}
}

func TestRunTick_OneSecondCadence(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{SecondEveryTicks: 5})
	e.TransitionTo(StageReady)

	var ticking, ticked []uint64
	e.Events().OneSecondUpdateTicking.Register("modA", func(ti TickInfo) { ticking = append(ticking, ti.Ticks) })
	e.Events().OneSecondUpdateTicked.Register("modA", func(ti TickInfo) { ticked = append(ticked, ti.Ticks) })

	for i := 0; i < 10; i++ {
		e.RunTick()
	}
	if len(ticking) != 2 || ticking[0] != 4 || ticking[1] != 9 {
		t.Fatalf("one-second ticking at %v, want [4 9]", ticking)
	}
	if len(ticked) != 2 || ticked[0] != 4 || ticked[1] != 9 {
		t.Fatalf("one-second ticked at %v, want [4 9]", ticked)
	}
}

func TestRunTick_LoadSequencePumpedWithinOneTick(t *testing.T) {
	w := worldstate.New()
	e, _ := newTestEngine(t, w, Options{})

	var stages []StageChanged
	loaded := 0
	e.Events().StageChanged.Register("modA", func(c StageChanged) { stages = append(stages, c) })
	e.Events().SaveLoaded.Register("modA", func(SaveLoaded) { loaded++ })

	e.BeginLoad(0, &scriptedLoad{checkpoints: []int{
		CheckpointParseStarted,
		CheckpointBasicInfoLoaded,
		CheckpointLocationsLoaded,
		CheckpointPreloaded,
		CheckpointLoadComplete,
	}})
	e.RunTick()

	if got := e.Stage(); got != StageLoaded {
		t.Fatalf("stage after pump: got %s want Loaded", got)
	}
	if len(stages) != 5 {
		t.Fatalf("stage transitions in one tick: got %d want 5 (%+v)", len(stages), stages)
	}
	if loaded != 0 {
		t.Fatalf("SaveLoaded must wait for Ready")
	}

	e.TransitionTo(StageReady)
	e.RunTick()
	if loaded != 1 {
		t.Fatalf("SaveLoaded fired %d times on the first Ready tick, want 1", loaded)
	}
}

func TestRunTick_LoadPumpLimitIsPipelineFault(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{LoadPumpLimit: 8, CrashTolerance: 60})
	e.BeginLoad(0, &endlessLoad{})
	e.RunTick()
	if got := e.CrashToleranceRemaining(); got != 59 {
		t.Fatalf("runaway load sequence must count as a pipeline fault: remaining=%d", got)
	}
}

func TestRunTick_InputCaptureSuppressesInputEventsOnly(t *testing.T) {
	w := worldstate.New()
	captured := true
	e, _ := newTestEngine(t, w, Options{
		Hooks: Hooks{IsInputCaptured: func(int) bool { return captured }},
	})
	e.TransitionTo(StageReady)

	cursorMoves, timeChanges := 0, 0
	e.Events().CursorMoved.Register("modA", func(CursorMoved) { cursorMoves++ })
	e.Events().TimeChanged.Register("modA", func(TimeChanged) { timeChanges++ })

	e.RunTick()
	w.InputFor(0).Cursor = worldstate.Point{X: 10, Y: 4}
	w.TimeOfDay = 700
	e.RunTick()
	if cursorMoves != 0 {
		t.Fatalf("captured input must not dispatch cursor events")
	}
	if timeChanges != 1 {
		t.Fatalf("capture gate must not affect world events: time fired %d times", timeChanges)
	}

	captured = false
	w.InputFor(0).Cursor = worldstate.Point{X: 20, Y: 8}
	e.RunTick()
	if cursorMoves != 1 {
		t.Fatalf("cursor events resume once capture clears: got %d", cursorMoves)
	}
}

func TestRunTick_InterceptorChangesInvalidateContent(t *testing.T) {
	content := &fakeContent{locale: "en"}
	e, _ := newTestEngine(t, nil, Options{Content: content})

	e.QueueInterceptorChange(InterceptorChange{
		Add:       true,
		Name:      "modA.maps",
		Owner:     "modA",
		Predicate: func(key string) bool { return strings.HasPrefix(key, "Maps/") },
	})
	e.RunTick()

	if content.invalidations != 1 {
		t.Fatalf("invalidate ran %d times, want 1", content.invalidations)
	}
	if !content.lastPredicate("Maps/Farm") || content.lastPredicate("Data/Crops") {
		t.Fatalf("predicate must be passed through unchanged")
	}
}

func TestRunTick_LocaleChangeDispatched(t *testing.T) {
	content := &fakeContent{locale: "en"}
	e, _ := newTestEngine(t, nil, Options{Content: content})
	e.TransitionTo(StageReady)

	var got []LocaleChanged
	e.Events().LocaleChanged.Register("modA", func(c LocaleChanged) { got = append(got, c) })

	e.RunTick()
	content.locale = "de"
	e.RunTick()
	if len(got) != 1 || got[0].Old != "en" || got[0].New != "de" {
		t.Fatalf("locale changes: got %+v", got)
	}
}

func TestRunTick_WarpAndInventoryEvents(t *testing.T) {
	w := worldstate.New()
	p := w.Player(0)
	p.Location = "Farm"
	p.Inventory["wood"] = 5

	e, _ := newTestEngine(t, w, Options{})
	e.TransitionTo(StageReady)

	var warps []Warped
	var invs []InventoryChanged
	var levels []LevelChanged
	e.Events().Warped.Register("modA", func(c Warped) { warps = append(warps, c) })
	e.Events().InventoryChanged.Register("modA", func(c InventoryChanged) { invs = append(invs, c) })
	e.Events().LevelChanged.Register("modA", func(c LevelChanged) { levels = append(levels, c) })

	e.RunTick()
	p.Location = "Town"
	p.Inventory["wood"] = 2
	p.Skills["mining"] = 1
	e.RunTick()

	if len(warps) != 1 || warps[0].Old != "Farm" || warps[0].New != "Town" {
		t.Fatalf("warps: got %+v", warps)
	}
	if len(invs) != 1 || len(invs[0].Updated) != 1 || invs[0].Updated[0].New != 2 {
		t.Fatalf("inventory: got %+v", invs)
	}
	if len(levels) != 1 || levels[0].Skill != "mining" || levels[0].Old != 0 || levels[0].New != 1 {
		t.Fatalf("levels: got %+v", levels)
	}
}

type scriptedLoad struct {
	checkpoints []int
	i           int
}

func (s *scriptedLoad) Next() (int, bool) {
	if s.i >= len(s.checkpoints) {
		return 0, false
	}
	cp := s.checkpoints[s.i]
	s.i++
	return cp, true
}

type endlessLoad struct{}

func (endlessLoad) Next() (int, bool) { return 0, true }

type fakeContent struct {
	locale        string
	invalidations int
	lastPredicate func(key string) bool
}

func (c *fakeContent) Invalidate(pred func(key string) bool) int {
	c.invalidations++
	c.lastPredicate = pred
	return 3
}

func (c *fakeContent) CurrentLocale() string { return c.locale }
