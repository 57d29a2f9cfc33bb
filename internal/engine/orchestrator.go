package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"modhost.dev/internal/logging"
	"modhost.dev/internal/worldstate"
)

// Load-sequence checkpoints the engine maps to load-stage transitions.
// Unknown checkpoints are ignored.
const (
	CheckpointParseStarted    = 1
	CheckpointBasicInfoLoaded = 2
	CheckpointLocationsLoaded = 3
	CheckpointPreloaded       = 4
	CheckpointSaveFileCreated = 5
	CheckpointLoadComplete    = 6
)

var checkpointStages = map[int]LoadStage{
	CheckpointParseStarted:    StageSaveParsing,
	CheckpointBasicInfoLoaded: StageSaveLoadedBasicInfo,
	CheckpointLocationsLoaded: StageSaveLoadedLocations,
	CheckpointPreloaded:       StagePreloaded,
	CheckpointSaveFileCreated: StageCreatedSaveFile,
	CheckpointLoadComplete:    StageLoaded,
}

// Options configures one engine instance.
type Options struct {
	// CrashTolerance is how many consecutive failed ticks are tolerated
	// before fatal shutdown. Defaults to 60.
	CrashTolerance int

	// SecondEveryTicks is the cadence of the one-second tick events.
	// Defaults to 60.
	SecondEveryTicks int

	// LoadPumpLimit bounds the same-tick load-sequence pump. Defaults to 4096.
	LoadPumpLimit int

	Content     ContentCache
	Multiplayer Multiplayer
	Surface     Surface
	Trace       TraceSink

	Hooks Hooks
}

// Engine orchestrates one tick of the host simulation: command routing,
// watcher diffs, ordered event dispatch, suppression windows and crash
// recovery. All state is instance-owned; nothing here is process-global.
//
// RunTick and every component except Enqueue, the event registry and
// QueueInterceptorChange must be called from the single tick goroutine.
type Engine struct {
	mon   *logging.Monitor
	world *worldstate.World

	events    *Events
	commands  *CommandQueue
	screens   *ScreenStore
	countdown *Countdown

	content     ContentCache
	multiplayer Multiplayer
	surface     Surface
	trace       TraceSink
	hooks       Hooks

	secondEveryTicks uint64
	loadPumpLimit    int

	stage LoadStage
	ww    *worldWatcher

	interceptorMu      sync.Mutex
	interceptorChanges []InterceptorChange
	interceptors       map[string]func(key string) bool

	ticksElapsed uint64
	updateCount  uint64

	cancelled    atomic.Bool
	fatalReason  string
	firstTickRan bool
	launched     bool

	commandsThisTick int
	faultsThisTick   int
}

func New(mon *logging.Monitor, world *worldstate.World, opts Options) *Engine {
	if opts.CrashTolerance <= 0 {
		opts.CrashTolerance = 60
	}
	if opts.SecondEveryTicks <= 0 {
		opts.SecondEveryTicks = 60
	}
	if opts.LoadPumpLimit <= 0 {
		opts.LoadPumpLimit = 4096
	}
	e := &Engine{
		mon:              mon,
		world:            world,
		events:           NewEvents(mon),
		commands:         NewCommandQueue(),
		screens:          NewScreenStore(),
		countdown:        NewCountdown(opts.CrashTolerance),
		content:          opts.Content,
		multiplayer:      opts.Multiplayer,
		surface:          opts.Surface,
		trace:            opts.Trace,
		hooks:            opts.Hooks,
		secondEveryTicks: uint64(opts.SecondEveryTicks),
		loadPumpLimit:    opts.LoadPumpLimit,
		interceptors:     map[string]func(key string) bool{},
	}
	e.ww = newWorldWatcher(world, opts.Content)
	return e
}

func (e *Engine) Events() *Events          { return e.events }
func (e *Engine) Commands() *CommandQueue  { return e.commands }
func (e *Engine) Screens() *ScreenStore    { return e.screens }
func (e *Engine) TicksElapsed() uint64     { return e.ticksElapsed }
func (e *Engine) UpdateCount() uint64      { return e.updateCount }
func (e *Engine) Cancelled() bool          { return e.cancelled.Load() }
func (e *Engine) FatalReason() string      { return e.fatalReason }

// CrashToleranceRemaining reports how many more consecutive failed ticks are
// tolerated before fatal shutdown.
func (e *Engine) CrashToleranceRemaining() int { return e.countdown.Remaining() }

// Cancel sets the process-wide cancellation signal. Set once; gameplay-
// affecting steps stop on the next pass, tick counters keep advancing.
func (e *Engine) Cancel() {
	e.cancelled.CompareAndSwap(false, true)
}

// BeginLoad attaches a background load sequence to a screen. It is pumped to
// completion during that screen's next pass, within a single tick.
func (e *Engine) BeginLoad(screenID int, seq LoadSequence) {
	e.screens.Get(screenID).loadSequence = seq
}

// QueueInterceptorChange defers an asset-interceptor add/remove to the top of
// the next tick, where affected cached content is invalidated in one batch.
func (e *Engine) QueueInterceptorChange(ch InterceptorChange) {
	e.interceptorMu.Lock()
	e.interceptorChanges = append(e.interceptorChanges, ch)
	e.interceptorMu.Unlock()
}

// RunTick executes one full orchestrator pass. It never panics and never
// blocks the caller on observer failures; after a fatal fault the pass
// reduces to counter upkeep.
func (e *Engine) RunTick() {
	start := time.Now()
	e.commandsThisTick = 0
	e.faultsThisTick = 0

	// Deferred diagnostics first so early-tick context precedes new output.
	e.mon.Flush()

	if !e.firstTickRan {
		e.firstTickRan = true
		if e.hooks.FirstTick != nil {
			e.hooks.FirstTick()
		}
	}

	if e.cancelled.Load() {
		e.advanceCounters()
		return
	}

	suppressed := e.stage.suppressesEvents()
	if err := e.runTickBody(); err != nil {
		peers := 0
		if e.multiplayer != nil {
			peers = e.multiplayer.PeerCount()
		}
		e.mon.Log("", logging.Error, "tick %d failed (stage=%s peers=%d): %v", e.ticksElapsed, e.stage, peers, err)
		e.recordFault("pipeline", "", err.Error(), peers)
		if !e.countdown.Decrement() {
			e.fatal(fmt.Sprintf("shutting down after %d consecutive failed ticks; last error: %v", e.countdown.Capacity(), err))
		}
	} else {
		e.countdown.Reset()
	}

	e.recordTick(start, suppressed)
	e.advanceCounters()
}

// runTickBody covers the fault-countdown scope of the pass: interceptor
// changes, command routing, the per-screen passes and the simulation step.
// Listener, command and parse faults are isolated below this level and do
// not surface here.
func (e *Engine) runTickBody() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick pipeline panic: %v", r)
		}
	}()

	e.applyInterceptorChanges()
	e.routeQueuedCommands()

	screens := e.screens.Active()
	if len(screens) == 0 {
		// The primary screen always exists once ticking starts.
		screens = []*ScreenContext{e.screens.Get(0)}
	}

	for i, ctx := range screens {
		if err := e.preUpdatePass(ctx, i == 0); err != nil {
			return err
		}
	}

	if e.hooks.SimStep == nil {
		return fmt.Errorf("no simulation step callback configured")
	}
	e.hooks.SimStep()

	for _, ctx := range screens {
		e.postUpdatePass(ctx)
	}
	return nil
}

// preUpdatePass runs one screen's pass up to (and including) the ticking
// events; the simulation step and the ticked events follow after every
// screen's pre-pass.
func (e *Engine) preUpdatePass(ctx *ScreenContext, primary bool) error {
	ctx.passSuppressed = false
	ctx.secondTicking = false

	if ctx.JustReturnedToTitle {
		ctx.JustReturnedToTitle = false
		if e.hooks.ReattachIntegrations != nil {
			e.hooks.ReattachIntegrations()
		}
	}

	e.runScreenCommands(ctx)

	if ctx.players == nil {
		ctx.players = newPlayerWatcher(e.world, ctx.ID)
	}
	if ctx.input == nil {
		ctx.input = newInputWatcher(e.world, ctx.ID)
	}

	// Low-level input advances even inside suppression windows.
	ctx.input.update()

	if ctx.loadSequence != nil {
		if err := e.pumpLoadSequence(ctx); err != nil {
			return err
		}
	}

	if e.stage.suppressesEvents() {
		// The world is transiently inconsistent; withhold watcher-driven
		// events and discard this tick's input diffs.
		ctx.passSuppressed = true
		ctx.input.reset()
		ticks := e.ticksElapsed
		e.events.UnvalidatedUpdateTicking.Raise(func() TickInfo {
			return TickInfo{ScreenID: ctx.ID, Ticks: ticks}
		})
		return nil
	}

	e.validatedPass(ctx, primary)
	return nil
}

// validatedPass updates watchers, builds the snapshot, dispatches the fixed
// event order, then resets the watchers. Diffs are only valid between the
// update and the reset.
func (e *Engine) validatedPass(ctx *ScreenContext, primary bool) {
	ticks := e.ticksElapsed
	screenID := ctx.ID

	ctx.players.update()
	var snap *Snapshot
	if primary {
		e.ww.update()
		snap = e.ww.buildSnapshot(ticks)
	}
	ss := e.buildScreenSnapshot(ctx)

	// Save/create boundaries armed by earlier stage transitions.
	if ctx.PendingSaveCreated {
		ctx.PendingSaveCreated = false
		e.events.SaveCreated.Raise(func() SaveCreated { return SaveCreated{ScreenID: screenID} })
	}
	if ctx.PendingSaveLoaded {
		ctx.PendingSaveLoaded = false
		e.events.SaveLoaded.Raise(func() SaveLoaded { return SaveLoaded{ScreenID: screenID} })
	}

	if primary {
		if snap.LocaleChanged {
			e.events.LocaleChanged.Raise(func() LocaleChanged {
				return LocaleChanged{Old: snap.LocaleOld, New: snap.LocaleNew}
			})
		}
		// Stage-boundary events are raised synchronously by TransitionTo,
		// which slots them here in tick order via the load pump above.
		if snap.WindowChanged {
			e.events.WindowResized.Raise(func() WindowResized {
				return WindowResized{Old: snap.WindowOld, New: snap.WindowNew}
			})
		}
	}

	e.raiseInputEvents(ctx, ss)

	if primary {
		if snap.MenuChanged {
			e.events.MenuChanged.Raise(func() MenuChanged {
				return MenuChanged{Old: snap.MenuOld, New: snap.MenuNew}
			})
		}
		e.raiseWorldEvents(snap)
		if snap.TimeChanged {
			e.events.TimeChanged.Raise(func() TimeChanged {
				return TimeChanged{Old: snap.TimeOld, New: snap.TimeNew}
			})
		}
	}

	e.raisePlayerEvents(ctx, ss)

	if primary && !e.launched {
		e.launched = true
		e.events.GameLaunched.Raise(func() GameLaunched { return GameLaunched{} })
	}

	e.events.UpdateTicking.Raise(func() TickInfo {
		return TickInfo{ScreenID: screenID, Ticks: ticks}
	})
	if (ticks+1)%e.secondEveryTicks == 0 {
		ctx.secondTicking = true
		e.events.OneSecondUpdateTicking.Raise(func() TickInfo {
			return TickInfo{ScreenID: screenID, Ticks: ticks}
		})
	}

	// Snapshot diffs are dead past this point.
	ctx.players.reset()
	ctx.input.reset()
	if primary {
		e.ww.reset()
	}
}

func (e *Engine) raiseInputEvents(ctx *ScreenContext, ss ScreenSnapshot) {
	if e.hooks.IsWindowFocused != nil && !e.hooks.IsWindowFocused() {
		return
	}
	if e.hooks.IsInputCaptured != nil && e.hooks.IsInputCaptured(ctx.ID) {
		return
	}
	if ss.CursorChanged {
		e.events.CursorMoved.Raise(func() CursorMoved {
			return CursorMoved{ScreenID: ss.ScreenID, Old: ss.CursorOld, New: ss.CursorNew}
		})
	}
	if ss.WheelChanged {
		e.events.MouseWheelScrolled.Raise(func() MouseWheelScrolled {
			return MouseWheelScrolled{ScreenID: ss.ScreenID, Old: ss.WheelOld, New: ss.WheelNew}
		})
	}
	if len(ss.Pressed) > 0 || len(ss.Released) > 0 {
		e.events.ButtonsChanged.Raise(func() ButtonsChanged {
			return ButtonsChanged{ScreenID: ss.ScreenID, Pressed: ss.Pressed, Released: ss.Released}
		})
	}
}

func (e *Engine) raiseWorldEvents(snap *Snapshot) {
	if len(snap.LocationsAdded) > 0 || len(snap.LocationsRemoved) > 0 {
		e.events.LocationListChanged.Raise(func() LocationListChanged {
			return LocationListChanged{Added: snap.LocationsAdded, Removed: snap.LocationsRemoved}
		})
	}
	for i := range snap.Locations {
		d := &snap.Locations[i]
		raiseMembers := func(ev *Event[MemberListChanged], md MemberDelta) {
			if !md.changed() {
				return
			}
			ev.Raise(func() MemberListChanged {
				return MemberListChanged{Location: d.Name, Added: md.Added, Removed: md.Removed}
			})
		}
		raiseMembers(e.events.BuildingListChanged, d.Buildings)
		raiseMembers(e.events.DebrisListChanged, d.Debris)
		raiseMembers(e.events.TerrainFeatureListChanged, d.TerrainFeatures)
		raiseMembers(e.events.NPCListChanged, d.NPCs)
		raiseMembers(e.events.ObjectListChanged, d.Objects)
		for _, cd := range d.Chests {
			cd := cd
			e.events.ChestInventoryChanged.Raise(func() ChestInventoryChanged {
				return ChestInventoryChanged{
					Location: d.Name,
					Chest:    cd.Chest,
					Added:    cd.Added,
					Removed:  cd.Removed,
					Updated:  cd.Updated,
				}
			})
		}
		raiseMembers(e.events.FurnitureListChanged, d.Furniture)
	}
}

func (e *Engine) raisePlayerEvents(ctx *ScreenContext, ss ScreenSnapshot) {
	if ss.Warped {
		e.events.Warped.Raise(func() Warped {
			return Warped{ScreenID: ss.ScreenID, Old: ss.LocationOld, New: ss.LocationNew}
		})
	}
	for _, lvl := range ss.Levels {
		lvl := lvl
		e.events.LevelChanged.Raise(func() LevelChanged {
			return LevelChanged{ScreenID: ss.ScreenID, Skill: lvl.Key, Old: lvl.Old, New: lvl.New}
		})
	}
	if ss.InventoryChanged {
		e.events.InventoryChanged.Raise(func() InventoryChanged {
			return InventoryChanged{
				ScreenID: ss.ScreenID,
				Added:    ss.InvAdded,
				Removed:  ss.InvRemoved,
				Updated:  ss.InvUpdated,
			}
		})
	}
}

func (e *Engine) postUpdatePass(ctx *ScreenContext) {
	ticks := e.ticksElapsed
	screenID := ctx.ID
	if ctx.passSuppressed {
		e.events.UnvalidatedUpdateTicked.Raise(func() TickInfo {
			return TickInfo{ScreenID: screenID, Ticks: ticks}
		})
		return
	}
	e.events.UpdateTicked.Raise(func() TickInfo {
		return TickInfo{ScreenID: screenID, Ticks: ticks}
	})
	if ctx.secondTicking {
		e.events.OneSecondUpdateTicked.Raise(func() TickInfo {
			return TickInfo{ScreenID: screenID, Ticks: ticks}
		})
	}
}

// pumpLoadSequence drains a background load sequence to completion within
// this tick, mapping checkpoints to stage transitions. It never spans a tick
// boundary mid-sequence.
func (e *Engine) pumpLoadSequence(ctx *ScreenContext) error {
	seq := ctx.loadSequence
	ctx.loadSequence = nil
	for i := 0; ; i++ {
		if i >= e.loadPumpLimit {
			return fmt.Errorf("load sequence exceeded %d checkpoints", e.loadPumpLimit)
		}
		cp, ok := seq.Next()
		if !ok {
			return nil
		}
		if stage, mapped := checkpointStages[cp]; mapped {
			e.TransitionTo(stage)
		} else {
			e.mon.Log("", logging.Trace, "load checkpoint %d (unmapped)", cp)
		}
	}
}

func (e *Engine) runScreenCommands(ctx *ScreenContext) {
	pending := ctx.PendingCommands
	ctx.PendingCommands = nil
	for _, qc := range pending {
		e.invokeCommand(qc)
	}
}

func (e *Engine) invokeCommand(qc QueuedCommand) {
	defer func() {
		if r := recover(); r != nil {
			e.mon.Log(qc.Command.Owner, logging.Error, "command %s failed: %v", qc.Name, r)
			e.recordFault("command", qc.Command.Owner, fmt.Sprintf("command %s: %v", qc.Name, r), 0)
		}
	}()
	qc.Command.Handler(qc.ScreenID, qc.Name, qc.Args)
}

func (e *Engine) routeQueuedCommands() {
	for _, line := range e.commands.drainRaw() {
		qc, err := e.commands.parseLine(line)
		if err != nil {
			e.mon.Log("", logging.Warn, "ignoring command %q: %v", line, err)
			e.recordFault("parse", "", err.Error(), 0)
			continue
		}
		if qc == nil {
			continue
		}
		e.commandsThisTick++
		ctx := e.screens.Get(qc.ScreenID)
		ctx.PendingCommands = append(ctx.PendingCommands, *qc)
	}
}

func (e *Engine) applyInterceptorChanges() {
	e.interceptorMu.Lock()
	changes := e.interceptorChanges
	e.interceptorChanges = nil
	e.interceptorMu.Unlock()

	for _, ch := range changes {
		if ch.Add {
			e.interceptors[ch.Name] = ch.Predicate
		} else {
			delete(e.interceptors, ch.Name)
		}
		if e.content != nil && ch.Predicate != nil {
			n := e.content.Invalidate(ch.Predicate)
			e.mon.Log(ch.Owner, logging.Trace, "interceptor %s %s; invalidated %d cached assets",
				ch.Name, addOrRemove(ch.Add), n)
		}
	}
}

func addOrRemove(add bool) string {
	if add {
		return "added"
	}
	return "removed"
}

func (e *Engine) fatal(reason string) {
	e.fatalReason = reason
	e.mon.Log("", logging.Fatal, "%s", reason)
	e.cancelled.CompareAndSwap(false, true)
	if e.hooks.OnFatal != nil {
		e.hooks.OnFatal(reason)
	}
}

func (e *Engine) advanceCounters() {
	e.ticksElapsed++
	e.updateCount++
}

func (e *Engine) recordTick(start time.Time, suppressed bool) {
	if e.trace == nil {
		return
	}
	entry := TickLogEntry{
		Tick:       e.ticksElapsed,
		Stage:      e.stage.String(),
		Suppressed: suppressed,
		Screens:    e.screens.Len(),
		Commands:   e.commandsThisTick,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := e.trace.WriteTick(entry); err != nil {
		e.mon.Log("", logging.Warn, "trace sink: write tick: %v", err)
	}
}

func (e *Engine) recordFault(phase, actor, message string, peers int) {
	e.faultsThisTick++
	if e.trace == nil {
		return
	}
	entry := FaultEntry{
		Tick:       e.ticksElapsed,
		Phase:      phase,
		Actor:      actor,
		Message:    message,
		Peers:      peers,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := e.trace.WriteFault(entry); err != nil {
		e.mon.Log("", logging.Warn, "trace sink: write fault: %v", err)
	}
}
