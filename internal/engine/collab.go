package engine

// Collaborator boundaries consumed by the engine. The host supplies
// implementations; every field is optional unless noted.

// ContentCache invalidates cached assets and reports the active locale.
type ContentCache interface {
	// Invalidate drops every cached entry matching the predicate and returns
	// how many were dropped.
	Invalidate(predicate func(key string) bool) int
	CurrentLocale() string
}

// LoadSequence is a finite, non-restartable generator of discrete integer
// checkpoints. The engine drains it to completion within a single tick.
type LoadSequence interface {
	// Next returns the next checkpoint, or ok=false when the sequence is done.
	Next() (checkpoint int, ok bool)
}

// Surface is the output surface used during render passes.
type Surface interface {
	IsOpen() bool
	Open()
	Close()
}

// Multiplayer supplies online-peer context for log text only. Never a control
// dependency.
type Multiplayer interface {
	PeerCount() int
}

// TickLogEntry is one per-tick trace row consumed by the trace log and the
// index backend.
type TickLogEntry struct {
	Tick       uint64  `json:"tick"`
	Stage      string  `json:"stage"`
	Suppressed bool    `json:"suppressed"`
	Screens    int     `json:"screens"`
	Commands   int     `json:"commands"`
	DurationMs float64 `json:"duration_ms"`
	RecordedAt string  `json:"recorded_at"`
}

// FaultEntry is one recorded fault (listener, command, parse or pipeline).
type FaultEntry struct {
	Tick       uint64 `json:"tick"`
	Phase      string `json:"phase"`
	Actor      string `json:"actor"`
	Message    string `json:"message"`
	Peers      int    `json:"peers"`
	RecordedAt string `json:"recorded_at"`
}

// TraceSink receives tick and fault rows. Write failures are logged and never
// affect the tick pipeline.
type TraceSink interface {
	WriteTick(TickLogEntry) error
	WriteFault(FaultEntry) error
}

// Hooks are the host callbacks invoked at fixed points in the tick pipeline.
type Hooks struct {
	// SimStep advances the simulation. Required; invoked exactly once per
	// non-cancelled tick.
	SimStep func()

	// FirstTick runs once before the first full tick body.
	FirstTick func()

	// ReattachIntegrations re-establishes overridden integrations after a
	// return to title, consumed by the next tick.
	ReattachIntegrations func()

	// SwapUI installs the mod-aware UI surface when the stage reaches Loaded.
	SwapUI func()

	// CleanupOnReturn runs synchronously when the stage enters
	// ReturningToTitle, before further dispatch.
	CleanupOnReturn func()

	// OnFatal is invoked once when the crash countdown is exhausted or an
	// unrecoverable condition is hit, after the cancellation signal is set.
	OnFatal func(reason string)

	// IsWindowFocused and IsInputCaptured gate input event dispatch. The
	// capture predicate combines the host's chat/menu/minigame flags; the
	// engine treats it as opaque.
	IsWindowFocused func() bool
	IsInputCaptured func(screenID int) bool
}

// InterceptorChange queues an asset-interceptor add or remove, applied at the
// top of the next tick together with a cache invalidation for affected keys.
type InterceptorChange struct {
	Add       bool
	Name      string
	Owner     string
	Predicate func(key string) bool
}
