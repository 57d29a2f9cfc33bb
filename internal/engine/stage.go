package engine

import "modhost.dev/internal/logging"

// LoadStage is the world-readiness phase. Transitions happen one direction per
// call; the engine gates watcher-driven events on it.
type LoadStage int

const (
	StageNone LoadStage = iota
	StageSaveParsing
	StageSaveLoadedBasicInfo
	StageSaveLoadedLocations
	StagePreloaded
	StageCreatedSaveFile
	StageLoaded
	StageReady
	StageSaving
	StageReturningToTitle
)

func (s LoadStage) String() string {
	switch s {
	case StageNone:
		return "None"
	case StageSaveParsing:
		return "SaveParsing"
	case StageSaveLoadedBasicInfo:
		return "SaveLoadedBasicInfo"
	case StageSaveLoadedLocations:
		return "SaveLoadedLocations"
	case StagePreloaded:
		return "Preloaded"
	case StageCreatedSaveFile:
		return "CreatedSaveFile"
	case StageLoaded:
		return "Loaded"
	case StageReady:
		return "Ready"
	case StageSaving:
		return "Saving"
	case StageReturningToTitle:
		return "ReturningToTitle"
	default:
		return "Unknown"
	}
}

// suppressesEvents reports whether the world is transiently inconsistent at
// this stage, withholding watcher-driven events until StageReady.
func (s LoadStage) suppressesEvents() bool {
	switch s {
	case StageSaveParsing, StageSaveLoadedBasicInfo, StageSaveLoadedLocations,
		StagePreloaded, StageCreatedSaveFile, StageLoaded, StageSaving:
		return true
	default:
		return false
	}
}

// Stage returns the current load stage.
func (e *Engine) Stage() LoadStage { return e.stage }

// TransitionTo advances the load stage. Re-entering the current stage is a
// no-op. Every real transition raises one StageChanged event; reaching
// StageNone additionally raises ReturnedToTitle and arms the one-shot
// reattach flag consumed by the next tick.
func (e *Engine) TransitionTo(next LoadStage) {
	old := e.stage
	if next == old {
		return
	}
	e.stage = next
	e.mon.Log("", logging.Trace, "load stage: %s -> %s", old, next)

	switch next {
	case StageReturningToTitle:
		// Cleanup collaborators run before any further dispatch this tick.
		if e.hooks.CleanupOnReturn != nil {
			e.hooks.CleanupOnReturn()
		}
	case StageNone:
		for _, ctx := range e.screens.Active() {
			ctx.JustReturnedToTitle = true
		}
	case StageLoaded:
		// Mod-aware UI surface must be live before any other event this tick.
		if e.hooks.SwapUI != nil {
			e.hooks.SwapUI()
		}
	case StageCreatedSaveFile:
		for _, ctx := range e.screens.Active() {
			ctx.PendingSaveCreated = true
		}
	case StageSaveParsing:
		for _, ctx := range e.screens.Active() {
			ctx.PendingSaveLoaded = true
		}
	}

	e.events.StageChanged.Raise(func() StageChanged {
		return StageChanged{Old: old, New: next}
	})
	if next == StageNone {
		e.events.ReturnedToTitle.Raise(func() ReturnedToTitle { return ReturnedToTitle{} })
	}
}
