package engine

import (
	"fmt"

	"modhost.dev/internal/logging"
)

// StagePass is one render sub-stage of a draw pass.
type StagePass struct {
	Stage RenderStage
	Draw  func()
}

// RenderFrame runs one draw pass for a screen. The output surface is opened
// before the first render event if it is not already open, and closed again
// afterward only when this call opened it. Each sub-stage raises Rendering
// and Rendered with the usual fault isolation; a panicking draw callback is
// logged and does not abort the remaining sub-stages.
//
// This runs per draw pass, not per update tick, and is independent of the
// update-tick suppression window.
func (e *Engine) RenderFrame(screenID int, passes ...StagePass) {
	opened := false
	if e.surface != nil && !e.surface.IsOpen() {
		e.surface.Open()
		opened = true
	}
	defer func() {
		if opened {
			e.surface.Close()
		}
	}()

	for _, p := range passes {
		p := p
		e.events.Rendering.Raise(func() RenderInfo {
			return RenderInfo{ScreenID: screenID, Stage: p.Stage}
		})
		e.invokeDraw(screenID, p)
		e.events.Rendered.Raise(func() RenderInfo {
			return RenderInfo{ScreenID: screenID, Stage: p.Stage}
		})
	}

	e.screens.Get(screenID).LastRenderTick = e.ticksElapsed
}

func (e *Engine) invokeDraw(screenID int, p StagePass) {
	if p.Draw == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.mon.Log("", logging.Error, "draw %s for screen %d failed: %v", p.Stage, screenID, r)
			e.recordFault("render", "", fmt.Sprintf("draw %s: %v", p.Stage, r), 0)
		}
	}()
	p.Draw()
}
