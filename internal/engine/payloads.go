package engine

import (
	"modhost.dev/internal/watch"
	"modhost.dev/internal/worldstate"
)

// Event payloads. All are plain values built lazily inside Raise; listeners
// must treat them as read-only.

type SaveCreated struct {
	ScreenID int
}

type SaveLoaded struct {
	ScreenID int
}

type LocaleChanged struct {
	Old, New string
}

type StageChanged struct {
	Old, New LoadStage
}

type ReturnedToTitle struct{}

type WindowResized struct {
	Old, New worldstate.Size
}

type CursorMoved struct {
	ScreenID int
	Old, New worldstate.Point
}

type MouseWheelScrolled struct {
	ScreenID int
	Old, New int
}

type ButtonsChanged struct {
	ScreenID int
	Pressed  []string
	Released []string
}

type MenuChanged struct {
	Old, New string
}

type LocationListChanged struct {
	Added, Removed []string
}

// MemberListChanged reports an identity-level membership delta for one
// collection of one location (buildings, debris, NPCs, ...).
type MemberListChanged struct {
	Location       string
	Added, Removed []string
}

type ChestInventoryChanged struct {
	Location string
	Chest    string
	Added    []string
	Removed  []string
	Updated  []watch.Pair[string, int]
}

type TimeChanged struct {
	Old, New int
}

type Warped struct {
	ScreenID int
	Old, New string
}

type LevelChanged struct {
	ScreenID int
	Skill    string
	Old, New int
}

type InventoryChanged struct {
	ScreenID int
	Added    []string
	Removed  []string
	Updated  []watch.Pair[string, int]
}

type GameLaunched struct{}

// TickInfo accompanies every tick-lifecycle event.
type TickInfo struct {
	ScreenID int
	Ticks    uint64
}

// RenderStage identifies a render sub-stage within a draw pass.
type RenderStage int

const (
	RenderWorld RenderStage = iota
	RenderMenu
	RenderHUD
	RenderFullFrame
)

func (s RenderStage) String() string {
	switch s {
	case RenderWorld:
		return "World"
	case RenderMenu:
		return "Menu"
	case RenderHUD:
		return "HUD"
	case RenderFullFrame:
		return "FullFrame"
	default:
		return "Unknown"
	}
}

type RenderInfo struct {
	ScreenID int
	Stage    RenderStage
}
