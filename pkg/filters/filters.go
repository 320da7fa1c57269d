// Package filters accumulates named audio filter blocks for one player and
// flushes them atomically to the bound worker node. It also ships a preset
// catalog of common filter recipes.
package filters

import (
	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// Flusher pushes the full filter set to the worker. Supplied by the owning
// player; called with the complete current set on every mutation.
type Flusher func(protocol.Filters) error

// Controller holds the active filter blocks of one player. Blocks replace
// wholesale on apply; there is no per-field merging.
//
// Controller is not safe for concurrent use on its own; the owning player
// serializes access.
type Controller struct {
	active protocol.Filters
	flush  Flusher
}

// NewController creates a controller flushing through fn.
func NewController(fn Flusher) *Controller {
	return &Controller{flush: fn}
}

// Active returns a copy of the current filter set.
func (c *Controller) Active() protocol.Filters { return c.active }

// SetActive replaces the full set without flushing. Used by snapshot
// restore, which re-applies filters through a single explicit flush.
func (c *Controller) SetActive(f protocol.Filters) { c.active = f }

// Apply overlays patch onto the active set and flushes. A non-nil block in
// patch replaces the whole corresponding block; nil blocks are untouched.
func (c *Controller) Apply(patch protocol.Filters) error {
	if patch.Volume != nil {
		c.active.Volume = patch.Volume
	}
	if patch.Equalizer != nil {
		c.active.Equalizer = patch.Equalizer
	}
	if patch.Karaoke != nil {
		c.active.Karaoke = patch.Karaoke
	}
	if patch.Timescale != nil {
		c.active.Timescale = patch.Timescale
	}
	if patch.Tremolo != nil {
		c.active.Tremolo = patch.Tremolo
	}
	if patch.Vibrato != nil {
		c.active.Vibrato = patch.Vibrato
	}
	if patch.Rotation != nil {
		c.active.Rotation = patch.Rotation
	}
	if patch.Distortion != nil {
		c.active.Distortion = patch.Distortion
	}
	if patch.ChannelMix != nil {
		c.active.ChannelMix = patch.ChannelMix
	}
	if patch.LowPass != nil {
		c.active.LowPass = patch.LowPass
	}
	return c.flush(c.active)
}

// Remove deletes one named block and flushes. Unknown names are a no-op
// flush of the unchanged set.
func (c *Controller) Remove(name string) error {
	switch normalize(name) {
	case "volume":
		c.active.Volume = nil
	case "equalizer":
		c.active.Equalizer = nil
	case "karaoke":
		c.active.Karaoke = nil
	case "timescale":
		c.active.Timescale = nil
	case "tremolo":
		c.active.Tremolo = nil
	case "vibrato":
		c.active.Vibrato = nil
	case "rotation":
		c.active.Rotation = nil
	case "distortion":
		c.active.Distortion = nil
	case "channelmix":
		c.active.ChannelMix = nil
	case "lowpass":
		c.active.LowPass = nil
	}
	return c.flush(c.active)
}

// Clear drops every block and flushes the empty set.
func (c *Controller) Clear() error {
	c.active = protocol.Filters{}
	return c.flush(c.active)
}

// ApplyPreset looks up a named preset recipe and applies it.
func (c *Controller) ApplyPreset(name string) error {
	f, ok := Preset(name)
	if !ok {
		return ErrUnknownPreset
	}
	return c.Apply(f)
}
