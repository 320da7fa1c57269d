package filters

import (
	"errors"
	"strings"

	"github.com/tidelink-audio/tidelink/pkg/protocol"
)

// ErrUnknownPreset is returned when a preset name does not resolve.
var ErrUnknownPreset = errors.New("filters: unknown preset")

// normalize folds a preset or block name to its lookup key: lowercase with
// dashes, underscores and spaces stripped.
func normalize(name string) string {
	r := strings.NewReplacer("-", "", "_", "", " ", "")
	return r.Replace(strings.ToLower(name))
}

// Preset returns the constant recipe registered under name. The lookup key
// is normalized, so "Bass Boost High", "bass-boost-high" and
// "bassboosthigh" all resolve to the same preset.
func Preset(name string) (protocol.Filters, bool) {
	f, ok := presets[normalize(name)]
	return f, ok
}

// PresetNames returns the canonical names of every registered preset.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	return names
}

func eq(gains ...float64) []protocol.EQBand {
	bands := make([]protocol.EQBand, len(gains))
	for i, g := range gains {
		bands[i] = protocol.EQBand{Band: i, Gain: g}
	}
	return bands
}

func f64(v float64) *float64 { return &v }

// presets is the catalog of constant filter recipes, keyed by normalized
// name. Loaded once at startup; lookups are pure map reads.
var presets = map[string]protocol.Filters{
	"bassboostlow": {
		Equalizer: eq(0.1, 0.08, 0.05, 0.02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	},
	"bassboostmedium": {
		Equalizer: eq(0.2, 0.16, 0.12, 0.06, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	},
	"bassboosthigh": {
		Equalizer: eq(0.3, 0.25, 0.2, 0.1, 0.05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	},
	"nightcore": {
		Timescale: &protocol.Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1.0},
	},
	"vaporwave": {
		Timescale: &protocol.Timescale{Speed: 0.85, Pitch: 0.85, Rate: 1.0},
		Equalizer: eq(0.05, 0.05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.05, 0.05),
	},
	"8d": {
		Rotation: &protocol.Rotation{RotationHz: 0.2},
	},
	"karaoke": {
		Karaoke: &protocol.Karaoke{Level: 1.0, MonoLevel: 1.0, FilterBand: 220, FilterWidth: 100},
	},
	"tremolo": {
		Tremolo: &protocol.Tremolo{Frequency: 2.0, Depth: 0.5},
	},
	"vibrato": {
		Vibrato: &protocol.Vibrato{Frequency: 2.0, Depth: 0.5},
	},
	"soft": {
		LowPass: &protocol.LowPass{Smoothing: 20.0},
	},
	"pop": {
		Equalizer: eq(-0.02, -0.01, 0.08, 0.1, 0.15, 0.1, 0.03, -0.02, -0.035, -0.05, -0.05, -0.05, -0.05, -0.05, -0.05),
	},
	"rock": {
		Equalizer: eq(0.3, 0.25, 0.2, 0.1, 0.05, -0.05, -0.15, -0.2, -0.1, -0.05, 0.05, 0.1, 0.2, 0.25, 0.3),
	},
	"electronic": {
		Equalizer: eq(0.375, 0.35, 0.125, 0, 0, -0.125, -0.125, 0, 0.25, 0.125, 0.15, 0.2, 0.25, 0.35, 0.4),
	},
	"classical": {
		Equalizer: eq(0.375, 0.35, 0.125, 0, 0, 0.125, 0.55, 0.05, 0.125, 0.25, 0.2, 0.25, 0.3, 0.25, 0.3),
	},
	// Morph profiles: voice-character recipes combining timescale and mix.
	"chipmunk": {
		Timescale: &protocol.Timescale{Speed: 1.05, Pitch: 1.35, Rate: 1.25},
	},
	"demon": {
		Timescale:  &protocol.Timescale{Speed: 0.95, Pitch: 0.7, Rate: 1.0},
		Equalizer:  eq(0.15, 0.12, 0.1, 0.05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		Tremolo:    &protocol.Tremolo{Frequency: 4.0, Depth: 0.3},
	},
	"darthvader": {
		Timescale: &protocol.Timescale{Speed: 0.975, Pitch: 0.5, Rate: 0.8},
	},
	"slowmo": {
		Timescale: &protocol.Timescale{Speed: 0.5, Pitch: 1.0, Rate: 0.8},
	},
}
