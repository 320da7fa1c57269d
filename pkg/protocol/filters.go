package protocol

// Filters is the accumulating set of named filter blocks flushed to a
// worker in one update-player patch. A nil block means "not set"; blocks
// always replace wholesale, never per-field.
type Filters struct {
	Volume     *float64    `json:"volume,omitempty"`
	Equalizer  []EQBand    `json:"equalizer,omitempty"`
	Karaoke    *Karaoke    `json:"karaoke,omitempty"`
	Timescale  *Timescale  `json:"timescale,omitempty"`
	Tremolo    *Tremolo    `json:"tremolo,omitempty"`
	Vibrato    *Vibrato    `json:"vibrato,omitempty"`
	Rotation   *Rotation   `json:"rotation,omitempty"`
	Distortion *Distortion `json:"distortion,omitempty"`
	ChannelMix *ChannelMix `json:"channelMix,omitempty"`
	LowPass    *LowPass    `json:"lowPass,omitempty"`
}

// IsZero reports whether no block is set.
func (f Filters) IsZero() bool {
	return f.Volume == nil && f.Equalizer == nil && f.Karaoke == nil &&
		f.Timescale == nil && f.Tremolo == nil && f.Vibrato == nil &&
		f.Rotation == nil && f.Distortion == nil && f.ChannelMix == nil &&
		f.LowPass == nil
}

// EQBand adjusts the gain of one of the 15 fixed equalizer bands.
// Gain is in [-0.25, 1.0] where 0 is no change.
type EQBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

// Karaoke attenuates the vocal band.
type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

// Timescale changes speed, pitch and rate independently. 1.0 is neutral.
type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

// Tremolo oscillates the volume.
type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Vibrato oscillates the pitch.
type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Rotation pans the audio around the listener ("8D" effect).
type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

// Distortion applies waveform distortion.
type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

// ChannelMix blends the stereo channels into each other.
type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

// LowPass suppresses high frequencies. Smoothing 1.0 is neutral.
type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}
