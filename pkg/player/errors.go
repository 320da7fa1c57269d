package player

import "errors"

var (
	// ErrDestroyed is returned by every operation on a destroyed player.
	ErrDestroyed = errors.New("player: destroyed")

	// ErrVoiceLost means the voice credential never arrived (or was
	// discarded) while a play was pending.
	ErrVoiceLost = errors.New("player: voice credential lost")

	// ErrNoCurrentTrack means an operation needs a current track and
	// nothing is playing.
	ErrNoCurrentTrack = errors.New("player: no current track")

	// ErrInvalidVolume is returned for volumes outside [0, 1000].
	ErrInvalidVolume = errors.New("player: volume out of range")

	// ErrNotSeekable is returned when seeking a live stream.
	ErrNotSeekable = errors.New("player: track is not seekable")

	// ErrBusy means the per-guild command queue is full. The command was
	// not executed.
	ErrBusy = errors.New("player: too many pending commands")

	// ErrMigrationInFlight rejects a second concurrent node move.
	ErrMigrationInFlight = errors.New("player: node migration already in flight")

	// ErrNoVoiceChannel means a connect was requested without a target
	// voice channel.
	ErrNoVoiceChannel = errors.New("player: no voice channel configured")
)
