package player

import (
	"testing"

	"github.com/tidelink-audio/tidelink/pkg/events"
	"github.com/tidelink-audio/tidelink/pkg/node"
	"github.com/tidelink-audio/tidelink/pkg/protocol"
	"github.com/tidelink-audio/tidelink/pkg/voice"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	tracker := voice.NewTracker(voice.Hooks{})
	return NewRegistry(RegistryConfig{
		Pool:    node.NewPool(),
		Gateway: &fakeGateway{tracker: tracker},
		Voice:   tracker,
		Bus:     events.NewBus(),
	})
}

func TestCreateWithoutConnectedNodes(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Create(Options{GuildID: "g1"}); err == nil {
		t.Fatal("Create succeeded with an empty node pool")
	}
	if r.Has("g1") {
		t.Error("failed Create left a player registered")
	}
}

func TestCreateRejectsEmptyGuild(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Create(Options{}); err == nil {
		t.Fatal("Create accepted an empty guild ID")
	}
}

func TestDispatchWithoutPlayer(t *testing.T) {
	r := newTestRegistry(t)
	// Events for unknown guilds are dropped, not a panic.
	r.DispatchEvent(protocol.Event{Type: protocol.EventTrackStart, GuildID: "nope"})
	r.DispatchPlayerUpdate(protocol.PlayerUpdate{GuildID: "nope"})
}

func TestDestroyUnknownGuild(t *testing.T) {
	r := newTestRegistry(t)
	if r.Destroy("nope", "test") {
		t.Error("Destroy reported success for an unknown guild")
	}
}

func TestMigrateFromWithNoBoundPlayers(t *testing.T) {
	r := newTestRegistry(t)
	// A node disconnect with zero bound players issues no migrations.
	r.MigrateFrom(t.Context(), "n1")
	if got := r.Size(); got != 0 {
		t.Errorf("registry size = %d, want 0", got)
	}
}
