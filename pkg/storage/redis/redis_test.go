package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tidelink-audio/tidelink/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStoreWithClient(client)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if err := s.Set(ctx, "player:1", []byte(`{"volume":80}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "player:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"volume":80}` {
		t.Errorf("Get = %s", got)
	}

	if err := s.Delete(ctx, "player:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "player:1"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Get after delete error = %v, want ErrKeyNotFound", err)
	}
}

func TestStorePrefixOps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for key, val := range map[string]string{
		"player:1": `{"a":1}`,
		"player:2": `{"a":2}`,
		"node:a":   `{}`,
	} {
		if err := s.Set(ctx, key, []byte(val)); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}

	all, err := s.All(ctx, "player:")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All(player:) returned %d entries, want 2", len(all))
	}

	if err := s.Clear(ctx, "player:"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, err = s.All(ctx, "")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("after Clear store has %d entries, want 1", len(all))
	}
	if _, ok := all["node:a"]; !ok {
		t.Error("Clear(player:) removed node:a")
	}
}
