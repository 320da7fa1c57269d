package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if err := s.Set(ctx, "player:1", []byte(`{"volume":80}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "player:2", []byte(`{"volume":50}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "node:a", []byte(`{}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(ctx, "player:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"volume":80}` {
		t.Errorf("Get(player:1) = %s", got)
	}

	// Overwrite replaces.
	if err := s.Set(ctx, "player:1", []byte(`{"volume":100}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ = s.Get(ctx, "player:1")
	if string(got) != `{"volume":100}` {
		t.Errorf("Get after overwrite = %s", got)
	}

	all, err := s.All(ctx, "player:")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All(player:) returned %d entries, want 2", len(all))
	}
	if _, ok := all["node:a"]; ok {
		t.Error("All(player:) leaked a node: key")
	}

	if err := s.Delete(ctx, "player:2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "player:2"); err != nil {
		t.Errorf("Delete of absent key: %v", err)
	}
	if _, err := s.Get(ctx, "player:2"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after delete error = %v, want ErrKeyNotFound", err)
	}

	if err := s.Clear(ctx, "player:"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, _ = s.All(ctx, "")
	if len(all) != 1 {
		t.Errorf("after Clear(player:) store has %d entries, want 1", len(all))
	}
	if _, err := s.Get(ctx, "node:a"); err != nil {
		t.Errorf("Clear(player:) removed node:a: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestJSONFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")
	s, err := NewJSONFile(path)
	if err != nil {
		t.Fatalf("NewJSONFile: %v", err)
	}
	testStore(t, s)
}

func TestJSONFileReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.json")

	first, err := NewJSONFile(path)
	if err != nil {
		t.Fatalf("NewJSONFile: %v", err)
	}
	if err := first.Set(ctx, "player:42", []byte(`{"positionMs":9007199254740993}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), `"BIGINT::9007199254740993"`) {
		t.Errorf("on-disk form lacks sentinel: %s", raw)
	}

	second, err := NewJSONFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := second.Get(ctx, "player:42")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	var snap struct {
		PositionMs int64 `json:"positionMs"`
	}
	if err := json.Unmarshal(got, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if snap.PositionMs != 9007199254740993 {
		t.Errorf("PositionMs = %d, want 9007199254740993", snap.PositionMs)
	}
}

func TestBigIntRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		encoded string
	}{
		{"small int untouched", `{"v":42}`, `{"v":42}`},
		{"boundary untouched", `{"v":9007199254740991}`, `{"v":9007199254740991}`},
		{"big int stringified", `{"v":9007199254740993}`, `{"v":"BIGINT::9007199254740993"}`},
		{"negative big int", `{"v":-9007199254740993}`, `{"v":"BIGINT::-9007199254740993"}`},
		{"nested arrays", `{"v":[1,[9007199254740993]]}`, `{"v":[1,["BIGINT::9007199254740993"]]}`},
		{"float untouched", `{"v":1.5}`, `{"v":1.5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := EncodeBigInts([]byte(tc.in))
			if err != nil {
				t.Fatalf("EncodeBigInts: %v", err)
			}
			if string(enc) != tc.encoded {
				t.Errorf("EncodeBigInts = %s, want %s", enc, tc.encoded)
			}
			dec, err := DecodeBigInts(enc)
			if err != nil {
				t.Fatalf("DecodeBigInts: %v", err)
			}
			if string(dec) != tc.in {
				t.Errorf("round trip = %s, want %s", dec, tc.in)
			}
		})
	}
}
