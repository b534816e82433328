package viewstate

import (
	"context"
	"errors"
	"testing"

	"github.com/sparklabs/sparkshell/internal/store"
)

// mockBackend implements Backend with injectable failures.
type mockBackend struct {
	values map[string]string
	getErr error
	setErr error
	delErr error
}

func newMockBackend() *mockBackend {
	return &mockBackend{values: make(map[string]string)}
}

func (m *mockBackend) GetValue(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *mockBackend) SetValue(ctx context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mockBackend) DeleteValue(ctx context.Context, key string) error {
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.values, key)
	return nil
}

func TestStore_GetSet(t *testing.T) {
	backend := newMockBackend()
	s := New(backend)
	ctx := context.Background()

	s.Set(ctx, KeyActiveTab, "rewards")

	got, ok := s.Get(ctx, KeyActiveTab)
	if !ok || got != "rewards" {
		t.Errorf("Get = (%q, %v), want (rewards, true)", got, ok)
	}

	_, ok = s.Get(ctx, KeyCurrentView)
	if ok {
		t.Error("Get reported presence for a key that was never written")
	}
}

func TestStore_SetDegradesOnFailure(t *testing.T) {
	backend := newMockBackend()
	backend.setErr = errors.New("disk full")
	s := New(backend)

	// Must not panic or propagate; in-memory state stays authoritative upstream
	s.Set(context.Background(), KeyActiveTab, "missions")

	if _, ok := s.Get(context.Background(), KeyActiveTab); ok {
		t.Error("value should not have been persisted")
	}
}

func TestStore_GetDegradesOnFailure(t *testing.T) {
	backend := newMockBackend()
	backend.values[KeyActiveTab] = "home"
	backend.getErr = errors.New("storage unavailable")
	s := New(backend)

	_, ok := s.Get(context.Background(), KeyActiveTab)
	if ok {
		t.Error("Get must report absence when storage is unavailable")
	}
}

func TestStore_RemoveIdempotent(t *testing.T) {
	backend := newMockBackend()
	s := New(backend)
	ctx := context.Background()

	s.Set(ctx, KeyLastActiveTab, "missions")
	s.Remove(ctx, KeyLastActiveTab)
	s.Remove(ctx, KeyLastActiveTab) // second remove must be a no-op

	if _, ok := s.Get(ctx, KeyLastActiveTab); ok {
		t.Error("key still present after remove")
	}
}

func TestStore_GetInt(t *testing.T) {
	backend := newMockBackend()
	s := New(backend)
	ctx := context.Background()

	s.SetInt(ctx, KeySelectedMissionID, 42)
	got, ok := s.GetInt(ctx, KeySelectedMissionID)
	if !ok || got != 42 {
		t.Errorf("GetInt = (%d, %v), want (42, true)", got, ok)
	}

	backend.values[KeySelectedMissionID] = "not-a-number"
	if _, ok := s.GetInt(ctx, KeySelectedMissionID); ok {
		t.Error("GetInt must report absence for an unparseable value")
	}
}

func TestStore_GetJSON_CorruptValue(t *testing.T) {
	backend := newMockBackend()
	s := New(backend)
	ctx := context.Background()

	scrolls := map[string]int{"home": 250, "missions": 0}
	s.SetJSON(ctx, KeyScrollPositions, scrolls)

	var got map[string]int
	if !s.GetJSON(ctx, KeyScrollPositions, &got) {
		t.Fatal("GetJSON reported absence for a stored map")
	}
	if got["home"] != 250 {
		t.Errorf("got home offset %d, want 250", got["home"])
	}

	// Corrupt JSON must be treated as field absent, never an error
	backend.values[KeyScrollPositions] = "{not json"
	var corrupt map[string]int
	if s.GetJSON(ctx, KeyScrollPositions, &corrupt) {
		t.Error("GetJSON must report absence for corrupt JSON")
	}
}
