package environment

import (
	"sync"
	"testing"

	"github.com/studiowebux/postdad/internal/types"
)

func twoEnvStore() *Store {
	return NewStore(
		types.Environment{Name: "dev", BaseURL: "https://dev.example.com", Variables: map[string]string{"token": "dev-token"}},
		types.Environment{Name: "prod", BaseURL: "https://api.example.com", Variables: map[string]string{"token": "prod-token"}},
	)
}

func TestStore_FirstEnvironmentActive(t *testing.T) {
	s := twoEnvStore()
	if s.Active().Name != "dev" {
		t.Errorf("expected dev active, got %s", s.Active().Name)
	}
}

func TestStore_SnapshotIncludesBaseURL(t *testing.T) {
	s := twoEnvStore()
	env, _ := s.Snapshot()
	if env["base_url"] != "https://dev.example.com" {
		t.Errorf("base_url missing from snapshot: %v", env)
	}
}

func TestStore_SwitchDoesNotAffectSnapshot(t *testing.T) {
	s := twoEnvStore()
	env, _ := s.Snapshot()

	if err := s.Activate("prod"); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	if env["token"] != "dev-token" {
		t.Errorf("earlier snapshot should keep dev bindings, got %s", env["token"])
	}
	after, _ := s.Snapshot()
	if after["token"] != "prod-token" {
		t.Errorf("new snapshot should see prod bindings, got %s", after["token"])
	}
}

func TestStore_ActivateUnknown(t *testing.T) {
	s := twoEnvStore()
	if err := s.Activate("staging"); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestStore_ChainBindingsVisibleToNextSnapshotOnly(t *testing.T) {
	s := twoEnvStore()
	_, chainBefore := s.Snapshot()

	s.SetChainBinding("user_id", "42")

	if _, ok := chainBefore["user_id"]; ok {
		t.Error("binding must not appear retroactively in earlier snapshot")
	}
	_, chainAfter := s.Snapshot()
	if chainAfter["user_id"] != "42" {
		t.Errorf("binding should appear in next snapshot, got %v", chainAfter)
	}
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := twoEnvStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetChainBinding("k", "v")
			s.Snapshot()
		}()
	}
	wg.Wait()
	if s.ChainBindings()["k"] != "v" {
		t.Error("binding lost under concurrent writes")
	}
}
