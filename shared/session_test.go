package shared

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func tempArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("media bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewSessionID(t *testing.T) {
	hexToken := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatal(err)
		}
		if !hexToken.MatchString(id) {
			t.Fatalf("id %q is not 16 hex-encoded random bytes", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestInMemorySessionStore_TakeConsumesExactlyOnce(t *testing.T) {
	store := NewInMemorySessionStore(10 * time.Minute)
	path := tempArtifact(t, "a.mp3")

	id, err := store.Put(path, "song.mp3")
	if err != nil {
		t.Fatal(err)
	}

	session, err := store.Take(id)
	if err != nil {
		t.Fatalf("first Take failed: %v", err)
	}
	if session.FilePath != path || session.FileName != "song.mp3" {
		t.Errorf("unexpected session: %+v", session)
	}

	if _, err := store.Take(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Take: expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemorySessionStore_TakeUnknownID(t *testing.T) {
	store := NewInMemorySessionStore(10 * time.Minute)
	if _, err := store.Take("deadbeef"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemorySessionStore_MissingFileInvalidatesEntry(t *testing.T) {
	store := NewInMemorySessionStore(10 * time.Minute)
	path := tempArtifact(t, "gone.mp4")
	id, err := store.Put(path, "gone.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Take(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for externally removed file, got %v", err)
	}
}

func TestInMemorySessionStore_SweepRemovesExpiredAndFiles(t *testing.T) {
	store := NewInMemorySessionStore(10 * time.Minute)
	oldPath := tempArtifact(t, "old.mp3")

	oldID, err := store.Put(oldPath, "old.mp3")
	if err != nil {
		t.Fatal(err)
	}

	store.SweepExpired(time.Now().Add(11 * time.Minute))

	if _, err := store.Take(oldID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired session still resolvable: %v", err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expired file still on disk, stat err: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store after sweep, got %d", store.Len())
	}
}

func TestInMemorySessionStore_PutTriggersSweep(t *testing.T) {
	store := NewInMemorySessionStore(50 * time.Millisecond)
	oldPath := tempArtifact(t, "stale.mp3")
	oldID, err := store.Put(oldPath, "stale.mp3")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)

	newPath := tempArtifact(t, "new.mp3")
	if _, err := store.Put(newPath, "new.mp3"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Take(oldID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session should be purged on next Put, got %v", err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("stale file should be deleted, stat err: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 live session, got %d", store.Len())
	}
}

func TestInMemorySessionStore_FileDeletionFailureKeepsMapConsistent(t *testing.T) {
	store := NewInMemorySessionStore(time.Nanosecond)
	// Path that never existed: deletion fails, entry must still be swept
	id, err := store.Put(filepath.Join(t.TempDir(), "never-created.mp3"), "x.mp3")
	if err != nil {
		t.Fatal(err)
	}
	store.SweepExpired(time.Now().Add(time.Minute))
	if _, err := store.Take(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("entry should be gone regardless of file deletion outcome, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", store.Len())
	}
}
