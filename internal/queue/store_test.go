package queue_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/queue"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

func newTestStore(t *testing.T) (*queue.Store, string) {
	t.Helper()
	dir := t.TempDir()
	snap, err := queue.NewFileSnapshotter(dir)
	if err != nil {
		t.Fatalf("NewFileSnapshotter: %v", err)
	}
	log := logger.New(logger.Config{Level: "error"})
	return queue.NewStore(snap, log), dir
}

func track(title, user string, prio int) *entities.Track {
	t := entities.NewTrack("https://example.com/"+title, title, user)
	t.Priority = prio
	return t
}

func titles(tracks []*entities.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Title
	}
	return out
}

func TestPriorityInsertion(t *testing.T) {
	store, _ := newTestStore(t)

	store.Add("g1", track("A", "u1", 0))
	store.Add("g1", track("B", "u2", 0))
	idx := store.Add("g1", track("C", "u3", 10))

	if idx != 0 {
		t.Errorf("Expected priority track inserted at 0, got %d", idx)
	}

	got := titles(store.PeekAll("g1"))
	want := []string{"C", "A", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestEqualPriorityKeepsEnqueueOrder(t *testing.T) {
	store, _ := newTestStore(t)

	store.Add("g1", track("A", "u1", 50))
	store.Add("g1", track("B", "u2", 50))
	store.Add("g1", track("C", "u3", 50))
	store.Add("g1", track("D", "u4", 80))

	got := titles(store.PeekAll("g1"))
	want := []string{"D", "A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestPopNext(t *testing.T) {
	store, _ := newTestStore(t)

	if store.PopNext("g1") != nil {
		t.Error("PopNext on empty queue should return nil")
	}

	store.Add("g1", track("A", "u1", 0))
	store.Add("g1", track("B", "u2", 0))

	head := store.PopNext("g1")
	if head == nil || head.Title != "A" {
		t.Errorf("Expected to pop A, got %v", head)
	}
	if store.Len("g1") != 1 {
		t.Errorf("Expected 1 track left, got %d", store.Len("g1"))
	}
}

func TestRemoveAtBounds(t *testing.T) {
	store, _ := newTestStore(t)
	store.Add("g1", track("A", "u1", 0))

	if store.RemoveAt("g1", -1) {
		t.Error("RemoveAt(-1) should return false")
	}
	if store.RemoveAt("g1", 1) {
		t.Error("RemoveAt past end should return false")
	}
	if !store.RemoveAt("g1", 0) {
		t.Error("RemoveAt(0) should succeed")
	}
	if store.Len("g1") != 0 {
		t.Error("Queue should be empty after removal")
	}
}

func TestMove(t *testing.T) {
	store, _ := newTestStore(t)
	store.Add("g1", track("A", "u1", 0))
	store.Add("g1", track("B", "u2", 0))
	store.Add("g1", track("C", "u3", 0))

	if store.Move("g1", 0, 5) {
		t.Error("Move with out-of-range dst should return false")
	}
	if !store.Move("g1", 2, 0) {
		t.Error("Move(2,0) should succeed")
	}

	got := titles(store.PeekAll("g1"))
	want := []string{"C", "A", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestStopClearsQueueAndNowPlaying(t *testing.T) {
	store, _ := newTestStore(t)
	store.Add("g1", track("A", "u1", 0))
	store.SetNowPlaying("g1", track("B", "u2", 0))

	store.Stop("g1")

	if store.Len("g1") != 0 {
		t.Error("Queue should be empty after stop")
	}
	if store.NowPlaying("g1") != nil {
		t.Error("NowPlaying should be nil after stop")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.Config{Level: "error"})

	snap, _ := queue.NewFileSnapshotter(dir)
	store := queue.NewStore(snap, log)
	store.Add("g1", track("A", "u1", 10))
	store.Add("g1", track("B", "u2", 0))
	store.SetNowPlaying("g1", track("N", "u3", 5))

	// A fresh store over the same directory must see the same state
	snap2, _ := queue.NewFileSnapshotter(dir)
	store2 := queue.NewStore(snap2, log)

	got := titles(store2.PeekAll("g1"))
	want := []string{"A", "B"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Expected reloaded queue %v, got %v", want, got)
	}
	np := store2.NowPlaying("g1")
	if np == nil || np.Title != "N" {
		t.Errorf("Expected reloaded now_playing N, got %v", np)
	}
}

func TestLegacyBareArraySnapshot(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.Config{Level: "error"})

	legacy := []map[string]string{
		{"title": "Old Song", "url": "https://example.com/old"},
	}
	data, _ := json.Marshal(legacy)
	if err := os.WriteFile(filepath.Join(dir, "playlist_g1.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	snap, _ := queue.NewFileSnapshotter(dir)
	store := queue.NewStore(snap, log)

	tracks := store.PeekAll("g1")
	if len(tracks) != 1 || tracks[0].Title != "Old Song" {
		t.Fatalf("Expected legacy track to load, got %v", tracks)
	}

	// The next save rewrites the object form
	store.Add("g1", track("New", "u1", 0))
	raw, err := os.ReadFile(filepath.Join(dir, "playlist_g1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Snapshot should be an object after save: %v", err)
	}
	if _, ok := doc["queue"]; !ok {
		t.Error("Rewritten snapshot should carry a queue field")
	}
}

func TestCorruptSnapshotResetsEmpty(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.Config{Level: "error"})

	if err := os.WriteFile(filepath.Join(dir, "playlist_g1.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	snap, _ := queue.NewFileSnapshotter(dir)
	store := queue.NewStore(snap, log)

	if store.Len("g1") != 0 {
		t.Error("Corrupt snapshot should reset to an empty queue")
	}
}

func TestReconcileReportsDiskState(t *testing.T) {
	store, _ := newTestStore(t)
	store.Add("g1", track("A", "u1", 0))

	inMem, onDisk, err := store.Reconcile("g1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if inMem != 1 || onDisk != 1 {
		t.Errorf("Expected 1/1, got %d/%d", inMem, onDisk)
	}
}
