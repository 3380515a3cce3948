package queue

import (
	"encoding/json"
	"sync"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// Snapshotter persists and loads the per-guild queue snapshot. The store
// never reads a snapshot back during normal operation: memory is the source
// of truth, disk is crash recovery.
type Snapshotter interface {
	Save(guildID string, data []byte) error
	Load(guildID string) ([]byte, error) // (nil, nil) when no snapshot exists
}

// snapshotDoc is the on-disk form: {"now_playing": ..., "queue": [...]}.
// A legacy bare-array form is accepted on read and rewritten on next save.
type snapshotDoc struct {
	NowPlaying *entities.Track   `json:"now_playing"`
	Queue      []*entities.Track `json:"queue"`
}

type guildQueue struct {
	tracks     []*entities.Track
	nowPlaying *entities.Track
	seq        int64
}

// Store manages one priority-ordered queue per guild
type Store struct {
	snap   Snapshotter
	logger *logger.Logger

	guilds map[string]*guildQueue
	mu     sync.Mutex
}

// NewStore creates a store backed by the given snapshotter
func NewStore(snap Snapshotter, log *logger.Logger) *Store {
	return &Store{
		snap:   snap,
		logger: log,
		guilds: make(map[string]*guildQueue),
	}
}

// get lazily loads the guild queue from its snapshot. Called with lock held.
func (s *Store) get(guildID string) *guildQueue {
	if q, ok := s.guilds[guildID]; ok {
		return q
	}

	q := &guildQueue{}
	data, err := s.snap.Load(guildID)
	if err != nil {
		s.logger.WithError(err).Guild(guildID).Warn("Failed to read queue snapshot, starting empty")
	} else if len(data) > 0 {
		doc, perr := parseSnapshot(data)
		if perr != nil {
			s.logger.WithError(perr).Guild(guildID).Warn("Corrupt queue snapshot, resetting to empty")
		} else {
			q.tracks = doc.Queue
			q.nowPlaying = doc.NowPlaying
			for _, t := range q.tracks {
				if t.EnqueuedAt >= q.seq {
					q.seq = t.EnqueuedAt + 1
				}
			}
		}
	}
	s.guilds[guildID] = q
	return q
}

// parseSnapshot accepts the object form and the legacy bare-array form.
func parseSnapshot(data []byte) (*snapshotDoc, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err == nil {
		if doc.Queue == nil {
			doc.Queue = []*entities.Track{}
		}
		return &doc, nil
	}

	// Legacy form: a bare array of tracks or plain strings
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	doc = snapshotDoc{Queue: make([]*entities.Track, 0, len(raw))}
	for _, item := range raw {
		var t entities.Track
		if err := json.Unmarshal(item, &t); err == nil && (t.Title != "" || t.URL != "") {
			if t.Title == "" {
				t.Title = t.URL
			}
			if t.URL == "" {
				t.URL = t.Title
			}
			doc.Queue = append(doc.Queue, &t)
			continue
		}
		var str string
		if err := json.Unmarshal(item, &str); err == nil && str != "" {
			doc.Queue = append(doc.Queue, &entities.Track{Title: str, URL: str})
		}
	}
	return &doc, nil
}

// persist writes the snapshot. Failures are logged, never propagated: the
// in-memory mutation already happened and the next successful write heals
// the snapshot.
func (s *Store) persist(guildID string, q *guildQueue) {
	data, err := json.Marshal(snapshotDoc{NowPlaying: q.nowPlaying, Queue: append([]*entities.Track{}, q.tracks...)})
	if err != nil {
		s.logger.WithError(err).Guild(guildID).Error("Failed to marshal queue snapshot")
		return
	}
	if err := s.snap.Save(guildID, data); err != nil {
		s.logger.WithError(err).Guild(guildID).Warn("Failed to write queue snapshot")
	}
}

// Load forces the lazy load of a guild queue
func (s *Store) Load(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(guildID)
}

// Add inserts the track before the first existing track of strictly lower
// priority, else at the tail, and returns the insertion index. Tracks with
// equal priority keep their enqueue order.
func (s *Store) Add(guildID string, track *entities.Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	track.EnqueuedAt = q.seq
	q.seq++

	idx := len(q.tracks)
	for i, t := range q.tracks {
		if t.Priority < track.Priority {
			idx = i
			break
		}
	}
	q.tracks = append(q.tracks, nil)
	copy(q.tracks[idx+1:], q.tracks[idx:])
	q.tracks[idx] = track

	s.persist(guildID, q)
	return idx
}

// PopNext removes and returns the queue head, or nil when empty
func (s *Store) PopNext(guildID string) *entities.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	if len(q.tracks) == 0 {
		return nil
	}
	head := q.tracks[0]
	q.tracks = append([]*entities.Track{}, q.tracks[1:]...)
	s.persist(guildID, q)
	return head
}

// RemoveAt removes the track at index. Returns false on out-of-range.
func (s *Store) RemoveAt(guildID string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	if index < 0 || index >= len(q.tracks) {
		return false
	}
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	s.persist(guildID, q)
	return true
}

// Move relocates the track at src to position dst. Returns false on
// out-of-range indices.
func (s *Store) Move(guildID string, src, dst int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	n := len(q.tracks)
	if src < 0 || src >= n || dst < 0 || dst >= n {
		return false
	}
	if src == dst {
		return true
	}
	t := q.tracks[src]
	rest := append(q.tracks[:src], q.tracks[src+1:]...)
	q.tracks = append(rest[:dst], append([]*entities.Track{t}, rest[dst:]...)...)
	s.persist(guildID, q)
	return true
}

// PeekAll returns a copy of the queued tracks
func (s *Store) PeekAll(guildID string) []*entities.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	out := make([]*entities.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Len returns the number of queued tracks
func (s *Store) Len(guildID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.get(guildID).tracks)
}

// Stop clears the queue and the now-playing track
func (s *Store) Stop(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	q.tracks = nil
	q.nowPlaying = nil
	s.persist(guildID, q)
}

// SetNowPlaying records the track currently held out of the queue
func (s *Store) SetNowPlaying(guildID string, track *entities.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	q.nowPlaying = track
	s.persist(guildID, q)
}

// NowPlaying returns the current track, or nil
func (s *Store) NowPlaying(guildID string) *entities.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(guildID).nowPlaying
}

// Snapshot returns the serialized snapshot of the in-memory state
func (s *Store) Snapshot(guildID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.get(guildID)
	return json.Marshal(snapshotDoc{NowPlaying: q.nowPlaying, Queue: append([]*entities.Track{}, q.tracks...)})
}

// Reconcile re-reads the persisted snapshot without touching memory.
// Diagnostics only; normal operation never reloads from disk.
func (s *Store) Reconcile(guildID string) (inMemory, onDisk int, err error) {
	s.mu.Lock()
	inMemory = len(s.get(guildID).tracks)
	s.mu.Unlock()

	data, err := s.snap.Load(guildID)
	if err != nil || len(data) == 0 {
		return inMemory, 0, err
	}
	doc, err := parseSnapshot(data)
	if err != nil {
		return inMemory, 0, err
	}
	return inMemory, len(doc.Queue), nil
}
