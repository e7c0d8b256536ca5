// Package store holds the live room set: a primary map keyed by room id
// plus one index per declared unique field, all mutated atomically under a
// single reader-writer lock.
package store

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/pmms-project/pmms-server/internal/v1/types"
)

var (
	// ErrUniqueFieldDuplicated means a write would give two different rooms
	// the same value in a unique field.
	ErrUniqueFieldDuplicated = errors.New("store: unique field duplicated")
	// ErrNotFound means no live room carries the requested id.
	ErrNotFound = errors.New("store: room not found")
)

// UniqueIndex declares one uniqueness constraint: Key extracts the indexed
// value from a room, and the store guarantees no two rooms share it. Key
// must return a comparable value.
type UniqueIndex struct {
	Name string
	Key  func(types.Room) any
}

// HostFullNameIndex is the standard constraint: one live room per host.
func HostFullNameIndex() UniqueIndex {
	return UniqueIndex{
		Name: "host_player_full_name",
		Key:  func(r types.Room) any { return r.HostPlayerFullName },
	}
}

type index struct {
	UniqueIndex
	byKey map[any]uint32
}

// Store is safe for concurrent use by any number of sessions.
type Store struct {
	mu      sync.RWMutex
	rooms   map[uint32]types.Room
	indexes []index

	// randUint32 is swapped out by tests that need deterministic ids.
	randUint32 func() uint32
}

// New creates an empty store enforcing the given constraints in addition
// to room id uniqueness, which the primary map enforces by construction.
func New(indexes ...UniqueIndex) *Store {
	s := &Store{
		rooms:      make(map[uint32]types.Room),
		randUint32: rand.Uint32,
	}
	for _, ix := range indexes {
		s.indexes = append(s.indexes, index{UniqueIndex: ix, byKey: make(map[any]uint32)})
	}
	return s
}

// AddOrUpdate inserts the room, or replaces it when its id is already
// present. A room may keep its own unique values across an update; any
// collision with a different room fails the whole write.
func (s *Store) AddOrUpdate(room types.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addOrUpdateLocked(room)
}

func (s *Store) addOrUpdateLocked(room types.Room) error {
	for _, ix := range s.indexes {
		if holder, ok := ix.byKey[ix.Key(room)]; ok && holder != room.RoomID {
			return fmt.Errorf("%w: %s", ErrUniqueFieldDuplicated, ix.Name)
		}
	}
	if prev, ok := s.rooms[room.RoomID]; ok {
		for i := range s.indexes {
			delete(s.indexes[i].byKey, s.indexes[i].Key(prev))
		}
	}
	s.rooms[room.RoomID] = room
	for i := range s.indexes {
		s.indexes[i].byKey[s.indexes[i].Key(room)] = room.RoomID
	}
	return nil
}

// AssignIDAndAdd draws random ids until it finds an unused one, writes it
// into the record, and inserts. Zero is never assigned. Collisions on a
// 32-bit space sized for thousands of rooms are negligible, so the loop is
// unbounded.
func (s *Store) AssignIDAndAdd(room types.Room) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.randUint32()
	for {
		if _, taken := s.rooms[id]; id != 0 && !taken {
			break
		}
		id = s.randUint32()
	}
	room.RoomID = id
	if err := s.addOrUpdateLocked(room); err != nil {
		return 0, err
	}
	return id, nil
}

// TryRemove deletes the room and its index entries, reporting whether it
// existed.
func (s *Store) TryRemove(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return false
	}
	delete(s.rooms, id)
	for i := range s.indexes {
		delete(s.indexes[i].byKey, s.indexes[i].Key(room))
	}
	return true
}

// Get returns a snapshot copy of the room.
func (s *Store) Get(id uint32) (types.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return types.Room{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return room, nil
}

// Contains reports whether a live room carries the id.
func (s *Store) Contains(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[id]
	return ok
}

// Size returns the live room count.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Search returns snapshot copies of the rooms satisfying pred, ordered by
// less. The snapshot is taken under the read lock; sorting happens outside
// it.
func (s *Store) Search(less func(a, b types.Room) bool, pred func(types.Room) bool) []types.Room {
	s.mu.RLock()
	matched := make([]types.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		if pred == nil || pred(room) {
			matched = append(matched, room)
		}
	}
	s.mu.RUnlock()

	if less != nil {
		sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	}
	return matched
}

// SearchRange is Search followed by the window [start, start+count),
// clamped to the sorted length. It also reports the unclamped match count
// so callers can page.
func (s *Store) SearchRange(start, count int, less func(a, b types.Room) bool, pred func(types.Room) bool) ([]types.Room, int) {
	matched := s.Search(less, pred)
	if start < 0 || count < 0 || start >= len(matched) {
		return nil, len(matched)
	}
	end := start + count
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched)
}
