// Package store persists the mapping between extracted source events and
// the calendar entries created for them. The mapping file is the source of
// truth for reconciliation across runs; calendar entries are never trusted
// to identify themselves.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrCorrupt is returned by Open when the mapping file exists but cannot
// be decoded. Callers must stop before any calendar mutation.
var ErrCorrupt = errors.New("mapping store is corrupt")

// Status describes the lifecycle of a tracked event.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusDeleted    Status = "deleted"
)

// TrackedEvent is one logical event as this tool understands it, together
// with the calendar entries that materialize it.
type TrackedEvent struct {
	ID             string            `json:"id"`
	Fingerprint    string            `json:"fingerprint"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Date           time.Time         `json:"date"`
	Start          *time.Time        `json:"start,omitempty"`
	End            *time.Time        `json:"end,omitempty"`
	AllDay         bool              `json:"all_day"`
	DefaultedTime  bool              `json:"defaulted_time,omitempty"`
	Location       string            `json:"location,omitempty"`
	Recurring      bool              `json:"recurring,omitempty"`
	SenderCategory string            `json:"sender_category"`
	Calendars      []string          `json:"calendars"`
	NativeIDs      map[string]string `json:"native_ids,omitempty"`
	Sources        []string          `json:"sources"`
	Status         Status            `json:"status"`
	SupersededBy   string            `json:"superseded_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// HasExplicitTime reports whether the event carries a start time that a
// source actually stated, as opposed to an all-day marker or a window
// filled in from sender defaults.
func (e *TrackedEvent) HasExplicitTime() bool {
	return e.Start != nil && !e.AllDay && !e.DefaultedTime
}

// HasSource reports whether the given source document already contributed
// to this event.
func (e *TrackedEvent) HasSource(sourceID string) bool {
	for _, s := range e.Sources {
		if s == sourceID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The store hands out clones so callers can
// mutate freely and commit results back through Put.
func (e *TrackedEvent) Clone() *TrackedEvent {
	c := *e
	if e.Start != nil {
		s := *e.Start
		c.Start = &s
	}
	if e.End != nil {
		t := *e.End
		c.End = &t
	}
	c.Calendars = append([]string(nil), e.Calendars...)
	c.Sources = append([]string(nil), e.Sources...)
	if e.NativeIDs != nil {
		c.NativeIDs = make(map[string]string, len(e.NativeIDs))
		for k, v := range e.NativeIDs {
			c.NativeIDs[k] = v
		}
	}
	return &c
}

type fileFormat struct {
	Version int                      `json:"version"`
	Events  map[string]*TrackedEvent `json:"events"`
}

// Store is a JSON-file backed collection of tracked events. It is safe for
// concurrent use; every mutation is written through to disk atomically.
type Store struct {
	mu     sync.RWMutex
	path   string
	events map[string]*TrackedEvent
}

// Open loads the mapping file at path. A missing file yields an empty
// store; an unreadable or undecodable file yields ErrCorrupt so the run
// aborts before touching any calendar.
func Open(path string) (*Store, error) {
	s := &Store{path: path, events: make(map[string]*TrackedEvent)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, path, err)
	}
	if f.Events != nil {
		s.events = f.Events
	}
	for id, ev := range s.events {
		if ev.ID == "" {
			ev.ID = id
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a clone of the tracked event with the given ID.
func (s *Store) Get(id string) (*TrackedEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return ev.Clone(), true
}

// Put upserts the event and persists the whole store. Persisting is the
// last step of every reconciliation transition, so a crash loses at most
// the in-flight event.
func (s *Store) Put(ev *TrackedEvent) error {
	if ev.ID == "" {
		return errors.New("store: event has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.UpdatedAt = time.Now()
	s.events[ev.ID] = ev.Clone()
	return s.save()
}

// Active returns clones of all events with StatusActive, most recently
// updated first.
func (s *Store) Active() []*TrackedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TrackedEvent
	for _, ev := range s.events {
		if ev.Status == StatusActive {
			out = append(out, ev.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ActiveInWindow returns clones of active events whose date falls within
// window on either side of date, most recently updated first.
func (s *Store) ActiveInWindow(date time.Time, window time.Duration) []*TrackedEvent {
	lo := date.Add(-window)
	hi := date.Add(window)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TrackedEvent
	for _, ev := range s.events {
		if ev.Status != StatusActive {
			continue
		}
		if ev.Date.Before(lo) || ev.Date.After(hi) {
			continue
		}
		out = append(out, ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Len returns the total number of tracked events in any status.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// save writes the store to a temporary file in the same directory and
// renames it over the target, so readers never observe a partial file.
// Callers must hold s.mu.
func (s *Store) save() error {
	f := fileFormat{Version: 1, Events: s.events}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}
