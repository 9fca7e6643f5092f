package inbound

import (
	"container/list"
	"context"
	"math"
	"strings"
	"sync"

	"github.com/goliatone/go-mods/core"
)

const (
	DefaultProcessedCapacity = 10000
	DefaultEvictFraction     = 0.1
)

type ProcessedEventStore interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// MemoryProcessedStore is a bounded set of event IDs. Once it grows past its
// capacity the oldest fraction of entries, in insertion order, is dropped.
type MemoryProcessedStore struct {
	mu            sync.Mutex
	capacity      int
	evictFraction float64
	order         *list.List
	index         map[string]*list.Element
}

func NewMemoryProcessedStore(capacity int, evictFraction float64) *MemoryProcessedStore {
	if capacity <= 0 {
		capacity = DefaultProcessedCapacity
	}
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = DefaultEvictFraction
	}
	return &MemoryProcessedStore{
		capacity:      capacity,
		evictFraction: evictFraction,
		order:         list.New(),
		index:         map[string]*list.Element{},
	}
}

func NewMemoryProcessedStoreFromConfig(cfg core.EventsConfig) *MemoryProcessedStore {
	return NewMemoryProcessedStore(cfg.DedupCapacity, cfg.EvictFraction)
}

func (s *MemoryProcessedStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	if s == nil {
		return false, inboundInternal("inbound: processed event store is nil", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[strings.TrimSpace(eventID)]
	return ok, nil
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, eventID string) error {
	if s == nil {
		return inboundInternal("inbound: processed event store is nil", nil)
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return inboundBadInput("inbound: event id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[eventID]; ok {
		return nil
	}
	s.index[eventID] = s.order.PushBack(eventID)
	if s.order.Len() > s.capacity {
		s.evictLocked(s.evictCount())
	}
	return nil
}

func (s *MemoryProcessedStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryProcessedStore) evictCount() int {
	count := int(math.Ceil(float64(s.capacity) * s.evictFraction))
	if count < 1 {
		return 1
	}
	return count
}

func (s *MemoryProcessedStore) evictLocked(count int) {
	for i := 0; i < count; i++ {
		oldest := s.order.Front()
		if oldest == nil {
			return
		}
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}
