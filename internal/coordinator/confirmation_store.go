package coordinator

import (
	"sync"
	"time"

	"github.com/cryptopilot/trade-core/internal/risk"
)

// ConfirmationRecord is a pending trade intent awaiting its single
// Confirm. It transitions pending -> consumed exactly once; expired
// records are invisible to Confirm and reaped in the background.
type ConfirmationRecord struct {
	ConfirmationID string           `json:"confirmation_id"`
	Intent         risk.TradeIntent `json:"intent"`
	EstimatedPrice float64          `json:"estimated_price"`
	RequiredMargin float64          `json:"required_margin"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// ConsumeResult tells the caller why a consume attempt did not return a
// record.
type ConsumeResult int

const (
	ConsumeOK ConsumeResult = iota
	// ConsumeAlreadyConsumed: another caller already won this record.
	ConsumeAlreadyConsumed
	// ConsumeExpired: the record's TTL elapsed, or the ID is unknown.
	// Unknown IDs fail closed as expired rather than leaking whether a
	// confirmation ever existed.
	ConsumeExpired
)

// ConfirmationStore is a TTL-keyed in-memory store with atomic
// consume-once semantics. Multiple Confirm attempts racing on the same
// ID serialize on one mutex: the first caller wins the record, the rest
// observe a consumed tombstone.
type ConfirmationStore struct {
	mu       sync.Mutex
	records  map[string]*ConfirmationRecord
	consumed map[string]time.Time // tombstones, reaped after tombstoneTTL
	stopChan chan struct{}
	stopOnce sync.Once
}

// How long a consumed tombstone survives so late duplicate confirms
// still get a truthful AlreadyConsumed.
const tombstoneTTL = 15 * time.Minute

// NewConfirmationStore creates a store and starts its background reaper.
func NewConfirmationStore(reapInterval time.Duration) *ConfirmationStore {
	if reapInterval <= 0 {
		reapInterval = 30 * time.Second
	}
	s := &ConfirmationStore{
		records:  make(map[string]*ConfirmationRecord),
		consumed: make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
	go s.reapLoop(reapInterval)
	return s
}

// Put stores a record under id with the given TTL.
func (s *ConfirmationStore) Put(id string, record ConfirmationRecord, ttl time.Duration) {
	record.ConfirmationID = id
	record.ExpiresAt = time.Now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = &record
}

// ConsumeIfPending atomically fetches and removes the record for id.
// Exactly one caller gets (record, ConsumeOK); every later caller gets
// ConsumeAlreadyConsumed. A record past its TTL is reported expired and
// dropped without being returned.
func (s *ConfirmationStore) ConsumeIfPending(id string) (*ConfirmationRecord, ConsumeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		if _, was := s.consumed[id]; was {
			return nil, ConsumeAlreadyConsumed
		}
		return nil, ConsumeExpired
	}
	delete(s.records, id)

	if time.Now().After(record.ExpiresAt) {
		return nil, ConsumeExpired
	}

	s.consumed[id] = time.Now().Add(tombstoneTTL)
	return record, ConsumeOK
}

// Len returns the number of pending records.
func (s *ConfirmationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Expire drops every record past its TTL plus stale tombstones, and
// returns how many pending records were reaped.
func (s *ConfirmationStore) Expire() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, record := range s.records {
		if now.After(record.ExpiresAt) {
			delete(s.records, id)
			reaped++
		}
	}
	for id, deadline := range s.consumed {
		if now.After(deadline) {
			delete(s.consumed, id)
		}
	}
	return reaped
}

// Stop shuts down the background reaper.
func (s *ConfirmationStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *ConfirmationStore) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Expire()
		}
	}
}
