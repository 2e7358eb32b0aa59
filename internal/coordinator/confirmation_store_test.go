package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cryptopilot/trade-core/internal/risk"
)

func testRecord(userID string) ConfirmationRecord {
	return ConfirmationRecord{
		Intent: risk.TradeIntent{
			UserID:   userID,
			Action:   risk.ActionBuy,
			Market:   "BTCUSDT",
			Amount:   0.5,
			Leverage: 3.0,
		},
		EstimatedPrice: 50000,
		RequiredMargin: 8333.33,
	}
}

func TestConsumeIfPending_ExactlyOnce(t *testing.T) {
	store := NewConfirmationStore(time.Minute)
	defer store.Stop()

	store.Put("conf-1", testRecord("user-1"), time.Minute)

	record, result := store.ConsumeIfPending("conf-1")
	assert.Equal(t, ConsumeOK, result)
	assert.Equal(t, "user-1", record.Intent.UserID)
	assert.Equal(t, 50000.0, record.EstimatedPrice)

	record, result = store.ConsumeIfPending("conf-1")
	assert.Nil(t, record)
	assert.Equal(t, ConsumeAlreadyConsumed, result)
}

func TestConsumeIfPending_ConcurrentSingleWinner(t *testing.T) {
	store := NewConfirmationStore(time.Minute)
	defer store.Stop()

	store.Put("conf-race", testRecord("user-1"), time.Minute)

	const attempts = 50
	var wg sync.WaitGroup
	results := make([]ConsumeResult, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.ConsumeIfPending("conf-race")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, r := range results {
		if r == ConsumeOK {
			winners++
		} else {
			assert.Equal(t, ConsumeAlreadyConsumed, r)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestConsumeIfPending_Expired(t *testing.T) {
	store := NewConfirmationStore(time.Minute)
	defer store.Stop()

	store.Put("conf-ttl", testRecord("user-1"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	record, result := store.ConsumeIfPending("conf-ttl")
	assert.Nil(t, record)
	assert.Equal(t, ConsumeExpired, result)
}

func TestConsumeIfPending_UnknownFailsClosed(t *testing.T) {
	store := NewConfirmationStore(time.Minute)
	defer store.Stop()

	record, result := store.ConsumeIfPending("never-issued")
	assert.Nil(t, record)
	assert.Equal(t, ConsumeExpired, result)
}

func TestExpire_ReapsOnlyStaleRecords(t *testing.T) {
	store := NewConfirmationStore(time.Hour)
	defer store.Stop()

	store.Put("short", testRecord("user-1"), 5*time.Millisecond)
	store.Put("long", testRecord("user-2"), time.Minute)
	time.Sleep(15 * time.Millisecond)

	reaped := store.Expire()
	assert.Equal(t, 1, reaped)
	assert.Equal(t, 1, store.Len())

	_, result := store.ConsumeIfPending("long")
	assert.Equal(t, ConsumeOK, result)
}
