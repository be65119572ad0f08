package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/span"
)

func TestPutGet(t *testing.T) {
	c := NewCache()
	records := []span.Record{{EntityType: "PERSON", Start: 5, End: 40}}
	c.Put("s1", "Call <token>", records)

	got, err := c.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "Call <token>", got.Text)
	assert.Equal(t, records, got.Records)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, 1, c.Len())
}

func TestGetUnknown(t *testing.T) {
	c := NewCache()
	c.Put("known", "x", nil)
	_, err := c.Get("nonexistent-id")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPutOverwrites(t *testing.T) {
	c := NewCache()
	c.Put("s", "first", []span.Record{{EntityType: "A", Start: 0, End: 1}})
	c.Put("s", "second", nil)

	got, err := c.Get("s")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
	assert.Empty(t, got.Records)
	assert.Equal(t, 1, c.Len())
}

func TestStoredRecordsAreIsolated(t *testing.T) {
	c := NewCache()
	records := []span.Record{{EntityType: "A", Start: 0, End: 1}}
	c.Put("s", "x", records)
	records[0].EntityType = "mutated"

	got, err := c.Get("s")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Records[0].EntityType)

	got.Records[0].EntityType = "mutated again"
	again, err := c.Get("s")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Records[0].EntityType)
}

func TestConcurrentWritesSameID(t *testing.T) {
	c := NewCache()
	const writers = 16
	const iterations = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				// Each writer's session is self-consistent: text encodes the writer
				// and every record carries the same marker.
				marker := fmt.Sprintf("w%d", w)
				recs := make([]span.Record, w+1)
				for j := range recs {
					recs[j] = span.Record{EntityType: marker, Start: j, End: j + 1}
				}
				c.Put("shared", marker, recs)
			}
		}(w)
	}

	done := make(chan struct{})
	var readErr error
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			s, err := c.Get("shared")
			if err != nil {
				continue
			}
			var w int
			if _, err := fmt.Sscanf(s.Text, "w%d", &w); err != nil {
				readErr = err
				return
			}
			if len(s.Records) != w+1 {
				readErr = fmt.Errorf("session %s has %d records", s.Text, len(s.Records))
				return
			}
			for _, r := range s.Records {
				if r.EntityType != s.Text {
					readErr = fmt.Errorf("record %s inside session %s", r.EntityType, s.Text)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(done)
	readerWG.Wait()
	require.NoError(t, readErr)
	assert.Equal(t, 1, c.Len())
}

func TestSweep(t *testing.T) {
	c := NewCache()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put("old", "x", nil)
	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	c.Put("new", "y", nil)

	assert.Equal(t, 0, c.Sweep(0), "non-positive ttl disables eviction")
	assert.Equal(t, 1, c.Sweep(5*time.Minute))

	_, err := c.Get("old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = c.Get("new")
	assert.NoError(t, err)
}

func TestNewSweeper(t *testing.T) {
	c := NewCache()
	_, err := NewSweeper(c, 0, "")
	require.Error(t, err)

	_, err = NewSweeper(c, time.Minute, "not a schedule")
	require.Error(t, err)

	s, err := NewSweeper(c, time.Minute, "")
	require.NoError(t, err)
	s.Start()
	s.Stop()
}

func TestSweeperEvictsOnSchedule(t *testing.T) {
	c := NewCache()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put("expired-a", "x", nil)
	c.Put("expired-b", "y", nil)
	c.now = func() time.Time { return base.Add(time.Hour) }
	c.Put("fresh", "z", nil)

	s, err := NewSweeper(c, 10*time.Minute, "@every 1s")
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return c.Len() == 1 }, 5*time.Second, 50*time.Millisecond)
	_, err = c.Get("expired-a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = c.Get("fresh")
	assert.NoError(t, err)
}
