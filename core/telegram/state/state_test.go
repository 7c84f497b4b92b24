package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreZeroValueAndReset(t *testing.T) {
	s := NewStore[string]()
	v, ok := s.Get(1)
	require.False(t, ok)
	require.Equal(t, "", v)

	s.Set(1, "awaiting")
	v, ok = s.Get(1)
	require.True(t, ok)
	require.Equal(t, "awaiting", v)

	s.Reset(1)
	_, ok = s.Get(1)
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestStoreConcurrentSetAndGet(t *testing.T) {
	s := NewStore[int]()
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(i, int(i)*2)
		}()
	}
	wg.Wait()
	require.Equal(t, 50, s.Len())
	v, ok := s.Get(21)
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestSequencerKeepsPerKeyOrder(t *testing.T) {
	seq := NewSequencer()
	var mu sync.Mutex
	got := map[int64][]int{}

	for i := 0; i < 50; i++ {
		for _, key := range []int64{1, 2, 3} {
			i, key := i, key
			seq.Go(key, func() {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			})
		}
	}
	seq.Wait()

	for _, key := range []int64{1, 2, 3} {
		require.Len(t, got[key], 50)
		for i, v := range got[key] {
			require.Equal(t, i, v)
		}
	}
}

func TestSequencerRunsKeysConcurrently(t *testing.T) {
	seq := NewSequencer()
	release := make(chan struct{})
	done := make(chan struct{})

	seq.Go(1, func() { <-release })
	seq.Go(2, func() { close(done) })

	<-done
	close(release)
	seq.Wait()
}

func TestSequencerSurvivesPanickingTask(t *testing.T) {
	seq := NewSequencer()
	var mu sync.Mutex
	var ran []string

	seq.Go(1, func() { panic("boom in handler") })
	seq.Go(1, func() {
		mu.Lock()
		ran = append(ran, "key1")
		mu.Unlock()
	})
	seq.Go(2, func() {
		mu.Lock()
		ran = append(ran, "key2")
		mu.Unlock()
	})
	seq.Wait()
	require.ElementsMatch(t, []string{"key1", "key2"}, ran)

	done := make(chan struct{})
	seq.Go(1, func() { close(done) })
	<-done
	seq.Wait()
}
