package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(10)
	assert.Equal(t, uint64(11), s.Next())
	assert.Equal(t, uint64(12), s.Next())
	assert.Equal(t, uint64(12), s.Current())
}

func TestObserveOnlyMovesForward(t *testing.T) {
	s := New(5)
	s.Observe(3)
	assert.Equal(t, uint64(5), s.Current())
	s.Observe(9)
	assert.Equal(t, uint64(10), s.Next())
}

func TestConcurrentNextIsUnique(t *testing.T) {
	s := New(0)
	const workers, per = 8, 500
	seen := make(chan uint64, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				seen <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	uniq := make(map[uint64]struct{})
	for v := range seen {
		uniq[v] = struct{}{}
	}
	assert.Len(t, uniq, workers*per)
	assert.Equal(t, uint64(workers*per), s.Current())
}
