package inflight

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_TryAdd_RejectsDuplicate(t *testing.T) {
	var s Set
	assert.True(t, s.TryAdd("crawl_feeds:1"))
	assert.False(t, s.TryAdd("crawl_feeds:1"))
	assert.True(t, s.TryAdd("crawl_feeds:2"))
}

func TestSet_Remove_AllowsReAdd(t *testing.T) {
	var s Set
	s.TryAdd("k")
	s.Remove("k")
	assert.True(t, s.TryAdd("k"))
}

func TestSet_Contains(t *testing.T) {
	var s Set
	assert.False(t, s.Contains("k"))
	s.TryAdd("k")
	assert.True(t, s.Contains("k"))
}

func TestSet_ConcurrentTryAdd_OnlyOneWinner(t *testing.T) {
	var s Set
	var wg sync.WaitGroup
	wins := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- s.TryAdd("same-key")
		}()
	}
	wg.Wait()
	close(wins)

	var winCount int
	for w := range wins {
		if w {
			winCount++
		}
	}
	assert.Equal(t, 1, winCount)
}
