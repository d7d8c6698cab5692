package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator_Sequential(t *testing.T) {
	gen := NewSequenceGenerator("counter")

	assert.Equal(t, "counter-0001", gen.Generate())
	assert.Equal(t, "counter-0002", gen.Generate())
	assert.Equal(t, "counter-0003", gen.Generate())
}

func TestSequenceGenerator_EmptyPrefix(t *testing.T) {
	gen := NewSequenceGenerator("")
	assert.Equal(t, "p-0001", gen.Generate())
}

func TestSequenceGenerator_Reset(t *testing.T) {
	gen := NewSequenceGenerator("s")
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, "s-0001", gen.Generate())
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	gen := NewSequenceGenerator("c")
	const goroutines = 64

	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}
