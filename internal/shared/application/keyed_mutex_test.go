package application

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex[string]()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("user-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.Len())
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	locks := NewKeyedMutex[int]()

	unlockA := locks.Lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock(2)
		unlockB()
		close(done)
	}()
	<-done

	assert.Equal(t, 1, locks.Len())
	unlockA()
	assert.Equal(t, 0, locks.Len())
}
