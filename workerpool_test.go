// workerpool_test.go: Test cases for the worker pool scheduler.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolSubmit(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	require.Equal(t, 4, pool.Size())

	out, err := pool.Submit("echo", func() ([]byte, error) {
		return []byte("done"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), out)

	wantErr := errors.New("task failure")
	_, err = pool.Submit("fail", func() ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	assert.Equal(t, 0, pool.Pending())
}

func TestWorkerPoolConcurrentSubmit(t *testing.T) {
	pool := NewWorkerPool(8, 0)
	defer pool.Close()

	const callers = 64
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = pool.Submit("concurrent", func() ([]byte, error) {
				time.Sleep(time.Millisecond)
				return []byte(fmt.Sprintf("task-%d", i)), nil
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("task-%d", i), string(results[i]))
	}
	assert.Equal(t, 0, pool.Pending())
}

func TestWorkerPoolTimeout(t *testing.T) {
	pool := NewWorkerPool(2, 50*time.Millisecond)
	defer pool.Close()

	release := make(chan struct{})
	_, err := pool.Submit("slow", func() ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	require.ErrorIs(t, err, ErrWorkerTimeout)

	// The timed-out slot is freed immediately; the pool keeps making
	// progress while the straggler is still blocked.
	out, err := pool.Submit("fast", func() ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))

	close(release)
	assert.Eventually(t, func() bool { return pool.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWorkerPoolBatchOrdering(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	const n = 100
	items := make([][]byte, n)
	for i := range items {
		items[i] = []byte(fmt.Sprintf("item-%03d", i))
	}

	// Adversarial completion order: earlier items take longer.
	results := pool.Batch(items, func(payload []byte) ([]byte, error) {
		if payload[5] == '0' {
			time.Sleep(3 * time.Millisecond)
		}
		return append([]byte("out:"), payload...), nil
	})

	require.Len(t, results, n)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("out:item-%03d", i), string(r.Output))
	}
}

func TestWorkerPoolBatchPartialFailure(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	items := [][]byte{[]byte("good"), []byte("bad"), []byte("good")}
	results := pool.Batch(items, func(payload []byte) ([]byte, error) {
		if string(payload) == "bad" {
			return nil, errors.New("rejected")
		}
		return payload, nil
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestWorkerPoolBatchCopiesPayloads(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	defer pool.Close()

	item := []byte("original")
	started := make(chan struct{})
	proceed := make(chan struct{})

	done := make(chan []BatchResult, 1)
	go func() {
		done <- pool.Batch([][]byte{item}, func(payload []byte) ([]byte, error) {
			close(started)
			<-proceed
			return append([]byte(nil), payload...), nil
		})
	}()

	// Mutate the caller's buffer while the task is mid-flight.
	<-started
	copy(item, "XXXXXXXX")
	close(proceed)

	results := <-done
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "original", string(results[0].Output))
}

func TestWorkerPoolClose(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	pool.Close()
	pool.Close() // idempotent

	_, err := pool.Submit("after-close", func() ([]byte, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPoolDefaults(t *testing.T) {
	pool := NewWorkerPool(0, -time.Second)
	defer pool.Close()

	assert.Greater(t, pool.Size(), 0)
	assert.Equal(t, DefaultTaskTimeout, pool.timeout)
}
