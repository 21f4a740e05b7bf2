// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageQueue_FIFOOrder(t *testing.T) {
	q := newPageQueue(8)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push([]byte{byte(i)}))
	}
	for i := 0; i < 5; i++ {
		data, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, data)
	}
}

func TestPageQueue_BlocksWhenFull(t *testing.T) {
	q := newPageQueue(1)
	require.NoError(t, q.Push([]byte{0}))

	pushed := make(chan struct{})
	go func() {
		_ = q.Push([]byte{1})
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Pop()
	require.True(t, ok)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push should complete once space frees up")
	}
}

func TestPageQueue_DiscardOlderThan(t *testing.T) {
	q := newPageQueue(8)

	require.NoError(t, q.Push([]byte{0}))
	require.NoError(t, q.Push([]byte{1}))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, q.Push([]byte{2}))

	dropped := q.DiscardOlderThan(20 * time.Millisecond)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, q.Len())

	data, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, data)
}

func TestPageQueue_DiscardKeepsFresh(t *testing.T) {
	q := newPageQueue(8)
	require.NoError(t, q.Push([]byte{0}))

	assert.Zero(t, q.DiscardOlderThan(time.Minute))
	assert.Equal(t, 1, q.Len())
}

func TestPageQueue_Close(t *testing.T) {
	q := newPageQueue(2)
	require.NoError(t, q.Push([]byte{7}))

	q.Close()

	assert.ErrorIs(t, q.Push([]byte{8}), ErrQueueClosed)

	// Queued pages drain before Pop reports closure.
	data, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte{7}, data)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestPageQueue_CloseUnblocksProducer(t *testing.T) {
	q := newPageQueue(1)
	require.NoError(t, q.Push([]byte{0}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.ErrorIs(t, q.Push([]byte{1}), ErrQueueClosed)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
}

func TestPageQueue_CloseUnblocksConsumer(t *testing.T) {
	q := newPageQueue(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := q.Pop()
		assert.False(t, ok)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
}
