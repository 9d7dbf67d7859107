package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

func TestNotifier_Subscribe_Unsubscribe(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	require.NotNil(t, ch)

	n.mu.RLock()
	assert.Len(t, n.listeners, 1)
	n.mu.RUnlock()

	n.Unsubscribe(ch)

	n.mu.RLock()
	assert.Len(t, n.listeners, 0)
	n.mu.RUnlock()

	_, open := <-ch
	assert.False(t, open, "channel is closed on unsubscribe")

	// Unsubscribing twice must not panic on a closed channel.
	n.Unsubscribe(ch)
}

func TestNotifier_Broadcast(t *testing.T) {
	n := New()

	ch1 := n.Subscribe()
	ch2 := n.Subscribe()
	defer n.Unsubscribe(ch1)
	defer n.Unsubscribe(ch2)

	row := core.Change{Kind: core.ChangeTableRow, TableOID: 1, RowOID: 2}
	deep := core.Change{Kind: core.ChangeTableDataDeep, TableOID: 1}
	n.Broadcast(row, deep)

	for _, ch := range []chan core.Change{ch1, ch2} {
		for _, want := range []core.Change{row, deep} {
			select {
			case got := <-ch:
				assert.Equal(t, want, got)
			case <-time.After(100 * time.Millisecond):
				t.Fatal("listener did not receive broadcast")
			}
		}
	}
}

func TestNotifier_Broadcast_NonBlocking(t *testing.T) {
	n := NewWithBuffer(1)

	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	ch <- core.Change{Kind: core.ChangeTableList}

	done := make(chan bool)
	go func() {
		n.Broadcast(core.Change{Kind: core.ChangeObjectTypeList})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Broadcast blocked on full channel")
	}

	got := <-ch
	assert.Equal(t, core.ChangeTableList, got.Kind, "the full channel keeps its pending change")
}

func TestNotifier_ConcurrentAccess(t *testing.T) {
	n := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := n.Subscribe()
			n.Broadcast(core.Change{Kind: core.ChangeTableDataShallow})
			n.Unsubscribe(ch)
		}()
	}
	wg.Wait()

	n.mu.RLock()
	assert.Empty(t, n.listeners)
	n.mu.RUnlock()
}
