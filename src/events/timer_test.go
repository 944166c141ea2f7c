package events

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/bftnode/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvTimeout(t *testing.T, c <-chan NodeTimeout) NodeTimeout {
	t.Helper()
	select {
	case nt, ok := <-c:
		require.True(t, ok, "channel closed")
		return nt
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout fired")
	}
	return NodeTimeout{}
}

func TestTimerFiresInTimeOrder(t *testing.T) {
	requests := make(chan TimeoutRequest, 8)
	timer := NewTimer(requests, 8, common.NewTestEntry(t, common.TestLogLevel))
	go timer.Run()
	defer timer.Shutdown()

	now := time.Now()
	requests <- TimeoutRequest{At: now.Add(60 * time.Millisecond), Timeout: NodeTimeout{Kind: RoundTimeout, Round: 2}}
	requests <- TimeoutRequest{At: now.Add(20 * time.Millisecond), Timeout: NodeTimeout{Kind: StatusTimeout, Height: 1}}
	requests <- TimeoutRequest{At: now.Add(-time.Second), Timeout: NodeTimeout{Kind: RequestTimeout}}

	assert.Equal(t, RequestTimeout, recvTimeout(t, timer.C()).Kind)

	st := recvTimeout(t, timer.C())
	assert.Equal(t, StatusTimeout, st.Kind)
	assert.False(t, time.Now().Before(now.Add(20*time.Millisecond)))

	rt := recvTimeout(t, timer.C())
	assert.Equal(t, RoundTimeout, rt.Kind)
	assert.Equal(t, uint32(2), rt.Round)
}

func TestTimerEqualTimesKeepArrivalOrder(t *testing.T) {
	requests := make(chan TimeoutRequest, 8)
	timer := NewTimer(requests, 8, common.NewTestEntry(t, common.TestLogLevel))
	go timer.Run()
	defer timer.Shutdown()

	at := time.Now().Add(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		requests <- TimeoutRequest{At: at, Timeout: NodeTimeout{Kind: RoundTimeout, Round: uint32(i)}}
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, uint32(i), recvTimeout(t, timer.C()).Round)
	}
}

func TestTimerDrainsThenCloses(t *testing.T) {
	requests := make(chan TimeoutRequest, 2)
	timer := NewTimer(requests, 2, common.NewTestEntry(t, common.TestLogLevel))
	go timer.Run()

	requests <- TimeoutRequest{At: time.Now().Add(10 * time.Millisecond), Timeout: NodeTimeout{Kind: PeerExchangeTimeout}}
	close(requests)

	assert.Equal(t, PeerExchangeTimeout, recvTimeout(t, timer.C()).Kind)

	select {
	case _, ok := <-timer.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timer output not closed")
	}
}

func TestTimerShutdown(t *testing.T) {
	requests := make(chan TimeoutRequest, 1)
	timer := NewTimer(requests, 1, common.NewTestEntry(t, common.TestLogLevel))
	go timer.Run()

	requests <- TimeoutRequest{At: time.Now().Add(time.Hour), Timeout: NodeTimeout{}}
	timer.Shutdown()
	timer.Shutdown()

	select {
	case _, ok := <-timer.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timer output not closed")
	}
}
