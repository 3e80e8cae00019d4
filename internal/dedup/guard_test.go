package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGuard() (*Guard, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewGuard(30*time.Second, WithClock(clk.Now)), clk
}

func TestGuard_MarkAndSeen(t *testing.T) {
	g, _ := newTestGuard()
	assert.False(t, g.Seen("abc"))
	g.Mark("abc")
	assert.True(t, g.Seen("abc"))
	assert.False(t, g.Seen("def"))
}

func TestGuard_ExpiresAfterHorizon(t *testing.T) {
	g, clk := newTestGuard()
	g.Mark("abc")

	clk.Advance(2 * time.Second)
	assert.True(t, g.Seen("abc"), "still inside window")

	clk.Advance(27 * time.Second)
	assert.True(t, g.Seen("abc"), "29s after mark")

	clk.Advance(2 * time.Second)
	assert.False(t, g.Seen("abc"), "31s after mark")
	assert.Equal(t, 0, g.Len())
}

func TestGuard_ClaimOnce(t *testing.T) {
	g, clk := newTestGuard()
	require.True(t, g.Claim("abc"))
	clk.Advance(2 * time.Second)
	assert.False(t, g.Claim("abc"))

	clk.Advance(40 * time.Second)
	assert.True(t, g.Claim("abc"), "claimable again once expired")
}

func TestGuard_RemarkExtendsExpiry(t *testing.T) {
	g, clk := newTestGuard()
	g.Mark("abc")
	clk.Advance(20 * time.Second)
	g.Mark("abc")
	clk.Advance(20 * time.Second)
	assert.True(t, g.Seen("abc"))
	clk.Advance(15 * time.Second)
	assert.False(t, g.Seen("abc"))
}

func TestGuard_LongIdleGap(t *testing.T) {
	g, clk := newTestGuard()
	for i := 0; i < 10; i++ {
		g.Mark(fmt.Sprintf("sig-%d", i))
	}
	clk.Advance(72 * time.Hour)
	assert.Equal(t, 0, g.Len())
	g.Mark("fresh")
	assert.Equal(t, 1, g.Len())
}

func TestGuard_ConcurrentClaim(t *testing.T) {
	g := NewGuard(30 * time.Second)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Claim("same") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestGuard_Reset(t *testing.T) {
	g, _ := newTestGuard()
	g.Mark("a")
	g.Mark("b")
	g.Reset()
	assert.Equal(t, 0, g.Len())
	assert.False(t, g.Seen("a"))
}
