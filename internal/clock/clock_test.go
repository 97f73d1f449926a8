package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTickerFiresOnDeadline(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	tk := c.NewTicker(4 * time.Second)

	c.Advance(3 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-tk.C():
		assert.Equal(t, time.Unix(4, 0), got)
	default:
		t.Fatal("ticker did not fire at deadline")
	}
}

func TestMockTickerStopped(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)
	tk.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	mt := c.Tickers()
	require.Len(t, mt, 1)
	assert.True(t, mt[0].Stopped())
	assert.Equal(t, 0, mt[0].Fired())
}

func TestMockTickerDropsWhenFull(t *testing.T) {
	c := NewMock(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)

	c.Advance(time.Second)
	c.Advance(time.Second)

	assert.Equal(t, 1, c.Tickers()[0].Fired())
	<-tk.C()
	c.Advance(time.Second)
	assert.Equal(t, 2, c.Tickers()[0].Fired())
}

func TestRealTicker(t *testing.T) {
	tk := Real{}.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}
