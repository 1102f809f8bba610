package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

type collector struct {
	mu     sync.Mutex
	levels []product.StockLevel
}

func (c *collector) listen(l product.StockLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = append(c.levels, l)
}

func (c *collector) snapshot() []product.StockLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]product.StockLevel(nil), c.levels...)
}

func TestPublisher_Debounce(t *testing.T) {
	p := NewPublisher(20 * time.Millisecond)
	defer p.Close()

	var c collector
	unsubscribe := p.Subscribe(c.listen)
	defer unsubscribe()

	for v := int64(1); v <= 5; v++ {
		p.Publish(product.StockLevel{ProductID: "rice", Stock: int(10 - v), Version: v})
	}
	p.Publish(product.StockLevel{ProductID: "dal", Stock: 3, Version: 7})

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	got := c.snapshot()
	require.Len(t, got, 2)
	byID := map[string]product.StockLevel{}
	for _, l := range got {
		byID[l.ProductID] = l
	}
	assert.Equal(t, int64(5), byID["rice"].Version)
	assert.Equal(t, 5, byID["rice"].Stock)
	assert.Equal(t, int64(7), byID["dal"].Version)
}

func TestPublisher_SeparateWindows(t *testing.T) {
	p := NewPublisher(10 * time.Millisecond)
	defer p.Close()

	var c collector
	p.Subscribe(c.listen)

	p.Publish(product.StockLevel{ProductID: "rice", Version: 1})
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, 2*time.Millisecond)

	p.Publish(product.StockLevel{ProductID: "rice", Version: 2})
	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, int64(2), c.snapshot()[1].Version)
}

func TestPublisher_Unsubscribe(t *testing.T) {
	p := NewPublisher(5 * time.Millisecond)
	defer p.Close()

	var kept, dropped collector
	p.Subscribe(kept.listen)
	unsubscribe := p.Subscribe(dropped.listen)
	assert.Equal(t, 2, p.Subscribers())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, p.Subscribers())

	p.Publish(product.StockLevel{ProductID: "okra", Version: 1})
	require.Eventually(t, func() bool { return len(kept.snapshot()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Empty(t, dropped.snapshot())
}

func TestPublisher_Isolated(t *testing.T) {
	a := NewPublisher(5 * time.Millisecond)
	b := NewPublisher(5 * time.Millisecond)
	defer a.Close()
	defer b.Close()

	var c collector
	b.Subscribe(c.listen)
	a.Publish(product.StockLevel{ProductID: "rice"})

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestPublisher_Close(t *testing.T) {
	p := NewPublisher(10 * time.Millisecond)
	var c collector
	p.Subscribe(c.listen)

	p.Publish(product.StockLevel{ProductID: "rice"})
	p.Close()
	p.Publish(product.StockLevel{ProductID: "dal"})

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, c.snapshot())
	assert.Equal(t, 0, p.Subscribers())

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed")
	}
	p.Close()
}
