// Package realtime fans committed stock levels out to live subscribers.
package realtime

import (
	"sync"
	"time"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

// DefaultWindow is the debounce window used when none is configured.
const DefaultWindow = 50 * time.Millisecond

// Listener receives stock levels. It must not block.
type Listener func(level product.StockLevel)

// Publisher coalesces bursts of stock updates per product: within the
// window only the latest level survives and is delivered once. It is an
// in-memory hint for live views, never a source of truth.
type Publisher struct {
	window time.Duration

	mu        sync.Mutex
	pending   map[string]product.StockLevel
	timers    map[string]*time.Timer
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
	done      chan struct{}
}

// NewPublisher creates a Publisher with the given debounce window.
func NewPublisher(window time.Duration) *Publisher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Publisher{
		window:    window,
		pending:   make(map[string]product.StockLevel),
		timers:    make(map[string]*time.Timer),
		listeners: make(map[uint64]Listener),
		done:      make(chan struct{}),
	}
}

// Publish schedules level for delivery, replacing any pending level of the
// same product.
func (p *Publisher) Publish(level product.StockLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.pending[level.ProductID] = level
	if _, scheduled := p.timers[level.ProductID]; scheduled {
		return
	}
	id := level.ProductID
	p.timers[id] = time.AfterFunc(p.window, func() { p.flush(id) })
}

func (p *Publisher) flush(productID string) {
	p.mu.Lock()
	level, ok := p.pending[productID]
	delete(p.pending, productID)
	delete(p.timers, productID)
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	for _, l := range listeners {
		l(level)
	}
}

// Subscribe registers l and returns a function that removes it.
func (p *Publisher) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
		})
	}
}

// Subscribers returns the number of registered listeners.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Done is closed by Close. Subscribers use it to end their streams.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

// Close drops pending levels and stops future deliveries. It is safe to
// call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	clear(p.pending)
	clear(p.listeners)
}
