package handler

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

// Stock stream event names.
const (
	EventStockSnapshot = "stock:snapshot"
	EventStockUpdate   = "stock:update"
)

const maxStreamIDs = 200

// streamIDs parses ?ids=a,b,c into a de-duplicated set.
func streamIDs(r *http.Request) ([]string, error) {
	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	switch {
	case len(ids) == 0:
		return nil, badRequest("ids query parameter is required")
	case len(ids) > maxStreamIDs:
		return nil, badRequest("at most %d ids per stream", maxStreamIDs)
	}
	return ids, nil
}

// levelBuffer keeps the newest undelivered level per product so a slow
// client never blocks the publisher.
type levelBuffer struct {
	mu      sync.Mutex
	pending map[string]product.StockLevel
	order   []string
	ready   chan struct{}
}

func newLevelBuffer() *levelBuffer {
	return &levelBuffer{pending: make(map[string]product.StockLevel), ready: make(chan struct{}, 1)}
}

func (b *levelBuffer) put(l product.StockLevel) {
	b.mu.Lock()
	if _, ok := b.pending[l.ProductID]; !ok {
		b.order = append(b.order, l.ProductID)
	}
	b.pending[l.ProductID] = l
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *levelBuffer) drain() []product.StockLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]product.StockLevel, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.pending[id])
	}
	clear(b.pending)
	b.order = b.order[:0]
	return out
}

func encodeLevel(e *jx.Encoder, l product.StockLevel) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(l.Stock) })
		e.Field("version", func(e *jx.Encoder) { e.Int64(l.Version) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(l.UpdatedAt.UTC().Format(time.RFC3339Nano)) })
	})
}

// writeEvent writes one event-stream frame. data must not contain newlines,
// which jx output never does.
func writeEvent(w http.ResponseWriter, event string, data []byte) error {
	frame := make([]byte, 0, len(event)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	_, err := w.Write(frame)
	return err
}

// streamStock sends a snapshot of the requested products, then their
// updates as they happen, until the client disconnects.
func (h *Handler) streamStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := streamIDs(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	rc := http.NewResponseController(w)
	lg := zctx.From(ctx).With(zap.Int("products", len(ids)))

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	buf := newLevelBuffer()
	// Subscribe before the snapshot so no update between the two is lost.
	unsubscribe := h.Stream.Subscribe(func(l product.StockLevel) {
		if _, ok := wanted[l.ProductID]; ok {
			buf.put(l)
		}
	})
	defer unsubscribe()

	levels, err := h.Products.StockSnapshot(ctx, ids)
	if err != nil {
		fail(w, r, err)
		return
	}

	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, l := range levels {
			encodeLevel(e, l)
		}
	})
	if err := writeEvent(w, EventStockSnapshot, e.Bytes()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		lg.Warn("Stock stream cannot flush", zap.Error(err))
		return
	}
	lg.Debug("Stock stream opened")

	keepAlive := time.NewTicker(h.KeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			lg.Debug("Stock stream closed by client")
			return
		case <-h.Stream.Done():
			lg.Debug("Stock stream closed by server")
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		case <-buf.ready:
			for _, l := range buf.drain() {
				e.Reset()
				encodeLevel(&e, l)
				if err := writeEvent(w, EventStockUpdate, e.Bytes()); err != nil {
					return
				}
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) streamHealth(w http.ResponseWriter, _ *http.Request) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
		e.Field("subscribers", func(e *jx.Encoder) { e.Int(h.Stream.Subscribers()) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}
