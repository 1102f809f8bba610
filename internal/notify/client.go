package notify

import (
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ErrDisconnected is returned by Publish while the broker connection is down.
var ErrDisconnected = errors.New("amqp connection is down")

const maxRedialDelay = 30 * time.Second

// Session is one broker connection with its publishing channel.
type Session interface {
	Channel
	// NotifyClose registers c to receive the close error of the session. c is
	// closed once the session is gone.
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

var _ Channel = (*Client)(nil)

// Client publishes over a RabbitMQ session and redials it with backoff when
// the broker drops the connection.
type Client struct {
	lg    *zap.Logger
	dial  func() (Session, error)
	retry time.Duration

	mu      sync.RWMutex
	session Session // nil while reconnecting
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to url, declares the notification exchange and keeps the
// connection alive until Close.
func Dial(lg *zap.Logger, url string) (*Client, error) {
	return connect(lg, func() (Session, error) { return dialSession(url) }, time.Second)
}

func connect(lg *zap.Logger, dial func() (Session, error), retry time.Duration) (*Client, error) {
	s, err := dial()
	if err != nil {
		return nil, err
	}
	c := &Client{
		lg:      lg,
		dial:    dial,
		retry:   retry,
		session: s,
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run(s)
	return c, nil
}

func (c *Client) run(s Session) {
	defer c.wg.Done()
	for {
		closed := s.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case err := <-closed:
			if err != nil {
				c.lg.Warn("AMQP connection lost", zap.String("reason", err.Reason), zap.Int("code", err.Code))
			} else {
				c.lg.Warn("AMQP connection lost")
			}
		}

		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()

		if s = c.redial(); s == nil {
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = s.Close()
			return
		}
		c.session = s
		c.mu.Unlock()
		c.lg.Info("AMQP connection restored")
	}
}

// redial returns a new session, or nil once the client is closed.
func (c *Client) redial() Session {
	wait := c.retry
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(wait):
		}
		s, err := c.dial()
		if err == nil {
			return s
		}
		c.lg.Warn("AMQP redial failed", zap.Error(err), zap.Duration("retry_in", wait))
		wait = min(2*wait, maxRedialDelay)
	}
}

// Publish sends msg on the current session.
func (c *Client) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil {
		return ErrDisconnected
	}
	return s.Publish(exchange, key, mandatory, immediate, msg)
}

// IsClosed reports whether there is currently no broker session.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session == nil
}

// Close stops reconnecting and closes the current session.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	c.session = nil
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	if s != nil {
		return s.Close()
	}
	return nil
}

type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialSession(url string) (Session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	return &amqpSession{conn: conn, ch: ch}, nil
}

func (s *amqpSession) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return s.ch.Publish(exchange, key, mandatory, immediate, msg)
}

// NotifyClose watches the channel; it also shuts down with the connection.
func (s *amqpSession) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	return s.ch.NotifyClose(c)
}

func (s *amqpSession) Close() error {
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = s.conn.Close()
		return err
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
