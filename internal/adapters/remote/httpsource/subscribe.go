package httpsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

func (c *Client) streamURL() string {
	u := *c.base
	u.RawQuery = ""
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.JoinPath("realtime").String()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.streamURL(), err)
	}
	return conn, nil
}

// Subscribe opens the change stream. A dropped stream is re-dialed, paced by
// the reconnect limiter; changes committed while disconnected are missed, so
// the reconnect hook is the place to resynchronize.
func (c *Client) Subscribe(ctx context.Context) (remote.Subscription, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		ch:     make(chan types.Change, c.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(sctx, conn, s)
	return s, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, s *subscription) {
	defer close(s.done)
	defer close(s.ch)

	for {
		c.pump(ctx, conn, s.ch)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn(ctx, "change stream dropped, reconnecting")

		var err error
		for conn = nil; conn == nil; {
			if err = c.limiter.Wait(ctx); err != nil {
				return
			}
			if conn, err = c.dial(ctx); err != nil {
				c.log.Warn(ctx, "reconnect failed", logger.Error(err))
			}
		}
		metrics.RecordSubscriptionReconnect()
		if c.onReconnect != nil {
			c.onReconnect()
		}
	}
}

// pump forwards decoded changes until the connection fails or ctx ends.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, out chan<- types.Change) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		var ch types.Change
		if err := conn.ReadJSON(&ch); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.log.Debug(ctx, "change stream read failed", logger.Error(err))
			}
			return
		}
		select {
		case out <- ch:
		case <-ctx.Done():
			return
		}
	}
}

type subscription struct {
	ch     chan types.Change
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Changes() <-chan types.Change { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
