package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"Argo/internal/domain/models"
	drepo "Argo/internal/domain/repository"
	"Argo/pkg/logger"
)

// Client is a TickStream over the Finnhub trades websocket.
type Client struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *logger.Logger

	mu        sync.Mutex // guards conn and serializes writes
	conn      *websocket.Conn
	symbols   []string
	connected atomic.Bool
}

// New creates a trade stream client. Call Connect to start it.
func New(apiKey, websocketURL string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
	}
}

// Connect dials the websocket with the API key as token.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.l.Info("finnhub connected", logger.String("url", u.Host))
	return nil
}

// Subscribe remembers symbols so Reconnect can resubscribe them.
func (c *Client) Subscribe(_ context.Context, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("finnhub not connected")
	}
	for _, s := range symbols {
		if err := c.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.symbols = append([]string(nil), symbols...)
	c.l.Info("finnhub subscribed", logger.Strings("symbols", symbols))
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Read streams ticks until ctx ends or the connection fails. Ticks are
// dropped rather than blocking the socket when the consumer falls behind.
func (c *Client) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	go c.pingLoop(ctx, conn)

	go func() {
		defer close(ticks)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("finnhub conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var m fhMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				t := models.Tick{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T).UTC()}
				select {
				case ticks <- t:
				default:
				}
			}
		}
	}()

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Reconnect closes the socket, waits reconnectDelay and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	symbols := c.symbols
	c.mu.Unlock()
	return c.Subscribe(ctx, symbols)
}

// Close stops the stream and closes the connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected reports whether the websocket is up.
func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ drepo.TickStream = (*Client)(nil)
