// ABOUTME: Duplex WebSocket channel for incremental chat and research delivery.
// ABOUTME: Forwards inbound JSON frames verbatim and notifies its owner exactly once on close.

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrNotConnected is returned by a send on a closed channel. Sends are never
// silently queued.
var ErrNotConnected = errors.New("streaming channel is not connected")

// frameBufferSize is the inbound frame buffer. Frames are dropped, not
// queued unboundedly, when the owner falls behind.
const frameBufferSize = 64

// chatFrame is the outbound frame for /ws/chat/<thread_id>.
type chatFrame struct {
	Message      string `json:"message"`
	DeepResearch bool   `json:"deep_research"`
}

// researchFrame is the outbound frame for /ws/research.
type researchFrame struct {
	Query string `json:"query"`
}

// Channel is a connected duplex stream keyed by a session. Inbound frames
// are opaque JSON payloads; the channel holds no research semantics.
type Channel struct {
	conn   *websocket.Conn
	frames chan json.RawMessage
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	err    error
}

// DialChat connects the chat stream for the given session id.
func DialChat(ctx context.Context, baseURL, threadID string, logger *slog.Logger) (*Channel, error) {
	wsURL, err := websocketURL(baseURL, "/ws/chat/"+threadID)
	if err != nil {
		return nil, err
	}
	return dial(ctx, wsURL, logger)
}

// DialResearch connects the research progress stream.
func DialResearch(ctx context.Context, baseURL string, logger *slog.Logger) (*Channel, error) {
	wsURL, err := websocketURL(baseURL, "/ws/research")
	if err != nil {
		return nil, err
	}
	return dial(ctx, wsURL, logger)
}

func dial(ctx context.Context, wsURL string, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", wsURL, err)
	}

	c := &Channel{
		conn:   conn,
		frames: make(chan json.RawMessage, frameBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "stream"),
	}
	go c.readLoop()

	c.logger.Debug("channel connected", "url", wsURL)
	return c, nil
}

// Frames returns the inbound frame stream. The channel is closed exactly
// once, when the connection ends from either side.
func (c *Channel) Frames() <-chan json.RawMessage {
	return c.frames
}

// Done is closed exactly once when the channel shuts down. After Done, Err
// reports the terminating error, nil for a clean close.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the channel. Valid after Done.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes a chat frame. Fails with ErrNotConnected on a closed channel.
func (c *Channel) Send(ctx context.Context, text string, deepResearch bool) error {
	return c.write(ctx, chatFrame{Message: text, DeepResearch: deepResearch})
}

// SendQuery writes a research query frame. Fails with ErrNotConnected on a
// closed channel.
func (c *Channel) SendQuery(ctx context.Context, query string) error {
	return c.write(ctx, researchFrame{Query: query})
}

func (c *Channel) write(ctx context.Context, frame any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	if err := wsjson.Write(ctx, c.conn, frame); err != nil {
		c.shutdown(err)
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

// Close severs the channel from the client side, stopping delivery of
// further frames. Safe to call multiple times.
func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

// readLoop forwards inbound frames until the connection ends. It is the only
// goroutine that closes the frames channel, so a frame already read off the
// wire can never race a close from Close or a failed send. Non-JSON payloads
// are dropped with a best-effort log; they never stop the loop.
func (c *Channel) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				err = nil
			}
			c.shutdown(err)
			return
		}

		if !json.Valid(data) {
			c.logger.Debug("dropping non-JSON frame", "bytes", len(data))
			continue
		}

		select {
		case c.frames <- json.RawMessage(data):
		default:
			c.logger.Debug("dropping frame for slow consumer")
		}
	}
}

// shutdown records the terminating error, closes the connection so the read
// loop exits, and notifies the owner exactly once, regardless of how many
// paths race here. The frames channel is closed by the read loop, never here.
func (c *Channel) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	c.mu.Unlock()

	c.conn.Close(websocket.StatusNormalClosure, "")
	close(c.done)
	if err != nil {
		c.logger.Debug("channel closed", "error", err)
	} else {
		c.logger.Debug("channel closed")
	}
}

// websocketURL converts the configured HTTP base URL into the ws(s) URL for
// the given path.
func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = path
	return u.String(), nil
}
