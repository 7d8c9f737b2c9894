package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"marketplace-service/internal/models"
)

var ErrChannelClosed = errors.New("channel closed")

// Handshake identifies the user opening the live channel.
type Handshake struct {
	Token    string
	UserID   string
	UserName string
	UserRole string
}

// Channel is a live websocket connection carrying envelopes.
type Channel struct {
	conn    *websocket.Conn
	events  chan models.Envelope
	writeMu sync.Mutex
	err     error
	errMu   sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// Dial opens the live channel at wsURL. The token travels only in the
// Authorization header.
func Dial(ctx context.Context, wsURL string, hs Handshake) (*Channel, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, &NetworkError{Op: "connect", Err: err}
	}
	q := u.Query()
	q.Set("userId", hs.UserID)
	q.Set("userName", hs.UserName)
	q.Set("userRole", hs.UserRole)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+hs.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &NetworkError{Op: "connect", Status: status, Err: err}
	}

	ch := &Channel{
		conn:   conn,
		events: make(chan models.Envelope, 64),
		closed: make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// Emit sends an event. It is safe for concurrent use.
func (c *Channel) Emit(event string, data any) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(envelope)
}

// Events delivers incoming envelopes until the connection ends.
func (c *Channel) Events() <-chan models.Envelope {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close sends a close frame and tears the connection down.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.events)
	for {
		var envelope models.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			select {
			case <-c.closed:
			default:
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}
		select {
		case c.events <- envelope:
		case <-c.closed:
			return
		}
	}
}
