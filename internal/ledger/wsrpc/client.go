package wsrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("wsrpc: client closed")

// Client is a ledger.Transport backed by one websocket connection.
// Round-trips are serialized.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Dial connects to a wsrpc server, e.g. "ws://127.0.0.1:8545/ledger".
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Call implements ledger.Transport.
func (c *Client) Call(ctx context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Tuple, error) {
	resp, err := c.roundTrip(ctx, KindCall, method, opts, args)
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return ledger.Tuple{}, nil
	}
	return resp.Result, nil
}

// Send implements ledger.Transport.
func (c *Client) Send(ctx context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Receipt, error) {
	resp, err := c.roundTrip(ctx, KindSend, method, opts, args)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if resp.Receipt == nil {
		return ledger.Receipt{}, fmt.Errorf("wsrpc: %s: response carries no receipt", method)
	}
	return *resp.Receipt, nil
}

func (c *Client) roundTrip(ctx context.Context, kind, method string, opts ledger.CallOpts, args []string) (Response, error) {
	if args == nil {
		args = []string{}
	}
	req := Request{
		ID:     ulid.Make().String(),
		Kind:   kind,
		Method: method,
		From:   string(opts.From),
		Gas:    opts.Gas,
		Args:   args,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Response{}, ErrClosed
	}

	// Deadlines only apply when the caller asked for one.
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("wsrpc: set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return Response{}, fmt.Errorf("wsrpc: write %s: %w", method, err)
	}

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("wsrpc: set read deadline: %w", err)
	}

	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("wsrpc: read %s: %w", method, err)
	}
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("wsrpc: response id %s does not match request %s", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return Response{}, resp.Error.decode()
	}
	return resp, nil
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

var _ ledger.Transport = (*Client)(nil)
