package wsrpc

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

const maxMessageSize = 1 << 20

// Handler serves a ledger.Transport to websocket clients.
type Handler struct {
	transport ledger.Transport
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithOriginCheck replaces the upgrader's origin check.
func WithOriginCheck(check func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

// NewHandler wraps t.
func NewHandler(t ledger.Transport, opts ...HandlerOption) *Handler {
	h := &Handler{
		transport: t,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and answers requests until the peer
// disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx := r.Context()
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		resp := h.dispatch(ctx, req)
		if err := conn.WriteJSON(resp); err != nil {
			h.logger.Warn("websocket write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, req Request) Response {
	opts := ledger.CallOpts{From: market.Address(req.From), Gas: req.Gas}
	resp := Response{ID: req.ID}

	switch req.Kind {
	case KindCall:
		res, err := h.transport.Call(ctx, req.Method, opts, req.Args...)
		if err != nil {
			resp.Error = encodeError(err)
			return resp
		}
		if res == nil {
			res = ledger.Tuple{}
		}
		resp.Result = res
	case KindSend:
		rcpt, err := h.transport.Send(ctx, req.Method, opts, req.Args...)
		if err != nil {
			h.logger.Debug("write reverted", "method", req.Method, "from", req.From, "error", err)
			resp.Error = encodeError(err)
			return resp
		}
		h.logger.Debug("write applied", "method", req.Method, "from", req.From, "tx", rcpt.TxID)
		resp.Receipt = &rcpt
	default:
		resp.Error = &WireError{Message: "unknown request kind " + req.Kind}
	}
	return resp
}
