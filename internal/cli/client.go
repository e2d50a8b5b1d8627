package cli

import (
	"context"
	"io"

	"github.com/procateodor/blockchain-marketplace/internal/aggregate"
	"github.com/procateodor/blockchain-marketplace/internal/config"
	"github.com/procateodor/blockchain-marketplace/internal/devnet"
	"github.com/procateodor/blockchain-marketplace/internal/engine"
	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/ledger/wsrpc"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/session"
	"github.com/procateodor/blockchain-marketplace/internal/view"
)

// client is one loaded session against the configured ledger.
type client struct {
	contract *ledger.Contract
	session  *session.Session
	engine   *engine.Engine
	closer   io.Closer
}

func (c *client) Close() error {
	return c.closer.Close()
}

// openTransport dials the remote ledger when a URL is configured and opens
// the local devnet database otherwise.
func openTransport(ctx context.Context, cfg config.LedgerConfig) (ledger.Transport, io.Closer, error) {
	if cfg.URL != "" {
		c, err := wsrpc.Dial(ctx, cfg.URL, nil)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
	l, err := devnet.Open(cfg.Devnet)
	if err != nil {
		return nil, nil, err
	}
	return l, l, nil
}

// openClient connects and loads the configured account. A failed load is
// reported as ExitFailure; connection problems as ExitCommandError.
func openClient(ctx context.Context, opts *RootOptions) (*client, error) {
	if opts.Config.Account == "" {
		return nil, NewExitError(ExitCommandError, "no account: set --account or MARKET_ACCOUNT")
	}

	t, closer, err := openTransport(ctx, opts.Config.Ledger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to ledger", err)
	}

	contract := ledger.NewContract(t, opts.Config.Ledger.Gas)
	store := view.New()
	agg := aggregate.New(contract,
		aggregate.WithProductConcurrency(opts.Config.Aggregate.ProductConcurrency),
		aggregate.WithReadFanOut(opts.Config.Aggregate.ReadFanOut),
		aggregate.WithLogger(opts.Logger),
	)
	c := &client{
		contract: contract,
		session:  session.New(contract, agg, store, session.WithLogger(opts.Logger)),
		engine:   engine.New(contract, store, engine.WithLogger(opts.Logger)),
		closer:   closer,
	}

	if err := c.session.Load(ctx, market.NormalizeAddress(opts.Config.Account)); err != nil {
		closer.Close()
		return nil, WrapExitError(ExitFailure, "failed to load account "+opts.Config.Account, err)
	}
	return c, nil
}
