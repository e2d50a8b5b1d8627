package wsrpc

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

type fakeTransport struct {
	lastOpts ledger.CallOpts
	lastArgs []string
}

func (f *fakeTransport) Call(_ context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Tuple, error) {
	f.lastOpts, f.lastArgs = opts, args
	switch method {
	case ledger.MethodGetProduct:
		return ledger.Tuple{"site", "100", "20", "web", "0xa1", string(market.NullAddress), true, "1"}, nil
	case ledger.MethodGetProductTeam:
		return ledger.Tuple{}, nil
	case ledger.MethodGetUser:
		return nil, ledger.Revert("User not registered")
	}
	return nil, errors.New("boom")
}

func (f *fakeTransport) Send(_ context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Receipt, error) {
	f.lastOpts, f.lastArgs = opts, args
	if method == ledger.MethodFinanceProduct {
		return ledger.Receipt{}, ledger.Revert("Too many funds sent")
	}
	return ledger.Receipt{TxID: "tx-1", Events: map[string]string{ledger.EventProductID: "1"}}, nil
}

func dialTest(t *testing.T, tr ledger.Transport) *Client {
	t.Helper()
	srv := httptest.NewServer(NewHandler(tr))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Call(t *testing.T) {
	fake := &fakeTransport{}
	c := dialTest(t, fake)

	res, err := c.Call(context.Background(), ledger.MethodGetProduct, ledger.CallOpts{From: "0xa1"}, "1")
	require.NoError(t, err)
	require.Len(t, res, 8)
	assert.Equal(t, "site", res[0])
	assert.Equal(t, true, res[6])
	assert.Equal(t, market.Address("0xa1"), fake.lastOpts.From)
	assert.Equal(t, []string{"1"}, fake.lastArgs)
}

func TestClient_EmptyResult(t *testing.T) {
	c := dialTest(t, &fakeTransport{})

	res, err := c.Call(context.Background(), ledger.MethodGetProductTeam, ledger.CallOpts{}, "1")
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestClient_RevertSurvivesWire(t *testing.T) {
	c := dialTest(t, &fakeTransport{})

	_, err := c.Call(context.Background(), ledger.MethodGetUser, ledger.CallOpts{From: "0xa1"})
	require.Error(t, err)
	var rev *ledger.RevertError
	require.True(t, errors.As(err, &rev))
	assert.Equal(t, "User not registered", ledger.Reason(err))

	_, err = c.Send(context.Background(), ledger.MethodFinanceProduct, ledger.CallOpts{Gas: 5}, "1", "10")
	assert.Equal(t, "Too many funds sent", ledger.Reason(err))
}

func TestClient_RemoteError(t *testing.T) {
	c := dialTest(t, &fakeTransport{})

	_, err := c.Call(context.Background(), "unknown", ledger.CallOpts{})
	require.Error(t, err)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "boom", remote.Message)
}

func TestClient_Send(t *testing.T) {
	fake := &fakeTransport{}
	c := dialTest(t, fake)

	rcpt, err := c.Send(context.Background(), ledger.MethodCreateProduct, ledger.CallOpts{From: "0xa1", Gas: ledger.DefaultMaxGas}, "site", "100", "20", "web")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", rcpt.TxID)
	assert.Equal(t, "1", rcpt.Events[ledger.EventProductID])
	assert.Equal(t, ledger.DefaultMaxGas, fake.lastOpts.Gas)
}

func TestClient_Closed(t *testing.T) {
	c := dialTest(t, &fakeTransport{})
	require.NoError(t, c.Close())

	_, err := c.Call(context.Background(), ledger.MethodGetProduct, ledger.CallOpts{}, "1")
	assert.ErrorIs(t, err, ErrClosed)
}
