package ledger

import (
	"context"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// DefaultMaxGas is the resource cap attached to every write.
const DefaultMaxGas uint64 = 999999999

// Tuple is a positional ledger response. Numbers arrive as decimal strings,
// booleans as bool, lists as []string.
type Tuple []any

// CallOpts identifies the acting account and the resource cap.
type CallOpts struct {
	From market.Address
	Gas  uint64
}

// Receipt confirms a write. Events carries ids the ledger allocated while
// applying it, e.g. "productId" or "notificationId".
type Receipt struct {
	TxID   string            `json:"tx_id"`
	Events map[string]string `json:"events,omitempty"`
}

// Transport executes raw ledger reads and writes.
type Transport interface {
	Call(ctx context.Context, method string, opts CallOpts, args ...string) (Tuple, error)
	Send(ctx context.Context, method string, opts CallOpts, args ...string) (Receipt, error)
}

// Ledger method names.
const (
	MethodGetProducts               = "getProducts"
	MethodGetProduct                = "getProduct"
	MethodGetProductFreelancers     = "getProductFreelancers"
	MethodGetProductTeam            = "getProductTeam"
	MethodGetUserDetails            = "getUserDetails"
	MethodGetFreelancerAmount       = "getFreelancerAmount"
	MethodGetCurrentProductFunds    = "getCurrentProductFunds"
	MethodGetMyCurrentProductFunds  = "getMyCurrentProductFunds"
	MethodGetManagerNotifications   = "getManagerNotifications"
	MethodGetEvaluatorNotifications = "getEvaluatorNotifications"
	MethodGetUser                   = "getUser"
	MethodBalanceOf                 = "balanceOf"

	MethodCreateProduct      = "createProduct"
	MethodFinanceProduct     = "financeProduct"
	MethodWithdrawFunds      = "withdrawFundsFromProduct"
	MethodDeleteProduct      = "deleteProduct"
	MethodAddEvaluator       = "addEvaluator"
	MethodAddFreelancer      = "addFreelancer"
	MethodAddToTeam          = "addToTeam"
	MethodNotifyManagerDone  = "notifyManagerDoneProduct"
	MethodAcceptDone         = "acceptDoneProduct"
	MethodDenyDone           = "denyDoneProduct"
	MethodPositiveEvaluation = "positiveEvaluation"
	MethodNegativeEvaluation = "negativeEvaluation"
)

// Receipt event keys.
const (
	EventProductID      = "productId"
	EventNotificationID = "notificationId"
)
