package stellar

import (
	"time"
)

// NativeAssetSymbol is the display symbol for the ledger's native asset.
const NativeAssetSymbol = "XLM"

// Operation type names as reported by Horizon.
const (
	OpTypePayment                  = "payment"
	OpTypePathPaymentStrictReceive = "path_payment_strict_receive"
	OpTypePathPaymentStrictSend    = "path_payment_strict_send"
	OpTypeCreateAccount            = "create_account"
)

// Transaction represents a confirmed Stellar transaction together with its
// resolved operations. This is our domain model, independent of the Horizon
// response format. Instances are never mutated after construction.
type Transaction struct {
	ID            string
	Hash          string
	CreatedAt     time.Time
	FeeCharged    int64 // stroops
	Successful    bool
	SourceAccount string
	Ledger        int32
	Memo          string
	PagingToken   string // opaque stream cursor assigned by Horizon
	EnvelopeXDR   string
	ResultXDR     string
	Operations    []Operation
}

// Asset identifies a Stellar asset. The zero value is the native asset (XLM).
type Asset struct {
	Code   string
	Issuer string
}

// Native reports whether the asset is the ledger's native asset.
func (a Asset) Native() bool { return a.Code == "" }

// Symbol returns the display symbol for the asset, "XLM" for native.
func (a Asset) Symbol() string {
	if a.Native() {
		return NativeAssetSymbol
	}
	return a.Code
}

// Operation is a single effect within a transaction. It is a closed union:
// each variant carries only the fields that are valid for its kind, so
// classification can never read a field the operation type does not define.
type Operation interface {
	// OperationID returns the Horizon-assigned operation id, unique across
	// the ledger.
	OperationID() string

	// OperationType returns the Horizon type name (e.g. "payment").
	OperationType() string

	isOperation()
}

// PaymentOp is a simple payment of a single asset.
type PaymentOp struct {
	ID            string
	SourceAccount string
	From          string
	To            string
	Amount        string // 7-decimal string as reported by Horizon
	Asset         Asset
}

func (o PaymentOp) OperationID() string   { return o.ID }
func (o PaymentOp) OperationType() string { return OpTypePayment }
func (o PaymentOp) isOperation()          {}

// PathPaymentReceiveOp is a path payment where the destination amount is fixed.
// Amount and Asset describe what the destination received.
type PathPaymentReceiveOp struct {
	ID            string
	SourceAccount string
	From          string
	To            string
	Amount        string
	Asset         Asset
	SourceAmount  string
	SourceAsset   Asset
}

func (o PathPaymentReceiveOp) OperationID() string   { return o.ID }
func (o PathPaymentReceiveOp) OperationType() string { return OpTypePathPaymentStrictReceive }
func (o PathPaymentReceiveOp) isOperation()          {}

// PathPaymentSendOp is a path payment where the sent amount is fixed.
// Amount and Asset describe what the destination received.
type PathPaymentSendOp struct {
	ID            string
	SourceAccount string
	From          string
	To            string
	Amount        string
	Asset         Asset
	SourceAmount  string
	SourceAsset   Asset
}

func (o PathPaymentSendOp) OperationID() string   { return o.ID }
func (o PathPaymentSendOp) OperationType() string { return OpTypePathPaymentStrictSend }
func (o PathPaymentSendOp) isOperation()          {}

// CreateAccountOp funds a new account with a native-asset starting balance.
type CreateAccountOp struct {
	ID              string
	SourceAccount   string
	Funder          string
	Account         string // the account being created
	StartingBalance string
}

func (o CreateAccountOp) OperationID() string   { return o.ID }
func (o CreateAccountOp) OperationType() string { return OpTypeCreateAccount }
func (o CreateAccountOp) isOperation()          {}

// OtherOp is any operation kind we do not classify as a payment
// (offers, trustlines, account options, ...). Only identity is retained.
type OtherOp struct {
	ID            string
	SourceAccount string
	Type          string
}

func (o OtherOp) OperationID() string   { return o.ID }
func (o OtherOp) OperationType() string { return o.Type }
func (o OtherOp) isOperation()          {}

// Direction indicates whether a payment moves value toward or away from the
// watched account.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// PaymentStatus is the workflow status of a payment record. Classification
// only ever produces Completed or Failed; Pending and Converting exist for
// callers that layer their own workflow states on top.
type PaymentStatus string

const (
	StatusCompleted  PaymentStatus = "completed"
	StatusPending    PaymentStatus = "pending"
	StatusConverting PaymentStatus = "converting"
	StatusFailed     PaymentStatus = "failed"
)

// PaymentRecord is the normalized payment entity derived from one operation
// inside one transaction, relative to a watched account. Records are
// immutable and safe to recompute; ID is unique per record and is the
// consumer-side deduplication key.
type PaymentRecord struct {
	ID            string        `json:"id"`
	Date          time.Time     `json:"date"`
	Amount        float64       `json:"amount"`
	Token         string        `json:"token"`
	Status        PaymentStatus `json:"status"`
	Hash          string        `json:"hash"`
	FromAccount   string        `json:"from_account,omitempty"`
	ToAccount     string        `json:"to_account,omitempty"`
	OperationType string        `json:"operation_type"`
	Direction     Direction     `json:"direction"`
	Fee           int64         `json:"fee"`
	Memo          string        `json:"memo,omitempty"`
}

// Balance is one entry of an account's balance list.
type Balance struct {
	Asset  Asset
	Amount string // 7-decimal string as reported by Horizon
}

// BalanceMap maps asset symbols to numeric balances. It is always replaced
// wholesale on refresh, never merged.
type BalanceMap map[string]float64

// AccountSummary is the subset of Horizon account state the engine consumes.
type AccountSummary struct {
	ID       string
	Sequence int64
	Balances []Balance
}
