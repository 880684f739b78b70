// Package domain defines shared data structures used across all packages.
//
// This is the common vocabulary for the indexer — checkpoints, transactions,
// raw and typed events, pool metadata, and watermarks. It has no dependency
// on internal packages, so it can be imported by any layer.
package domain

import "fmt"

// EventKind enumerates the closed set of typed DeepBook event kinds the
// decoder recognizes.
type EventKind string

const (
	KindOrderPlaced      EventKind = "order_placed"
	KindOrderModified    EventKind = "order_modified"
	KindOrderCanceled    EventKind = "order_canceled"
	KindOrderExpired     EventKind = "order_expired"
	KindOrderFilled      EventKind = "order_filled"
	KindBalance          EventKind = "balance"
	KindFlashLoan        EventKind = "flash_loan"
	KindStake            EventKind = "stake"
	KindVote             EventKind = "vote"
	KindProposal         EventKind = "proposal"
	KindRebate           EventKind = "rebate"
	KindTradeParamsUpdate EventKind = "trade_params_update"
	KindPoolPrice        EventKind = "pool_price"
)

// OrderUpdatePipeline and OrderFillPipeline are the two watermark pipelines
// the Historical Replayer and Live Ingester synchronize against.
const (
	OrderUpdatePipeline = "order_update"
	OrderFillPipeline   = "order_fill"
	ReplayBatchSize     = 2000
	LatestTradesLimit   = 100
)

// Checkpoint is one atomic unit of blockchain history: a monotone sequence
// number, a millisecond timestamp, and an ordered list of transactions.
type Checkpoint struct {
	Sequence     uint64
	TimestampMs  int64
	Transactions []Transaction
}

// Transaction is one transaction within a checkpoint. Events are indexed
// 0..N within the transaction, in emission order.
type Transaction struct {
	Digest           string
	Sender           string
	MoveCallPackage  string
	InputObjectTypes []string
	Events           []RawEvent
}

// RawEvent is an undecoded event as it appears on-chain: a fully-qualified
// Move struct address plus its BCS-encoded payload.
type RawEvent struct {
	Index       int
	TypeAddress string // package ID
	TypeModule  string
	TypeName    string
	Contents    []byte
}

// StructTag identifies a Move event type by its fully-qualified address.
type StructTag struct {
	Address string
	Module  string
	Name    string
}

// Matches reports whether a raw event's type identity matches this tag.
func (t StructTag) Matches(e RawEvent) bool {
	return t.Address == e.TypeAddress && t.Module == e.TypeModule && t.Name == e.TypeName
}

func (t StructTag) String() string {
	return fmt.Sprintf("%s::%s::%s", t.Address, t.Module, t.Name)
}

// Fingerprint returns the globally unique event fingerprint (tx_digest,
// event_index_in_tx) as a single string, used as the idempotent upsert key.
type Fingerprint struct {
	TxDigest   string
	EventIndex int
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s%d", f.TxDigest, f.EventIndex)
}

// EventMeta carries the fields every decoded record is annotated with,
// regardless of kind: the event fingerprint, the transaction digest, the
// sender, and the checkpoint it was observed in.
type EventMeta struct {
	EventDigest           string
	EventIndex            int
	Digest                string
	Sender                string
	Checkpoint            int64
	CheckpointTimestampMs int64
	Package               string
}

// OrderUpdateStatus distinguishes the four order life-cycle event kinds
// that share a single table (order_updates).
type OrderUpdateStatus string

const (
	StatusPlaced   OrderUpdateStatus = "placed"
	StatusModified OrderUpdateStatus = "modified"
	StatusCanceled OrderUpdateStatus = "canceled"
	StatusExpired  OrderUpdateStatus = "expired"
)

// OrderUpdate represents Placed, Modified, Canceled, or Expired — the four
// events describing the life-cycle of a resting limit order.
type OrderUpdate struct {
	EventMeta
	Status            OrderUpdateStatus
	PoolID            string
	OrderID           string
	ClientOrderID     int64
	Price             int64
	IsBid             bool
	OriginalQuantity  int64
	Quantity          int64 // the decrement amount for Canceled/Expired/Modified-delta carriers
	FilledQuantity    int64
	OnchainTimestamp  int64
	Trader            string
	BalanceManagerID  string
	// PreviousQuantity is only meaningful for Modified: the pre-modification
	// resting quantity, used to compute the delta (PreviousQuantity - Quantity).
	PreviousQuantity int64
}

// OrderFill represents a single maker/taker match.
type OrderFill struct {
	EventMeta
	PoolID                string
	MakerOrderID          string
	TakerOrderID          string
	MakerClientOrderID    int64
	TakerClientOrderID    int64
	Price                 int64
	TakerFee              int64
	TakerFeeIsDeep        bool
	MakerFee              int64
	MakerFeeIsDeep        bool
	TakerIsBid            bool
	BaseQuantity          int64
	QuoteQuantity         int64
	MakerBalanceManagerID string
	TakerBalanceManagerID string
	OnchainTimestamp      int64
}

// BalanceEvent, FlashLoanEvent, StakeEvent, VoteEvent, ProposalEvent,
// RebateEvent, TradeParamsUpdateEvent and PoolPriceEvent are auxiliary
// events: persisted but never mutate the order book.
type BalanceEvent struct {
	EventMeta
	BalanceManagerID string
	Asset            string
	Amount           int64
	Deposit          bool
}

type FlashLoanEvent struct {
	EventMeta
	PoolID       string
	BorrowQuantity int64
	Asset        string
	Borrow       bool
}

type StakeEvent struct {
	EventMeta
	PoolID           string
	BalanceManagerID string
	Amount           int64
	Stake            bool
}

type VoteEvent struct {
	EventMeta
	PoolID           string
	BalanceManagerID string
	From             string
	To               string
	Stake            int64
}

type ProposalEvent struct {
	EventMeta
	PoolID           string
	BalanceManagerID string
	TakerFee         int64
	MakerFee         int64
	StakeRequired    int64
}

type RebateEvent struct {
	EventMeta
	PoolID           string
	BalanceManagerID string
	ClaimAmount      int64
}

type TradeParamsUpdateEvent struct {
	EventMeta
	PoolID        string
	TakerFeeRate  int64
	MakerFeeRate  int64
	StakeRequired int64
}

type PoolPriceEvent struct {
	EventMeta
	TargetPool    string
	ReferencePool string
	ConversionRate int64
}

// Pool is the immutable metadata describing one trading pair's order book.
type Pool struct {
	PoolID             string
	PoolName           string
	BaseAssetDecimals  uint8
	QuoteAssetDecimals uint8
	TickSize           int64
	LotSize            int64
	MinSize            int64
}

// PriceFactor converts a raw integer price into its decimal-scaled form:
// 10^(9 - base_decimals + quote_decimals).
func (p Pool) PriceFactor() float64 {
	exp := 9 - int(p.BaseAssetDecimals) + int(p.QuoteAssetDecimals)
	return pow10(exp)
}

// SizeFactor converts a raw integer base-asset size into its decimal-scaled
// form: 10^base_decimals.
func (p Pool) SizeFactor() float64 {
	return pow10(int(p.BaseAssetDecimals))
}

// QuoteSizeFactor converts a raw integer quote-asset quantity (a fill's
// OrderFill.QuoteQuantity) into its decimal-scaled form: 10^quote_decimals.
func (p Pool) QuoteSizeFactor() float64 {
	return pow10(int(p.QuoteAssetDecimals))
}

func pow10(exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= 10
	}
	return result
}

// Watermark tracks, per logical pipeline, the highest checkpoint whose
// events have been durably applied.
type Watermark struct {
	Pipeline              string
	CheckpointHiInclusive int64
	ReaderLo              int64
	PrunerHi              int64
	EpochHi               int64
	TxHi                  int64
	TimestampMsHi         int64
}

// NextCheckpoint returns the next checkpoint this pipeline should process.
func (w Watermark) NextCheckpoint() int64 {
	return w.CheckpointHiInclusive + 1
}
