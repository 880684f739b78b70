// Package decode implements the Event Decoder (C1): it filters checkpoint
// transactions by contract identity and decodes typed event payloads from
// their binary on-chain encoding.
package decode

import (
	"fmt"
	"log/slog"

	"polymarket-mm/internal/domain"
)

// Env selects the package-id set used for transaction relevance filtering
// and event type matching — the same DeepBook contracts are deployed at
// different addresses on mainnet and testnet.
type Env string

const (
	EnvMainnet Env = "mainnet"
	EnvTestnet Env = "testnet"
)

// PackageIDs holds the known exchange package/object identities for one
// environment, used by isRelevantTx.
type PackageIDs struct {
	DeepbookPackage string
	DeepTokenPackage string
}

var knownPackages = map[Env]PackageIDs{
	EnvMainnet: {
		DeepbookPackage:  "0x2c8d603bc51326b8c13cef9dd07031a408a48dddb541963357661df5d3204809",
		DeepTokenPackage: "0xdeeb7a4662eec9f2f3def03fb937a663dddaa2e215b8078a284d026b7946c270",
	},
	EnvTestnet: {
		DeepbookPackage:  "0xdee9_testnet_deepbook_package_placeholder",
		DeepTokenPackage: "0xdee9_testnet_deep_token_package_placeholder",
	},
}

// eventTypeTable is fixed at decoder construction time: one StructTag per
// recognized event kind, resolved from the environment's package set. This
// mirrors the original indexer's per-environment StructTag resolution (one
// table built once at startup, not re-resolved per checkpoint).
func eventTypeTable(env Env) map[domain.EventKind]domain.StructTag {
	pkgs := knownPackages[env]
	deepbook := pkgs.DeepbookPackage

	return map[domain.EventKind]domain.StructTag{
		domain.KindOrderPlaced:       {Address: deepbook, Module: "order_info", Name: "OrderPlaced"},
		domain.KindOrderModified:     {Address: deepbook, Module: "order", Name: "OrderModified"},
		domain.KindOrderCanceled:     {Address: deepbook, Module: "order", Name: "OrderCanceled"},
		domain.KindOrderExpired:      {Address: deepbook, Module: "order_info", Name: "OrderExpired"},
		domain.KindOrderFilled:       {Address: deepbook, Module: "order_info", Name: "OrderFilled"},
		domain.KindBalance:           {Address: deepbook, Module: "balance_manager", Name: "BalanceEvent"},
		domain.KindFlashLoan:         {Address: deepbook, Module: "vault", Name: "FlashLoanBorrowed"},
		domain.KindStake:             {Address: deepbook, Module: "state", Name: "StakeEvent"},
		domain.KindVote:              {Address: deepbook, Module: "state", Name: "VoteEvent"},
		domain.KindProposal:          {Address: deepbook, Module: "state", Name: "ProposalEvent"},
		domain.KindRebate:            {Address: deepbook, Module: "state", Name: "RebateEvent"},
		domain.KindTradeParamsUpdate: {Address: deepbook, Module: "governance", Name: "TradeParamsUpdateEvent"},
		domain.KindPoolPrice:         {Address: deepbook, Module: "deep_price", Name: "PriceAdded"},
	}
}

// DecodedBatch groups the typed records decoded from a single checkpoint,
// one slice per event kind. Only OrderUpdates and OrderFills feed the
// Order-Book Engine; the rest are persisted but inert.
type DecodedBatch struct {
	OrderUpdates  []domain.OrderUpdate
	OrderFills    []domain.OrderFill
	Balances      []domain.BalanceEvent
	FlashLoans    []domain.FlashLoanEvent
	Stakes        []domain.StakeEvent
	Votes         []domain.VoteEvent
	Proposals     []domain.ProposalEvent
	Rebates       []domain.RebateEvent
	TradeParams   []domain.TradeParamsUpdateEvent
	PoolPrices    []domain.PoolPriceEvent
}

// Decoder filters and decodes one checkpoint's transactions.
type Decoder struct {
	env        Env
	eventTypes map[domain.EventKind]domain.StructTag
	codec      Codec
	logger     *slog.Logger
}

// New creates a decoder for the given environment. The StructTag table is
// resolved once here, not per checkpoint.
func New(env Env, codec Codec, logger *slog.Logger) *Decoder {
	return &Decoder{
		env:        env,
		eventTypes: eventTypeTable(env),
		codec:      codec,
		logger:     logger.With("component", "decode"),
	}
}

// Decode walks every relevant transaction in the checkpoint, matches each
// event's type identity against the fixed StructTag table, and decodes
// matching payloads. A decode failure for a single event is non-fatal: it
// is skipped with a warning and the rest of the transaction continues. A
// type-identity miss (an event that belongs to no known kind) is not an
// error at all — it's simply ignored.
func (d *Decoder) Decode(cp *domain.Checkpoint) (DecodedBatch, error) {
	var batch DecodedBatch

	for _, tx := range cp.Transactions {
		if !d.isRelevantTx(tx) {
			continue
		}

		for _, ev := range tx.Events {
			kind, ok := d.matchKind(ev)
			if !ok {
				continue // type-identity miss, not an error
			}

			meta := domain.EventMeta{
				EventDigest:           domain.Fingerprint{TxDigest: tx.Digest, EventIndex: ev.Index}.String(),
				EventIndex:            ev.Index,
				Digest:                tx.Digest,
				Sender:                tx.Sender,
				Checkpoint:            int64(cp.Sequence),
				CheckpointTimestampMs: cp.TimestampMs,
				Package:               tx.MoveCallPackage,
			}

			if err := d.decodeInto(&batch, kind, meta, ev); err != nil {
				d.logger.Warn("decode failed, skipping event",
					"kind", kind, "tx", tx.Digest, "event_index", ev.Index, "error", err)
				continue
			}
		}
	}

	return batch, nil
}

// isRelevantTx reports whether a transaction touches the known exchange
// package: it references an input object whose on-chain type is owned by a
// known package, it carries an event whose type address matches a known
// package, or it issues a move-call targeting a known package.
func (d *Decoder) isRelevantTx(tx domain.Transaction) bool {
	pkgs := knownPackages[d.env]

	if tx.MoveCallPackage == pkgs.DeepbookPackage || tx.MoveCallPackage == pkgs.DeepTokenPackage {
		return true
	}
	for _, t := range tx.InputObjectTypes {
		if ownedByPackage(t, pkgs) {
			return true
		}
	}
	for _, ev := range tx.Events {
		if ev.TypeAddress == pkgs.DeepbookPackage || ev.TypeAddress == pkgs.DeepTokenPackage {
			return true
		}
	}
	return false
}

func ownedByPackage(moveType string, pkgs PackageIDs) bool {
	// Move type addresses are a `package::module::Name` prefix of the
	// fully-qualified type string.
	return hasPrefix(moveType, pkgs.DeepbookPackage) || hasPrefix(moveType, pkgs.DeepTokenPackage)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (d *Decoder) matchKind(ev domain.RawEvent) (domain.EventKind, bool) {
	for kind, tag := range d.eventTypes {
		if tag.Matches(ev) {
			return kind, true
		}
	}
	return "", false
}

func (d *Decoder) decodeInto(batch *DecodedBatch, kind domain.EventKind, meta domain.EventMeta, ev domain.RawEvent) error {
	switch kind {
	case domain.KindOrderPlaced, domain.KindOrderModified, domain.KindOrderCanceled, domain.KindOrderExpired:
		u, err := d.codec.DecodeOrderUpdate(kind, ev.Contents)
		if err != nil {
			return err
		}
		u.EventMeta = meta
		batch.OrderUpdates = append(batch.OrderUpdates, u)
	case domain.KindOrderFilled:
		f, err := d.codec.DecodeOrderFill(ev.Contents)
		if err != nil {
			return err
		}
		f.EventMeta = meta
		batch.OrderFills = append(batch.OrderFills, f)
	case domain.KindBalance:
		b, err := d.codec.DecodeBalance(ev.Contents)
		if err != nil {
			return err
		}
		b.EventMeta = meta
		batch.Balances = append(batch.Balances, b)
	case domain.KindFlashLoan:
		fl, err := d.codec.DecodeFlashLoan(ev.Contents)
		if err != nil {
			return err
		}
		fl.EventMeta = meta
		batch.FlashLoans = append(batch.FlashLoans, fl)
	case domain.KindStake:
		s, err := d.codec.DecodeStake(ev.Contents)
		if err != nil {
			return err
		}
		s.EventMeta = meta
		batch.Stakes = append(batch.Stakes, s)
	case domain.KindVote:
		v, err := d.codec.DecodeVote(ev.Contents)
		if err != nil {
			return err
		}
		v.EventMeta = meta
		batch.Votes = append(batch.Votes, v)
	case domain.KindProposal:
		p, err := d.codec.DecodeProposal(ev.Contents)
		if err != nil {
			return err
		}
		p.EventMeta = meta
		batch.Proposals = append(batch.Proposals, p)
	case domain.KindRebate:
		r, err := d.codec.DecodeRebate(ev.Contents)
		if err != nil {
			return err
		}
		r.EventMeta = meta
		batch.Rebates = append(batch.Rebates, r)
	case domain.KindTradeParamsUpdate:
		t, err := d.codec.DecodeTradeParamsUpdate(ev.Contents)
		if err != nil {
			return err
		}
		t.EventMeta = meta
		batch.TradeParams = append(batch.TradeParams, t)
	case domain.KindPoolPrice:
		pp, err := d.codec.DecodePoolPrice(ev.Contents)
		if err != nil {
			return err
		}
		pp.EventMeta = meta
		batch.PoolPrices = append(batch.PoolPrices, pp)
	default:
		return fmt.Errorf("unhandled event kind %q", kind)
	}
	return nil
}
