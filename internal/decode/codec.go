package decode

import (
	"encoding/binary"
	"fmt"

	"polymarket-mm/internal/domain"
)

// Codec decodes one event kind's BCS-encoded payload into its typed Go
// record. No example in the retrieval pack implements Sui's Binary Canonical
// Serialization, so this reader is a documented standard-library exception
// (encoding/binary only) — see DESIGN.md. It is kept behind an interface so
// a future generated/vendored BCS library can replace it without touching
// the Decoder.
type Codec interface {
	DecodeOrderUpdate(kind domain.EventKind, payload []byte) (domain.OrderUpdate, error)
	DecodeOrderFill(payload []byte) (domain.OrderFill, error)
	DecodeBalance(payload []byte) (domain.BalanceEvent, error)
	DecodeFlashLoan(payload []byte) (domain.FlashLoanEvent, error)
	DecodeStake(payload []byte) (domain.StakeEvent, error)
	DecodeVote(payload []byte) (domain.VoteEvent, error)
	DecodeProposal(payload []byte) (domain.ProposalEvent, error)
	DecodeRebate(payload []byte) (domain.RebateEvent, error)
	DecodeTradeParamsUpdate(payload []byte) (domain.TradeParamsUpdateEvent, error)
	DecodePoolPrice(payload []byte) (domain.PoolPriceEvent, error)
}

// bcsReader walks a BCS byte stream left to right. BCS encodes fixed-width
// integers little-endian and variable-length byte sequences as a ULEB128
// length prefix followed by the raw bytes — the same rules the original
// Rust indexer's generated event structs rely on for their Move::Event
// payloads.
type bcsReader struct {
	buf []byte
	pos int
}

func newBCSReader(buf []byte) *bcsReader {
	return &bcsReader{buf: buf}
}

func (r *bcsReader) u8() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("bcs: u8 past end of buffer")
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *bcsReader) bool() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *bcsReader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("bcs: u64 past end of buffer")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *bcsReader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *bcsReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("bcs: u32 past end of buffer")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *bcsReader) uleb128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.u8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("bcs: uleb128 overflow")
		}
	}
	return result, nil
}

func (r *bcsReader) bytes() ([]byte, error) {
	n, err := r.uleb128()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("bcs: byte vector past end of buffer")
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

func (r *bcsReader) addressString() (string, error) {
	// Sui addresses are fixed 32-byte values, hex-encoded with a 0x prefix.
	if r.pos+32 > len(r.buf) {
		return "", fmt.Errorf("bcs: address past end of buffer")
	}
	v := r.buf[r.pos : r.pos+32]
	r.pos += 32
	return fmt.Sprintf("0x%x", v), nil
}

func (r *bcsReader) idString() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BCSCodec is the default Codec, decoding DeepBook's known event struct
// layouts directly from their BCS wire form.
type BCSCodec struct{}

func NewBCSCodec() BCSCodec { return BCSCodec{} }

func (BCSCodec) DecodeOrderUpdate(kind domain.EventKind, payload []byte) (domain.OrderUpdate, error) {
	r := newBCSReader(payload)
	var u domain.OrderUpdate

	switch kind {
	case domain.KindOrderPlaced:
		u.Status = domain.StatusPlaced
	case domain.KindOrderModified:
		u.Status = domain.StatusModified
	case domain.KindOrderCanceled:
		u.Status = domain.StatusCanceled
	case domain.KindOrderExpired:
		u.Status = domain.StatusExpired
	default:
		return u, fmt.Errorf("bcs: %q is not an order-update kind", kind)
	}

	poolID, err := r.addressString()
	if err != nil {
		return u, err
	}
	orderID, err := r.idString()
	if err != nil {
		return u, err
	}
	clientOrderID, err := r.u64()
	if err != nil {
		return u, err
	}
	trader, err := r.addressString()
	if err != nil {
		return u, err
	}
	balanceManagerID, err := r.addressString()
	if err != nil {
		return u, err
	}
	price, err := r.u64()
	if err != nil {
		return u, err
	}
	isBid, err := r.bool()
	if err != nil {
		return u, err
	}
	originalQuantity, err := r.u64()
	if err != nil {
		return u, err
	}
	quantity, err := r.u64()
	if err != nil {
		return u, err
	}
	filledQuantity, err := r.u64()
	if err != nil {
		return u, err
	}
	onchainTimestamp, err := r.u64()
	if err != nil {
		return u, err
	}

	u.PoolID = poolID
	u.OrderID = orderID
	u.ClientOrderID = int64(clientOrderID)
	u.Trader = trader
	u.BalanceManagerID = balanceManagerID
	u.Price = int64(price)
	u.IsBid = isBid
	u.OriginalQuantity = int64(originalQuantity)
	u.Quantity = int64(quantity)
	u.FilledQuantity = int64(filledQuantity)
	u.OnchainTimestamp = int64(onchainTimestamp)

	if kind == domain.KindOrderModified {
		previousQuantity, err := r.u64()
		if err != nil {
			return u, err
		}
		u.PreviousQuantity = int64(previousQuantity)
	}

	return u, nil
}

func (BCSCodec) DecodeOrderFill(payload []byte) (domain.OrderFill, error) {
	r := newBCSReader(payload)
	var f domain.OrderFill

	poolID, err := r.addressString()
	if err != nil {
		return f, err
	}
	makerOrderID, err := r.idString()
	if err != nil {
		return f, err
	}
	takerOrderID, err := r.idString()
	if err != nil {
		return f, err
	}
	makerClientOrderID, err := r.u64()
	if err != nil {
		return f, err
	}
	takerClientOrderID, err := r.u64()
	if err != nil {
		return f, err
	}
	price, err := r.u64()
	if err != nil {
		return f, err
	}
	takerFee, err := r.u64()
	if err != nil {
		return f, err
	}
	takerFeeIsDeep, err := r.bool()
	if err != nil {
		return f, err
	}
	makerFee, err := r.u64()
	if err != nil {
		return f, err
	}
	makerFeeIsDeep, err := r.bool()
	if err != nil {
		return f, err
	}
	takerIsBid, err := r.bool()
	if err != nil {
		return f, err
	}
	baseQuantity, err := r.u64()
	if err != nil {
		return f, err
	}
	quoteQuantity, err := r.u64()
	if err != nil {
		return f, err
	}
	makerBalanceManagerID, err := r.addressString()
	if err != nil {
		return f, err
	}
	takerBalanceManagerID, err := r.addressString()
	if err != nil {
		return f, err
	}
	onchainTimestamp, err := r.u64()
	if err != nil {
		return f, err
	}

	f.PoolID = poolID
	f.MakerOrderID = makerOrderID
	f.TakerOrderID = takerOrderID
	f.MakerClientOrderID = int64(makerClientOrderID)
	f.TakerClientOrderID = int64(takerClientOrderID)
	f.Price = int64(price)
	f.TakerFee = int64(takerFee)
	f.TakerFeeIsDeep = takerFeeIsDeep
	f.MakerFee = int64(makerFee)
	f.MakerFeeIsDeep = makerFeeIsDeep
	f.TakerIsBid = takerIsBid
	f.BaseQuantity = int64(baseQuantity)
	f.QuoteQuantity = int64(quoteQuantity)
	f.MakerBalanceManagerID = makerBalanceManagerID
	f.TakerBalanceManagerID = takerBalanceManagerID
	f.OnchainTimestamp = int64(onchainTimestamp)

	return f, nil
}

func (BCSCodec) DecodeBalance(payload []byte) (domain.BalanceEvent, error) {
	r := newBCSReader(payload)
	var b domain.BalanceEvent

	balanceManagerID, err := r.addressString()
	if err != nil {
		return b, err
	}
	asset, err := r.idString()
	if err != nil {
		return b, err
	}
	amount, err := r.u64()
	if err != nil {
		return b, err
	}
	deposit, err := r.bool()
	if err != nil {
		return b, err
	}

	b.BalanceManagerID = balanceManagerID
	b.Asset = asset
	b.Amount = int64(amount)
	b.Deposit = deposit
	return b, nil
}

func (BCSCodec) DecodeFlashLoan(payload []byte) (domain.FlashLoanEvent, error) {
	r := newBCSReader(payload)
	var fl domain.FlashLoanEvent

	poolID, err := r.addressString()
	if err != nil {
		return fl, err
	}
	borrowQuantity, err := r.u64()
	if err != nil {
		return fl, err
	}
	asset, err := r.idString()
	if err != nil {
		return fl, err
	}
	borrow, err := r.bool()
	if err != nil {
		return fl, err
	}

	fl.PoolID = poolID
	fl.BorrowQuantity = int64(borrowQuantity)
	fl.Asset = asset
	fl.Borrow = borrow
	return fl, nil
}

func (BCSCodec) DecodeStake(payload []byte) (domain.StakeEvent, error) {
	r := newBCSReader(payload)
	var s domain.StakeEvent

	poolID, err := r.addressString()
	if err != nil {
		return s, err
	}
	balanceManagerID, err := r.addressString()
	if err != nil {
		return s, err
	}
	amount, err := r.u64()
	if err != nil {
		return s, err
	}
	stake, err := r.bool()
	if err != nil {
		return s, err
	}

	s.PoolID = poolID
	s.BalanceManagerID = balanceManagerID
	s.Amount = int64(amount)
	s.Stake = stake
	return s, nil
}

func (BCSCodec) DecodeVote(payload []byte) (domain.VoteEvent, error) {
	r := newBCSReader(payload)
	var v domain.VoteEvent

	poolID, err := r.addressString()
	if err != nil {
		return v, err
	}
	balanceManagerID, err := r.addressString()
	if err != nil {
		return v, err
	}
	from, err := r.addressString()
	if err != nil {
		return v, err
	}
	to, err := r.addressString()
	if err != nil {
		return v, err
	}
	stake, err := r.u64()
	if err != nil {
		return v, err
	}

	v.PoolID = poolID
	v.BalanceManagerID = balanceManagerID
	v.From = from
	v.To = to
	v.Stake = int64(stake)
	return v, nil
}

func (BCSCodec) DecodeProposal(payload []byte) (domain.ProposalEvent, error) {
	r := newBCSReader(payload)
	var p domain.ProposalEvent

	poolID, err := r.addressString()
	if err != nil {
		return p, err
	}
	balanceManagerID, err := r.addressString()
	if err != nil {
		return p, err
	}
	takerFee, err := r.u64()
	if err != nil {
		return p, err
	}
	makerFee, err := r.u64()
	if err != nil {
		return p, err
	}
	stakeRequired, err := r.u64()
	if err != nil {
		return p, err
	}

	p.PoolID = poolID
	p.BalanceManagerID = balanceManagerID
	p.TakerFee = int64(takerFee)
	p.MakerFee = int64(makerFee)
	p.StakeRequired = int64(stakeRequired)
	return p, nil
}

func (BCSCodec) DecodeRebate(payload []byte) (domain.RebateEvent, error) {
	r := newBCSReader(payload)
	var rb domain.RebateEvent

	poolID, err := r.addressString()
	if err != nil {
		return rb, err
	}
	balanceManagerID, err := r.addressString()
	if err != nil {
		return rb, err
	}
	claimAmount, err := r.u64()
	if err != nil {
		return rb, err
	}

	rb.PoolID = poolID
	rb.BalanceManagerID = balanceManagerID
	rb.ClaimAmount = int64(claimAmount)
	return rb, nil
}

func (BCSCodec) DecodeTradeParamsUpdate(payload []byte) (domain.TradeParamsUpdateEvent, error) {
	r := newBCSReader(payload)
	var t domain.TradeParamsUpdateEvent

	poolID, err := r.addressString()
	if err != nil {
		return t, err
	}
	takerFeeRate, err := r.u64()
	if err != nil {
		return t, err
	}
	makerFeeRate, err := r.u64()
	if err != nil {
		return t, err
	}
	stakeRequired, err := r.u64()
	if err != nil {
		return t, err
	}

	t.PoolID = poolID
	t.TakerFeeRate = int64(takerFeeRate)
	t.MakerFeeRate = int64(makerFeeRate)
	t.StakeRequired = int64(stakeRequired)
	return t, nil
}

func (BCSCodec) DecodePoolPrice(payload []byte) (domain.PoolPriceEvent, error) {
	r := newBCSReader(payload)
	var pp domain.PoolPriceEvent

	targetPool, err := r.addressString()
	if err != nil {
		return pp, err
	}
	referencePool, err := r.addressString()
	if err != nil {
		return pp, err
	}
	conversionRate, err := r.u64()
	if err != nil {
		return pp, err
	}

	pp.TargetPool = targetPool
	pp.ReferencePool = referencePool
	pp.ConversionRate = int64(conversionRate)
	return pp, nil
}

var _ Codec = BCSCodec{}
