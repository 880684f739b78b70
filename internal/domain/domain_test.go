package domain

import "testing"

func TestPoolPriceFactor(t *testing.T) {
	t.Parallel()
	p := Pool{BaseAssetDecimals: 6, QuoteAssetDecimals: 9}
	if got, want := p.PriceFactor(), 1e12; got != want {
		t.Errorf("PriceFactor() = %v, want %v", got, want)
	}
	if got, want := p.SizeFactor(), 1e6; got != want {
		t.Errorf("SizeFactor() = %v, want %v", got, want)
	}
}

func TestPoolPriceFactorSUIUSDC(t *testing.T) {
	t.Parallel()
	// SUI (9 decimals) / USDC (6 decimals): price_factor = 10^(9-9+6) = 10^6
	p := Pool{BaseAssetDecimals: 9, QuoteAssetDecimals: 6}
	if got, want := p.PriceFactor(), 1e6; got != want {
		t.Errorf("PriceFactor() = %v, want %v", got, want)
	}
	if got, want := p.SizeFactor(), 1e9; got != want {
		t.Errorf("SizeFactor() = %v, want %v", got, want)
	}
}

func TestWatermarkNextCheckpoint(t *testing.T) {
	t.Parallel()
	w := Watermark{CheckpointHiInclusive: 99}
	if got := w.NextCheckpoint(); got != 100 {
		t.Errorf("NextCheckpoint() = %d, want 100", got)
	}
}

func TestStructTagMatches(t *testing.T) {
	t.Parallel()
	tag := StructTag{Address: "0x2", Module: "order", Name: "OrderPlaced"}
	e := RawEvent{TypeAddress: "0x2", TypeModule: "order", TypeName: "OrderPlaced"}
	if !tag.Matches(e) {
		t.Fatal("expected tag to match event")
	}
	e.TypeName = "OrderCanceled"
	if tag.Matches(e) {
		t.Fatal("expected tag not to match event with different type name")
	}
}

func TestFingerprintString(t *testing.T) {
	t.Parallel()
	f := Fingerprint{TxDigest: "abc", EventIndex: 3}
	if got, want := f.String(), "abc3"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
