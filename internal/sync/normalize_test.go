package sync

import "testing"

func TestNormalizeMarketplaceAgent_Defaults(t *testing.T) {
	row, ok := normalizeMarketplaceAgent(map[string]any{"username": " Mixed Case "})
	if !ok {
		t.Fatal("item with a username must normalize")
	}
	if row.Username != "mixed case" {
		t.Fatalf("username not trimmed+lowercased: %q", row.Username)
	}
	if row.MarketCap != 0 || row.Holders != 0 || row.FeedbackCount != 0 {
		t.Fatalf("missing numerics must default to 0: %+v", row)
	}
	if row.DisplayName != nil || row.Wallet != nil || row.FirstSeenOnChain != nil {
		t.Fatalf("missing optionals must stay nil: %+v", row)
	}
}

func TestNormalizeMarketplaceAgent_NumericStrings(t *testing.T) {
	row, ok := normalizeMarketplaceAgent(map[string]any{"username": "x", "marketCap": "123.5", "holders": "bogus"})
	if !ok {
		t.Fatal("normalize failed")
	}
	if row.MarketCap != 123.5 {
		t.Fatalf("numeric string should parse: %v", row.MarketCap)
	}
	if row.Holders != 0 {
		t.Fatalf("unparseable numeric should default to 0: %v", row.Holders)
	}
}

func TestNormalizeArenaFighter_RequiresNumericID(t *testing.T) {
	if _, ok := normalizeArenaFighter(map[string]any{"name": "no-id"}); ok {
		t.Fatal("fighter without a numeric id must be skipped")
	}
	row, ok := normalizeArenaFighter(map[string]any{"fighterId": float64(42), "name": "f"})
	if !ok || row.FighterID != 42 {
		t.Fatalf("alt id key not honored: %+v ok=%v", row, ok)
	}
}

func TestNormalizeDiscovered_EpochHandling(t *testing.T) {
	row, ok := normalizeDiscovered(map[string]any{"username": "u", "lastPostAt": float64(0)})
	if !ok {
		t.Fatal("normalize failed")
	}
	if row.LastPostAt != nil {
		t.Fatal("zero epoch must map to NULL, not 1970")
	}
	row2, _ := normalizeDiscovered(map[string]any{"username": "u", "lastPostAt": float64(1700000000000)})
	if row2.LastPostAt == nil {
		t.Fatal("valid epoch millis must map to a timestamp")
	}
}
