package model

import (
	"encoding/json"
	"testing"
)

func TestProxyCounterpart(t *testing.T) {
	cases := map[EventKind]EventKind{
		KindMint:    KindIncreaseLiquidity,
		KindBurn:    KindDecreaseLiquidity,
		KindCollect: KindProxyCollect,
		KindSwap:    "",
	}
	for kind, want := range cases {
		if got := kind.ProxyCounterpart(); got != want {
			t.Fatalf("%s counterpart = %q, want %q", kind, got, want)
		}
	}
}

func TestProxyEventAmountsAreStrings(t *testing.T) {
	payload := DecreaseLiquidityEventData{
		TokenID:   "12345",
		Liquidity: "340282366920938463463374607431768211455",
		Amount0:   "1",
		Amount1:   "0",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"token_id", "liquidity", "amount0", "amount1"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
}
