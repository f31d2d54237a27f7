package reconcile

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"defiFetch/internal/model"
)

const txA = "0xaaaa"

func words(values ...int64) []byte {
	out := make([]byte, 0, len(values)*wordSize)
	for _, v := range values {
		out = append(out, common.BigToHash(big.NewInt(v)).Bytes()...)
	}
	return out
}

func event(tx string, block uint64, idx uint32, kind model.EventKind, data []byte) model.TypedEvent {
	return model.TypedEvent{
		BlockNumber: block,
		TxHash:      tx,
		LogIndex:    idx,
		Kind:        kind,
		Raw:         &model.RawLogRef{Data: hexutil.Encode(data)},
	}
}

func proxyIndex(row Row) int64 {
	if row.Proxy == nil {
		return -1
	}
	return int64(row.Proxy.LogIndex)
}

func TestReconcileMintDuplicates(t *testing.T) {
	pool := []model.TypedEvent{
		event(txA, 10, 9, model.KindMint, words(1, 500, 7, 8)),
		event(txA, 10, 5, model.KindMint, words(1, 100, 2, 3)),
	}
	proxy := []model.TypedEvent{
		event(txA, 10, 7, model.KindIncreaseLiquidity, words(500, 7, 8)),
		event(txA, 10, 3, model.KindIncreaseLiquidity, words(100, 2, 3)),
	}

	rows, stats, err := New(Options{}).Reconcile(pool, proxy)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Pool.LogIndex != 5 || proxyIndex(rows[0]) != 3 {
		t.Fatalf("row 0 = pool %d proxy %d", rows[0].Pool.LogIndex, proxyIndex(rows[0]))
	}
	if rows[1].Pool.LogIndex != 9 || proxyIndex(rows[1]) != 7 {
		t.Fatalf("row 1 = pool %d proxy %d", rows[1].Pool.LogIndex, proxyIndex(rows[1]))
	}
	if stats.Matched != 2 || stats.Gaps != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestReconcileDeterministicGreedyAssignment(t *testing.T) {
	payload := words(1, 100, 2, 3)
	pool := []model.TypedEvent{
		event(txA, 10, 8, model.KindMint, payload),
		event(txA, 10, 4, model.KindMint, payload),
		event(txA, 10, 6, model.KindMint, payload),
	}
	proxy := []model.TypedEvent{
		event(txA, 10, 7, model.KindIncreaseLiquidity, payload[wordSize:]),
		event(txA, 10, 5, model.KindIncreaseLiquidity, payload[wordSize:]),
		event(txA, 10, 9, model.KindIncreaseLiquidity, payload[wordSize:]),
	}

	var first []int64
	for run := 0; run < 5; run++ {
		rows, stats, err := New(Options{}).Reconcile(pool, proxy)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		got := make([]int64, len(rows))
		for i, row := range rows {
			got[i] = proxyIndex(row)
		}
		if run == 0 {
			first = got
			if stats.Ambiguous != 3 {
				t.Fatalf("expected 3 ambiguous rows, got %d", stats.Ambiguous)
			}
			continue
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("non-deterministic assignment: %v != %v", got, first)
		}
	}
	if want := []int64{5, 7, 9}; !reflect.DeepEqual(first, want) {
		t.Fatalf("assignment = %v, want %v", first, want)
	}
}

func TestReconcileGapAndSwap(t *testing.T) {
	pool := []model.TypedEvent{
		event(txA, 11, 2, model.KindSwap, nil),
		event("0xbbbb", 10, 1, model.KindBurn, words(5, 6, 7)),
	}
	rows, stats, err := New(Options{}).Reconcile(pool, nil)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(rows) != 2 || rows[0].Pool.Kind != model.KindBurn {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if !rows[0].IsGap() || rows[1].IsGap() {
		t.Fatalf("expected burn to be a gap and swap not")
	}
	if stats.Gaps != 1 {
		t.Fatalf("expected 1 gap, got %d", stats.Gaps)
	}
}

func TestReconcileRejectsAllCandidates(t *testing.T) {
	pool := []model.TypedEvent{
		event(txA, 10, 1, model.KindBurn, words(5, 100, 100)),
	}
	proxy := []model.TypedEvent{
		event(txA, 10, 2, model.KindDecreaseLiquidity, words(6, 100, 100)),
		event(txA, 10, 3, model.KindDecreaseLiquidity, words(7, 100, 100)),
	}
	rows, _, err := New(Options{}).Reconcile(pool, proxy)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsGap() {
		t.Fatalf("expected a single gap row, got %+v", rows)
	}
}

func TestReconcileOrdering(t *testing.T) {
	pool := []model.TypedEvent{
		event("0x03", 12, 0, model.KindSwap, nil),
		event("0x01", 10, 4, model.KindSwap, nil),
		event("0x02", 10, 1, model.KindSwap, nil),
	}
	rows, _, err := New(Options{}).Reconcile(pool, nil)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		a, b := rows[i-1].Pool, rows[i].Pool
		if a.BlockNumber > b.BlockNumber || (a.BlockNumber == b.BlockNumber && a.LogIndex > b.LogIndex) {
			t.Fatalf("rows out of order at %d", i)
		}
	}
}

func TestReconcileWrongPayloadLength(t *testing.T) {
	pool := []model.TypedEvent{
		event(txA, 10, 1, model.KindMint, words(1, 2)),
	}
	proxy := []model.TypedEvent{
		event(txA, 10, 2, model.KindIncreaseLiquidity, words(2, 3, 4)),
		event(txA, 10, 3, model.KindIncreaseLiquidity, words(2, 3, 4)),
	}
	_, _, err := New(Options{}).Reconcile(pool, proxy)
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestReconcileUnexpectedKind(t *testing.T) {
	_, _, err := New(Options{}).Reconcile(nil, []model.TypedEvent{event(txA, 1, 1, model.KindSwap, nil)})
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestReconcileSoleCollectTolerance(t *testing.T) {
	pool := []model.TypedEvent{
		event(txA, 10, 1, model.KindCollect, words(9, 1000, 2000)),
	}
	proxy := []model.TypedEvent{
		event(txA, 10, 2, model.KindProxyCollect, words(9, 1000, 1960)),
		event(txA, 10, 3, model.KindProxyCollect, words(9, 5000, 5000)),
	}
	rows, _, err := New(Options{}).Reconcile(pool, proxy)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if proxyIndex(rows[0]) != 2 {
		t.Fatalf("expected sole collect to match within wide tolerance, got %d", proxyIndex(rows[0]))
	}
}

func TestPayloadsMatchTolerance(t *testing.T) {
	base := words(42, 1000, 1000)
	near := words(42, 1000, 1002)
	far := words(42, 1000, 1004)

	if ok, err := PayloadsMatch(model.KindBurn, base, near, DefaultTolerance); err != nil || !ok {
		t.Fatalf("difference of 2 should match: %v %v", ok, err)
	}
	if ok, err := PayloadsMatch(model.KindBurn, base, far, DefaultTolerance); err != nil || ok {
		t.Fatalf("difference of 4 should not match: %v %v", ok, err)
	}
	if ok, _ := PayloadsMatch(model.KindBurn, base, words(43, 1000, 1000), DefaultTolerance); ok {
		t.Fatalf("first word must match exactly")
	}
	if ok, _ := PayloadsMatch(model.KindMint, words(1, 2, 3, 4), words(2, 3, 5), DefaultTolerance); ok {
		t.Fatalf("mint compares exactly")
	}
	if _, err := PayloadsMatch(model.KindSwap, base, base, DefaultTolerance); err == nil {
		t.Fatalf("expected error for swap")
	}
}
