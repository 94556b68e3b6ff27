package storage

import (
	"bufio"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"yieldsplit/internal/pool"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "receipts.jsonl")
	journal := NewJsonlJournal(path)

	first := &pool.Receipt{
		Kind:         pool.OpDepositBacking,
		Holder:       "alice",
		AmountIn:     big.NewInt(100),
		AssetIn:      pool.AssetBacking,
		AmountOut:    big.NewInt(95),
		AssetOut:     pool.AssetYieldBearing,
		SharesMinted: big.NewInt(95),
		Fee:          big.NewInt(5),
		RateUsed:     big.NewInt(1),
		Timestamp:    time.Unix(1_700_000_000, 0).UTC(),
	}
	if err := journal.PutReceiptBatch([]*pool.Receipt{first}); err != nil {
		t.Fatalf("put batch: %v", err)
	}

	second := &pool.Receipt{
		Kind:             pool.OpRedeem,
		Holder:           "alice",
		AmountOut:        big.NewInt(95),
		AssetOut:         pool.AssetYieldBearing,
		PrincipalsBurned: big.NewInt(95),
		YieldsBurned:     big.NewInt(95),
		Fee:              big.NewInt(0),
		RateUsed:         big.NewInt(1),
		Timestamp:        time.Unix(1_700_000_100, 0).UTC(),
	}
	if err := journal.PutReceiptBatch([]*pool.Receipt{second}); err != nil {
		t.Fatalf("put batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var lines []pool.Receipt
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r pool.Receipt
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, r)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Kind != pool.OpDepositBacking || lines[1].Kind != pool.OpRedeem {
		t.Fatalf("kinds out of order: %s, %s", lines[0].Kind, lines[1].Kind)
	}
	if lines[0].SharesMinted.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("shares mismatch: %s", lines[0].SharesMinted)
	}
	if lines[1].PrincipalsBurned.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("burn mismatch: %s", lines[1].PrincipalsBurned)
	}
}

func TestJsonlJournalEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	journal := NewJsonlJournal(path)

	if err := journal.PutReceiptBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty batch must not create the file")
	}
}
