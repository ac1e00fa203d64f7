package blocktime

import (
	"context"
	"fmt"
	"testing"
)

// fakeChain serves a monotonic timestamp per block: genesisTS + number*step.
type fakeChain struct {
	latest    uint64
	genesisTS uint64
	step      uint64
	calls     int
}

func (f *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if number == 0 || number > f.latest {
		return 0, fmt.Errorf("block %d out of range", number)
	}
	f.calls++
	return f.genesisTS + number*f.step, nil
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeChain) tsOf(number uint64) int64 {
	return int64(f.genesisTS + number*f.step)
}

func TestResolveExactAndBetweenBlocks(t *testing.T) {
	chain := &fakeChain{latest: 10_000, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	tests := []struct {
		name   string
		target int64
		want   uint64
	}{
		{"exact block timestamp", chain.tsOf(5000), 5000},
		{"between two blocks", chain.tsOf(5000) + 5, 5000},
		{"just before next block", chain.tsOf(5001) - 1, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolved block %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveMonotonic(t *testing.T) {
	chain := &fakeChain{latest: 5_000, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	var prev uint64
	for _, target := range []int64{
		chain.tsOf(100) + 3,
		chain.tsOf(250),
		chain.tsOf(251) + 11,
		chain.tsOf(4_000),
	} {
		got, err := resolver.Resolve(context.Background(), target)
		if err != nil {
			t.Fatalf("resolve %d: %v", target, err)
		}
		if got < prev {
			t.Fatalf("resolver not monotonic: %d after %d", got, prev)
		}
		prev = got
	}
}

func TestResolveBeforeGenesisClampsToOne(t *testing.T) {
	chain := &fakeChain{latest: 100, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	got, err := resolver.Resolve(context.Background(), 1_000)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 1 {
		t.Fatalf("pre-genesis target resolved to %d, want 1", got)
	}
}

func TestResolveInvalidTarget(t *testing.T) {
	chain := &fakeChain{latest: 100, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	if _, err := resolver.Resolve(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero target")
	}
	if _, err := resolver.Resolve(context.Background(), -5); err == nil {
		t.Fatalf("expected error for negative target")
	}
}

func TestResolveCachesPerBucket(t *testing.T) {
	chain := &fakeChain{latest: 10_000, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	target := chain.tsOf(3000)
	first, err := resolver.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	calls := chain.calls
	// Same bucket, slightly different timestamp: must be served from cache.
	second, err := resolver.Resolve(context.Background(), target+1)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second != first {
		t.Fatalf("cache returned %d, want %d", second, first)
	}
	if chain.calls != calls {
		t.Fatalf("cached resolve hit the backend %d more times", chain.calls-calls)
	}
}

func TestResolveHintSpeedsUpAscendingSequence(t *testing.T) {
	chain := &fakeChain{latest: 100_000, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	if _, err := resolver.Resolve(context.Background(), chain.tsOf(50_000)); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}

	calls := chain.calls
	got, err := resolver.Resolve(context.Background(), chain.tsOf(50_010))
	if err != nil {
		t.Fatalf("hinted resolve: %v", err)
	}
	if got != 50_010 {
		t.Fatalf("resolved block %d, want 50010", got)
	}
	// Ten blocks ahead of the hint: a forward scan, not a full binary
	// search over 100k blocks.
	if used := chain.calls - calls; used > 15 {
		t.Fatalf("hinted resolve used %d lookups", used)
	}
}

func TestResolveChainTipNotCached(t *testing.T) {
	chain := &fakeChain{latest: 500, genesisTS: 1_600_000_000, step: 12}
	resolver := NewResolver(chain, 60, 64, nil)

	target := chain.tsOf(500) + 3600
	got, err := resolver.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 500 {
		t.Fatalf("tip target resolved to %d, want 500", got)
	}

	// The chain advances; the same bucket must now see the new tip.
	chain.latest = 600
	resolver.mu.Lock()
	resolver.haveLatest = false
	resolver.mu.Unlock()

	got, err = resolver.Resolve(context.Background(), target+1)
	if err != nil {
		t.Fatalf("resolve after advance: %v", err)
	}
	if got <= 500 {
		t.Fatalf("tip answer was cached: got %d", got)
	}
}
