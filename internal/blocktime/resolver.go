package blocktime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Backend is the chain surface block resolution needs. Block timestamps are
// non-decreasing in block number, which is what makes the binary search and
// the boundary checks below correct.
type Backend interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

const (
	// DefaultBucketSeconds is the cache key width: timestamps inside one
	// bucket resolve to the same block.
	DefaultBucketSeconds = 60
	// DefaultProbeLimit caps the forward linear scan from the hint block
	// before falling back to binary search.
	DefaultProbeLimit = 64
)

// Resolver maps a unix timestamp to the largest block number whose
// timestamp is at or before it. Results are memoized per time bucket;
// finalized history is immutable, so entries are permanent and only ever
// confirmed answers are stored. Safe for concurrent use.
type Resolver struct {
	backend    Backend
	logger     *zap.Logger
	bucket     int64
	probeLimit int

	mu         sync.Mutex
	cache      map[int64]uint64
	hint       uint64
	latestNum  uint64
	latestTS   uint64
	haveLatest bool
}

func NewResolver(backend Backend, bucket int64, probeLimit int, logger *zap.Logger) *Resolver {
	if bucket <= 0 {
		bucket = DefaultBucketSeconds
	}
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		backend:    backend,
		logger:     logger,
		bucket:     bucket,
		probeLimit: probeLimit,
		cache:      make(map[int64]uint64),
	}
}

// Resolve returns the latest block at or before the target timestamp.
func (r *Resolver) Resolve(ctx context.Context, targetTS int64) (uint64, error) {
	if targetTS <= 0 {
		return 0, fmt.Errorf("invalid target timestamp: %d", targetTS)
	}

	key := (targetTS / r.bucket) * r.bucket
	r.mu.Lock()
	if block, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return block, nil
	}
	hint := r.hint
	r.mu.Unlock()

	target := uint64(targetTS)

	latest, latestTS, err := r.latest(ctx)
	if err != nil {
		return 0, err
	}
	if latestTS <= target {
		// Never cached: the chain tip is provisional, a later block may
		// still arrive inside this bucket.
		return latest, nil
	}

	block, ok, err := r.scanFromHint(ctx, hint, target, latest)
	if err != nil {
		return 0, err
	}
	if !ok {
		// The hint did not bound the answer; binary search is the
		// correctness fallback.
		block, err = r.binarySearch(ctx, target, latest)
		if err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	r.cache[key] = block
	r.hint = block
	r.mu.Unlock()
	return block, nil
}

func (r *Resolver) latest(ctx context.Context) (uint64, uint64, error) {
	r.mu.Lock()
	if r.haveLatest {
		num, ts := r.latestNum, r.latestTS
		r.mu.Unlock()
		return num, ts, nil
	}
	r.mu.Unlock()

	num, err := r.backend.LatestBlockNumber(ctx)
	if err != nil {
		return 0, 0, err
	}
	ts, err := r.backend.BlockTimestamp(ctx, num)
	if err != nil {
		return 0, 0, err
	}

	r.mu.Lock()
	r.latestNum, r.latestTS, r.haveLatest = num, ts, true
	r.mu.Unlock()
	return num, ts, nil
}

// scanFromHint walks forward from a previously resolved nearby block. The
// driver feeds timestamps in increasing order, so consecutive transactions
// usually land within a few blocks of the last answer.
func (r *Resolver) scanFromHint(ctx context.Context, hint, target, latest uint64) (uint64, bool, error) {
	if hint == 0 {
		return 0, false, nil
	}

	cur := hint
	ts, err := r.backend.BlockTimestamp(ctx, cur)
	if err != nil {
		return 0, false, err
	}
	if ts > target {
		// Hint overshoots; only the binary search can bound from below.
		return 0, false, nil
	}

	for probes := 0; probes < r.probeLimit && cur < latest; probes++ {
		nextTS, err := r.backend.BlockTimestamp(ctx, cur+1)
		if err != nil {
			return 0, false, err
		}
		if nextTS > target {
			return cur, true, nil
		}
		cur++
	}
	if cur == latest {
		return cur, true, nil
	}
	return 0, false, nil
}

func (r *Resolver) binarySearch(ctx context.Context, target, latest uint64) (uint64, error) {
	low, high := uint64(1), latest
	for low <= high {
		mid := low + (high-low)/2
		ts, err := r.backend.BlockTimestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts > target {
			high = mid - 1
			continue
		}
		next := mid + 1
		if next > latest {
			return mid, nil
		}
		nextTS, err := r.backend.BlockTimestamp(ctx, next)
		if err != nil {
			return 0, err
		}
		if nextTS > target {
			return mid, nil
		}
		low = mid + 1
	}
	if high < 1 {
		return 1, nil
	}
	return high, nil
}
