// Package rs wraps klauspost/reedsolomon behind the narrow
// {encode, reconstruct} capability interface spec.md §9 calls for, so the
// Reed-Solomon implementation stays swappable (spec.md §4.3).
//
// The teacher's ec package drives reedsolomon.NewStreamC, the streaming
// whole-file variant (ec/putjogger.go, ec/getjogger.go). STRUBS encodes one
// chunkSize-bounded stripe at a time rather than streaming an entire
// object, so this module uses the library's in-memory shard API
// (reedsolomon.New) instead -- the deliberate choice recorded in
// DESIGN.md.
package rs

import (
	"fmt"

	"github.com/klauspost/reedsolomon"

	"strubs/cmn"
)

// Engine encodes parity for and reconstructs missing shards of one
// fixed-size stripe. Stateless and safe for concurrent use, per spec.md
// §4.3.
type Engine struct {
	k, m int
}

// New returns an Engine for k data and m parity shards.
func New(k, m int) (*Engine, error) {
	if k <= 0 || m < 0 {
		return nil, fmt.Errorf("rs: invalid shard counts k=%d m=%d", k, m)
	}
	return &Engine{k: k, m: m}, nil
}

// Encode computes m parity shards from k equal-length data shards. All
// shards must be the same length (the stripe's chunk size); data is not
// modified.
func (e *Engine) Encode(data [][]byte) (parity [][]byte, err error) {
	if len(data) != e.k {
		return nil, fmt.Errorf("rs: encode expects %d data shards, got %d", e.k, len(data))
	}
	enc, err := reedsolomon.New(e.k, e.m)
	if err != nil {
		return nil, err
	}
	shardSize := len(data[0])
	parity = make([][]byte, e.m)
	for i := range parity {
		parity[i] = make([]byte, shardSize)
	}
	shards := append(append([][]byte{}, data...), parity...)
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}
	return parity, nil
}

// Reconstruct fills in the nil entries of shards (length k+m, a mix of
// data and parity slots) from the surviving ones. Requires at least k
// non-nil shards; fails with cmn.ErrUnrecoverable otherwise.
func (e *Engine) Reconstruct(shards [][]byte) error {
	if len(shards) != e.k+e.m {
		return fmt.Errorf("rs: reconstruct expects %d shards, got %d", e.k+e.m, len(shards))
	}
	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < e.k {
		return fmt.Errorf("%w: only %d of %d shards present, need %d", cmn.ErrUnrecoverable, present, e.k+e.m, e.k)
	}
	enc, err := reedsolomon.New(e.k, e.m)
	if err != nil {
		return err
	}
	return enc.Reconstruct(shards)
}

// K returns the configured data-shard count.
func (e *Engine) K() int { return e.k }

// M returns the configured parity-shard count.
func (e *Engine) M() int { return e.m }
