package types

import (
	"fmt"
	"time"
)

// CycleState is the per-scenario cursor over a shuffled, replicated permutation
// of condition ids.
//
// Invariant: Cursor == NextBlock * BlockSize. The cycle is exhausted when
// NextBlock == TotalBlocks; a new state must then replace it wholesale.
type CycleState struct {
	CycleID     string    `json:"cycleId"`
	Design      Design    `json:"design"`
	Sequence    []string  `json:"sequence"`
	Cursor      int       `json:"cursor"`
	TotalBlocks int       `json:"totalBlocks"`
	NextBlock   int       `json:"nextBlock"`
	BlockSize   int       `json:"blockSize"`
	Replication int       `json:"replication"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Exhausted reports whether every block of the cycle has been issued.
func (s *CycleState) Exhausted() bool {
	return s.NextBlock >= s.TotalBlocks
}

// Validate checks the cursor invariants.
func (s *CycleState) Validate() error {
	if s.BlockSize <= 0 {
		return fmt.Errorf("block size must be > 0, got %d", s.BlockSize)
	}
	if len(s.Sequence) != s.TotalBlocks*s.BlockSize {
		return fmt.Errorf("sequence length %d != %d blocks x %d", len(s.Sequence), s.TotalBlocks, s.BlockSize)
	}
	if s.Cursor != s.NextBlock*s.BlockSize {
		return fmt.Errorf("cursor %d != next block %d x block size %d", s.Cursor, s.NextBlock, s.BlockSize)
	}
	if s.NextBlock < 0 || s.NextBlock > s.TotalBlocks {
		return fmt.Errorf("next block %d outside [0,%d]", s.NextBlock, s.TotalBlocks)
	}

	return nil
}

// Block is one contiguous slice of a cycle issued to a single participant.
type Block struct {
	CycleID string   `json:"cycleId"`
	Index   int      `json:"index"`
	IDs     []string `json:"ids"`
}
