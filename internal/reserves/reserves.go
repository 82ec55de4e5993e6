// Package reserves models pool reserves: the authoritative snapshot, sparse
// virtual overlays produced by simulation, and the merged view read by the
// search engine. All amounts are 18-decimal normalized.
package reserves

import (
	"math/big"
	"sort"
)

// ReserveError is a string-constant error type
type ReserveError string

func (e ReserveError) Error() string { return string(e) }

const (
	ErrMissingReserve ReserveError = "reserve not available for pool"
)

// Snapshot maps Pool.ID -> Token.ID -> reserve. It is treated as read-only.
type Snapshot map[int]map[int]*big.Int

// Reserve returns the reserve of a token in a pool
func (s Snapshot) Reserve(poolID, tokenID int) (*big.Int, bool) {
	byToken, ok := s[poolID]
	if !ok {
		return nil, false
	}
	r, ok := byToken[tokenID]
	return r, ok && r != nil
}

// Set records a reserve, allocating the pool entry when needed
func (s Snapshot) Set(poolID, tokenID int, amount *big.Int) {
	byToken, ok := s[poolID]
	if !ok {
		byToken = make(map[int]*big.Int, 2)
		s[poolID] = byToken
	}
	byToken[tokenID] = amount
}

// Clone deep-copies the snapshot
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for poolID, byToken := range s {
		for tokenID, r := range byToken {
			out.Set(poolID, tokenID, new(big.Int).Set(r))
		}
	}
	return out
}

// Delta is a sparse overlay on a Snapshot touching only simulated pools
type Delta map[int]map[int]*big.Int

// Reserve returns the overlaid reserve, if present
func (d Delta) Reserve(poolID, tokenID int) (*big.Int, bool) {
	return Snapshot(d).Reserve(poolID, tokenID)
}

func (d Delta) set(poolID, tokenID int, amount *big.Int) {
	Snapshot(d).Set(poolID, tokenID, amount)
}

// Pools returns the ids of the touched pools in ascending order
func (d Delta) Pools() []int {
	ids := make([]int, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// View is a snapshot with an optional delta applied. Delta values win on overlap.
type View struct {
	Snapshot Snapshot
	Delta    Delta
}

// Reserve returns the effective reserve of a token in a pool
func (v View) Reserve(poolID, tokenID int) (*big.Int, bool) {
	if v.Delta != nil {
		if r, ok := v.Delta.Reserve(poolID, tokenID); ok {
			return r, true
		}
	}
	if v.Snapshot == nil {
		return nil, false
	}
	return v.Snapshot.Reserve(poolID, tokenID)
}

// Overlay accumulates virtual reserve changes on top of a read-only view.
// Values written to the overlay are always freshly allocated.
type Overlay struct {
	base  View
	delta Delta
}

// NewOverlay starts an empty overlay over the given view
func NewOverlay(base View) *Overlay {
	return &Overlay{base: base, delta: make(Delta)}
}

// Reserve reads through the overlay, then the base view
func (o *Overlay) Reserve(poolID, tokenID int) (*big.Int, bool) {
	if r, ok := o.delta.Reserve(poolID, tokenID); ok {
		return r, true
	}
	return o.base.Reserve(poolID, tokenID)
}

// Add adjusts a reserve by amount (negative to remove) in the overlay
func (o *Overlay) Add(poolID, tokenID int, amount *big.Int) error {
	current, ok := o.Reserve(poolID, tokenID)
	if !ok {
		return ErrMissingReserve
	}
	o.delta.set(poolID, tokenID, new(big.Int).Add(current, amount))
	return nil
}

// Delta returns the accumulated overlay
func (o *Overlay) Delta() Delta {
	return o.delta
}
