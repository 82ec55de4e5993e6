// Package mempool holds the local set of pending trades that are candidates
// for backrunning. Entries are kept in arrival order and evicted oldest-first.
package mempool

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

// DefaultCapacity is used when the configured capacity is not positive
const DefaultCapacity = 1024

// Classifier decodes raw signed transactions
type Classifier interface {
	Classify(raw []byte) (*types.ClassifiedTx, error)
}

// Enricher resolves decoded trades against the instrument graph
type Enricher interface {
	Enrich(trade *types.TradeDescriptor) (*types.CallArgs, bool)
}

// Outcome describes what Submit did with a transaction
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeDuplicate
	OutcomeNotOfInterest
	OutcomeUnenrichable
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNotOfInterest:
		return "not_of_interest"
	case OutcomeUnenrichable:
		return "unenrichable"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Pool is an insertion-ordered set of backrun requests keyed by tx hash.
// Mutations are serialized; List reads a copy-on-write snapshot and never blocks.
type Pool struct {
	classifier Classifier
	enricher   Enricher
	capacity   int
	now        func() time.Time

	mu    sync.Mutex
	order *list.List
	index map[common.Hash]*list.Element

	snapshot atomic.Pointer[[]*types.BackrunRequest]
}

// NewPool creates an empty pool
func NewPool(classifier Classifier, enricher Enricher, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	p := &Pool{
		classifier: classifier,
		enricher:   enricher,
		capacity:   capacity,
		now:        time.Now,
		order:      list.New(),
		index:      make(map[common.Hash]*list.Element),
	}
	p.publish()
	return p
}

// Submit classifies and enriches a raw transaction and appends it to the pool.
// The returned error is non-nil only for transactions that cannot be decoded.
func (p *Pool) Submit(raw []byte) (Outcome, *types.BackrunRequest, error) {
	classified, err := p.classifier.Classify(raw)
	if err != nil {
		return OutcomeInvalid, nil, err
	}

	if p.Contains(classified.Hash) {
		return OutcomeDuplicate, nil, nil
	}
	if classified.Trade == nil {
		return OutcomeNotOfInterest, nil, nil
	}

	args, ok := p.enricher.Enrich(classified.Trade)
	if !ok {
		return OutcomeUnenrichable, nil, nil
	}

	req := &types.BackrunRequest{
		Args:       args,
		Trade:      classified.Trade,
		RawTx:      classified.Raw,
		TxHash:     classified.Hash,
		Sender:     classified.Sender,
		Nonce:      classified.Nonce,
		ReceivedAt: p.now(),
	}

	if !p.Add(req) {
		return OutcomeDuplicate, nil, nil
	}
	return OutcomeAdded, req, nil
}

// Add appends an already enriched request, evicting from the head when full.
// It reports false if a request with the same hash is present.
func (p *Pool) Add(req *types.BackrunRequest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[req.TxHash]; ok {
		return false
	}

	for p.order.Len() >= p.capacity {
		oldest := p.order.Front()
		evicted := p.order.Remove(oldest).(*types.BackrunRequest)
		delete(p.index, evicted.TxHash)

		log.Debug().
			Str("txHash", evicted.TxHash.Hex()).
			Msg("Evicted oldest request")
	}

	p.index[req.TxHash] = p.order.PushBack(req)
	p.publish()
	return true
}

// Remove drops a request. Unknown hashes are ignored.
func (p *Pool) Remove(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.removeLocked(hash)
}

// RemoveAll drops every listed request and returns how many were present
func (p *Pool) RemoveAll(hashes []common.Hash) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for _, h := range hashes {
		if el, ok := p.index[h]; ok {
			p.order.Remove(el)
			delete(p.index, h)
			removed++
		}
	}
	if removed > 0 {
		p.publish()
	}
	return removed
}

func (p *Pool) removeLocked(hash common.Hash) bool {
	el, ok := p.index[hash]
	if !ok {
		return false
	}
	p.order.Remove(el)
	delete(p.index, hash)
	p.publish()
	return true
}

// Clear empties the pool
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order.Init()
	p.index = make(map[common.Hash]*list.Element)
	p.publish()
}

// List returns the requests oldest first. The slice is shared and must not
// be modified by the caller.
func (p *Pool) List() []*types.BackrunRequest {
	return *p.snapshot.Load()
}

// Get returns the request with the given hash
func (p *Pool) Get(hash common.Hash) (*types.BackrunRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.index[hash]
	if !ok {
		return nil, false
	}
	return el.Value.(*types.BackrunRequest), true
}

// Contains reports whether a request with the given hash is pooled
func (p *Pool) Contains(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.index[hash]
	return ok
}

// Len returns the number of pooled requests
func (p *Pool) Len() int {
	return len(p.List())
}

// publish rebuilds the read snapshot. Caller holds mu.
func (p *Pool) publish() {
	items := make([]*types.BackrunRequest, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		items = append(items, el.Value.(*types.BackrunRequest))
	}
	p.snapshot.Store(&items)
}
