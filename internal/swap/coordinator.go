// Package swap - Coordinator construction and record bookkeeping.
package swap

import (
	"fmt"
	"sync"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/pkg/logging"
)

// NewCoordinator creates a swap coordinator.
func NewCoordinator(cfg *Config) (*Coordinator, error) {
	if cfg.PrimaryChain == nil || cfg.AltChain == nil {
		return nil, fmt.Errorf("%w: both chains must be configured", ErrUnsupportedChain)
	}
	log := cfg.Log
	if log == nil {
		log = logging.Default().Component("swap")
	}
	clients := cfg.Clients
	if clients == nil {
		clients = make(map[string]backend.Client)
	}
	return &Coordinator{
		primary:   cfg.PrimaryChain,
		alt:       cfg.AltChain,
		clients:   clients,
		journal:   cfg.Journal,
		log:       log,
		swapLocks: make(map[string]*sync.Mutex),
		swaps:     make(map[string]*Record),
	}, nil
}

// SetClient sets or replaces the client for a chain.
func (c *Coordinator) SetClient(symbol string, client backend.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[symbol] = client
}

// Track registers a record with the coordinator, typically after recovery
// from the journal.
func (c *Coordinator) Track(rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swaps[rec.ID] = rec
}

// GetSwap returns a tracked record by id.
func (c *Coordinator) GetSwap(id string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.swaps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSwapNotFound, id)
	}
	return rec, nil
}

// lockSwap acquires the per-record mutex, serializing operations on one
// swap while letting distinct swaps proceed concurrently.
func (c *Coordinator) lockSwap(id string) func() {
	c.mu.Lock()
	lock, ok := c.swapLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		c.swapLocks[id] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// clientFor returns the chain client for a symbol.
func (c *Coordinator) clientFor(symbol string) (backend.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.clients[symbol]
	if !ok || client == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoClient, symbol)
	}
	return client, nil
}

// persist saves the record if a journal is configured. Persistence failure
// is logged, not fatal: on-chain state is authoritative and the journal can
// be rebuilt from the record on the next mutation.
func (c *Coordinator) persist(rec *Record) {
	if c.journal == nil {
		return
	}
	if err := c.journal.SaveSwap(rec); err != nil {
		c.log.Error("failed to persist swap record", "swap_id", rec.ID, "error", err)
	}
}
