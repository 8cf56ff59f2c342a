package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/replypilot/replypilot/internal/account"
)

// AccountLister yields the accounts eligible for polling. Paused
// accounts are filtered at the query.
type AccountLister interface {
	ListPollable(ctx context.Context) ([]*account.Account, error)
}

// Poller is the per-account cycle the driver fans out to.
type Poller interface {
	PollAccount(ctx context.Context, acct *account.Account) (Stats, error)
}

// DriverConfig tunes the poll loop.
type DriverConfig struct {
	Interval    time.Duration
	Concurrency int
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	return c
}

// Driver ticks the coordinator across all pollable accounts. Accounts
// run concurrently up to a bound, but never two cycles for the same
// account at once: a cycle still in flight when the next tick arrives
// is skipped, not stacked.
type Driver struct {
	accounts AccountLister
	poller   Poller
	cfg      DriverConfig

	wg       sync.WaitGroup
	sem      chan struct{}
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewDriver(accounts AccountLister, poller Poller, cfg DriverConfig) *Driver {
	cfg = cfg.withDefaults()
	return &Driver{
		accounts: accounts,
		poller:   poller,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Concurrency),
		inFlight: make(map[string]bool),
	}
}

// Run polls until the context is canceled, then waits for in-flight
// cycles to finish; only new work is cut off.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	log.Printf("poll driver running, interval %s, concurrency %d", d.cfg.Interval, d.cfg.Concurrency)
	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	accounts, err := d.accounts.ListPollable(ctx)
	if err != nil {
		log.Printf("failed to list pollable accounts: %v", err)
		return
	}

	for _, acct := range accounts {
		// ListPollable already filters, but a PAUSE or billing event can
		// land between the query and this account's turn.
		if acct.MonitoringPaused {
			continue
		}
		if !d.claim(acct.ID) {
			log.Printf("account %s still polling from a previous tick, skipping", acct.ID)
			continue
		}

		d.wg.Add(1)
		d.sem <- struct{}{}
		go func(acct *account.Account) {
			defer d.wg.Done()
			defer func() { <-d.sem }()
			defer d.release(acct.ID)

			stats, err := d.poller.PollAccount(ctx, acct)
			if err != nil {
				log.Printf("poll cycle failed for account %s: %v", acct.ID, err)
				return
			}
			if stats.New > 0 {
				log.Printf("account %s: %d fetched, %d new, %d duplicates",
					acct.ID, stats.Fetched, stats.New, stats.Duplicates)
			}
		}(acct)
	}
}

func (d *Driver) claim(accountID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight[accountID] {
		return false
	}
	d.inFlight[accountID] = true
	return true
}

func (d *Driver) release(accountID string) {
	d.mu.Lock()
	delete(d.inFlight, accountID)
	d.mu.Unlock()
}
