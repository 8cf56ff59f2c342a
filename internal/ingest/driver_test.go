package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/replypilot/replypilot/internal/account"
)

type fakeLister struct {
	accounts []*account.Account
}

func (f *fakeLister) ListPollable(context.Context) ([]*account.Account, error) {
	return f.accounts, nil
}

type countingPoller struct {
	mu      sync.Mutex
	polled  map[string]int
	blockOn string
	release chan struct{}
}

func (p *countingPoller) PollAccount(_ context.Context, acct *account.Account) (Stats, error) {
	p.mu.Lock()
	if p.polled == nil {
		p.polled = make(map[string]int)
	}
	p.polled[acct.ID]++
	p.mu.Unlock()
	if acct.ID == p.blockOn {
		<-p.release
	}
	return Stats{}, nil
}

func TestDriver_PollsEveryListedAccount(t *testing.T) {
	lister := &fakeLister{accounts: []*account.Account{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	poller := &countingPoller{}
	d := NewDriver(lister, poller, DriverConfig{Concurrency: 2})

	d.tick(context.Background())
	d.wg.Wait()

	for _, id := range []string{"a", "b", "c"} {
		if poller.polled[id] != 1 {
			t.Errorf("account %s polled %d times, want 1", id, poller.polled[id])
		}
	}
}

func TestDriver_PausedAccountIsNeverPolled(t *testing.T) {
	lister := &fakeLister{accounts: []*account.Account{
		{ID: "active"},
		{ID: "paused", MonitoringPaused: true},
	}}
	poller := &countingPoller{}
	d := NewDriver(lister, poller, DriverConfig{Concurrency: 2})

	d.tick(context.Background())
	d.wg.Wait()

	if poller.polled["active"] != 1 {
		t.Errorf("active account polled %d times, want 1", poller.polled["active"])
	}
	if poller.polled["paused"] != 0 {
		t.Errorf("paused account polled %d times, want 0", poller.polled["paused"])
	}
}

func TestDriver_NoOverlappingCyclesPerAccount(t *testing.T) {
	lister := &fakeLister{accounts: []*account.Account{{ID: "slow"}}}
	poller := &countingPoller{blockOn: "slow", release: make(chan struct{})}
	d := NewDriver(lister, poller, DriverConfig{Concurrency: 4})

	d.tick(context.Background())
	// Second tick arrives while the first cycle is still running.
	d.tick(context.Background())

	close(poller.release)
	d.wg.Wait()

	if got := poller.polled["slow"]; got != 1 {
		t.Errorf("account polled %d times across overlapping ticks, want 1", got)
	}
}
