package digest

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/review"
	"github.com/replypilot/replypilot/pkg/monitoring"
)

// Accounts lists digest recipients.
type Accounts interface {
	ListAll(ctx context.Context) ([]*account.Account, error)
}

// Stats aggregates a window of reviews for one account.
type Stats interface {
	StatsForWindow(ctx context.Context, accountID string, from, to time.Time) (*review.WindowStats, error)
}

// Mailer delivers the rendered digest.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// Scheduler sends each account one weekly summary email in its local
// Sunday-morning slot. The digest_log row is the idempotency claim: a
// second process (or a second tick in the same hour) that loses the
// insert does nothing.
type Scheduler struct {
	db       *sql.DB
	accounts Accounts
	stats    Stats
	mailer   Mailer
	interval time.Duration
}

func NewScheduler(db *sql.DB, accounts Accounts, stats Stats, mailer Mailer) *Scheduler {
	return &Scheduler{
		db:       db,
		accounts: accounts,
		stats:    stats,
		mailer:   mailer,
		interval: time.Hour,
	}
}

// Run ticks hourly until the context is canceled. The digest slot is an
// hour wide, so an hourly tick cannot miss it.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("digest scheduler running, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now()); err != nil {
				log.Printf("digest tick failed: %v", err)
			}
		}
	}
}

// Tick sends digests to every account whose local clock is inside the
// digest slot and that has not received this week's digest yet.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	for _, acct := range accounts {
		if acct.OwnerEmail == "" {
			continue
		}
		loc, err := time.LoadLocation(acct.TimezoneOrUTC())
		if err != nil {
			log.Printf("account %s has invalid timezone %q, using UTC", acct.ID, acct.Timezone)
			loc = time.UTC
		}
		if !IsDigestTime(loc, now) {
			continue
		}
		if err := s.sendDigest(ctx, acct, loc, now); err != nil {
			log.Printf("failed to send digest to account %s: %v", acct.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) sendDigest(ctx context.Context, acct *account.Account, loc *time.Location, now time.Time) error {
	w := ComputeWeekWindow(loc, now)

	claimed, err := s.claim(ctx, acct.ID, w.PeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to claim digest slot: %w", err)
	}
	if !claimed {
		return nil
	}

	current, err := s.stats.StatsForWindow(ctx, acct.ID, w.PeriodStart, w.PeriodEnd)
	if err != nil {
		s.unclaim(ctx, acct.ID, w.PeriodEnd)
		return fmt.Errorf("failed to aggregate current window: %w", err)
	}
	previous, err := s.stats.StatsForWindow(ctx, acct.ID, w.PrevStart, w.PrevEnd)
	if err != nil {
		s.unclaim(ctx, acct.ID, w.PeriodEnd)
		return fmt.Errorf("failed to aggregate previous window: %w", err)
	}

	subject := fmt.Sprintf("Your week in reviews: %s", acct.Name)
	body := renderDigest(acct, w, current, previous)
	if err := s.mailer.SendEmail(ctx, acct.OwnerEmail, subject, body); err != nil {
		// Release the claim so the next tick inside the slot retries.
		s.unclaim(ctx, acct.ID, w.PeriodEnd)
		return err
	}

	monitoring.DigestsSent.Inc()
	return nil
}

// claim inserts the digest_log row; false means another worker got
// there first.
func (s *Scheduler) claim(ctx context.Context, accountID string, periodEnd time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO digest_log (account_id, period_end, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, period_end) DO NOTHING`,
		accountID, periodEnd.UTC(), time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Scheduler) unclaim(ctx context.Context, accountID string, periodEnd time.Time) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM digest_log WHERE account_id = $1 AND period_end = $2`,
		accountID, periodEnd.UTC())
	if err != nil {
		log.Printf("failed to release digest claim for account %s: %v", accountID, err)
	}
}

var digestTemplate = template.Must(template.New("digest").Parse(`
<h2>{{.Name}} - weekly review summary</h2>
<p>{{.Range}}</p>
<ul>
  <li><b>{{.Current.Total}}</b> new reviews ({{.Delta}} vs last week)</li>
  <li><b>{{.Current.Positive}}</b> positive, <b>{{.Current.Negative}}</b> negative</li>
  <li>Average rating: <b>{{printf "%.1f" .Current.AverageRating}}</b></li>
  <li><b>{{.Current.Replied}}</b> replies posted</li>
</ul>
<p>Reply to reviews faster by texting APPROVE right from your phone.</p>
`))

func renderDigest(acct *account.Account, w Window, current, previous *review.WindowStats) string {
	delta := current.Total - previous.Total
	deltaText := fmt.Sprintf("%+d", delta)
	if delta == 0 {
		deltaText = "even"
	}

	var b strings.Builder
	err := digestTemplate.Execute(&b, struct {
		Name    string
		Range   string
		Current *review.WindowStats
		Delta   string
	}{
		Name:    acct.Name,
		Range:   fmt.Sprintf("%s to %s", w.PeriodStart.Format("Jan 2"), w.PeriodEnd.Format("Jan 2, 2006")),
		Current: current,
		Delta:   deltaText,
	})
	if err != nil {
		log.Printf("digest render failed for account %s: %v", acct.ID, err)
		return fmt.Sprintf("<p>%d new reviews this week.</p>", current.Total)
	}
	return b.String()
}
