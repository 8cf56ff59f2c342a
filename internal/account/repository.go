package account

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when no account matches the lookup key.
var ErrNotFound = errors.New("account not found")

// Repository handles database operations for accounts.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `
	id, name, owner_phone, owner_email, timezone, monitoring_paused,
	sms_opt_out, subscription_state, COALESCE(stripe_customer_id, ''),
	COALESCE(stripe_subscription_id, ''), COALESCE(google_place_id, ''),
	COALESCE(yelp_business_id, ''), created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Name, &a.OwnerPhone, &a.OwnerEmail, &a.Timezone,
		&a.MonitoringPaused, &a.SMSOptOut, &a.SubscriptionState,
		&a.StripeCustomerID, &a.StripeSubscriptionID,
		&a.GooglePlaceID, &a.YelpBusinessID, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID retrieves an account by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByPhone retrieves the account owned by the given E.164 phone number.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE owner_phone = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, phone))
}

// GetByStripeCustomer retrieves the account linked to a Stripe customer.
func (r *Repository) GetByStripeCustomer(ctx context.Context, customerID string) (*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE stripe_customer_id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, customerID))
}

// ListPollable returns accounts eligible for a poll cycle. The paused
// flag is the only gate; the subscription synchronizer keeps it in sync
// with billing state.
func (r *Repository) ListPollable(ctx context.Context) ([]*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE NOT monitoring_paused ORDER BY created_at`
	return r.list(ctx, query)
}

// ListAll returns every account, for admin listings and digest runs.
func (r *Repository) ListAll(ctx context.Context) ([]*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SetMonitoringPaused flips the poll gate for an account.
func (r *Repository) SetMonitoringPaused(ctx context.Context, id string, paused bool) error {
	return r.exec(ctx,
		`UPDATE accounts SET monitoring_paused = $1, updated_at = $2 WHERE id = $3`,
		paused, time.Now().UTC(), id)
}

// SetSMSOptOut records a regulatory STOP opt-out. Opted-out phones also
// stop being polled, since there is no one left to approve drafts.
func (r *Repository) SetSMSOptOut(ctx context.Context, id string, optOut bool) error {
	return r.exec(ctx,
		`UPDATE accounts SET sms_opt_out = $1, monitoring_paused = $1, updated_at = $2 WHERE id = $3`,
		optOut, time.Now().UTC(), id)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscription writes the synchronized billing state inside the
// caller's transaction so the billing-event dedup insert and the state
// change commit together.
func (r *Repository) UpdateSubscription(ctx context.Context, tx *sql.Tx, id string, state SubscriptionState, paused bool) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET subscription_state = $1, monitoring_paused = $2, updated_at = $3 WHERE id = $4`,
		state, paused, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkStripe attaches provider identifiers after checkout completes.
func (r *Repository) LinkStripe(ctx context.Context, tx *sql.Tx, id, customerID, subscriptionID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET stripe_customer_id = $1, stripe_subscription_id = $2, updated_at = $3 WHERE id = $4`,
		customerID, subscriptionID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
