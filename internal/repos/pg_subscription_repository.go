package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/core/storage/postgres"
	"ghostline-core/internal/models"
)

var _ SubscriptionRepository = (*PgSubscriptionRepository)(nil)

type PgSubscriptionRepository struct {
	pg *postgres.Storage
}

func NewPgSubscriptionRepository(pg *postgres.Storage) *PgSubscriptionRepository {
	return &PgSubscriptionRepository{pg: pg}
}

const subscriptionColumns = `id, user_id, plan, status, start_date, end_date, created_at`

func (r *PgSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub == nil {
		return coreerrors.New(coreerrors.CodeInvalidParam, "subscription is nil")
	}
	if !sub.Plan.Valid() {
		return &coreerrors.UnknownPlanError{Plan: string(sub.Plan)}
	}
	if sub.Status == "" {
		sub.Status = models.StatusActive
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.pg.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan, status, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, sub.UserID, string(sub.Plan), string(sub.Status), sub.StartDate, sub.EndDate, sub.CreatedAt).Scan(&sub.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && sub.Plan == models.PlanTrial {
			return coreerrors.ErrTrialAlreadyUsed
		}
		return coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to create subscription")
	}
	return nil
}

func (r *PgSubscriptionRepository) FindAll(ctx context.Context) ([]*models.Subscription, error) {
	return r.Find(ctx, models.SubscriptionFilter{})
}

func (r *PgSubscriptionRepository) Find(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Plan != "" {
		add("plan = $%d", string(filter.Plan))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.EndBefore.IsZero() {
		add("end_date <= $%d", filter.EndBefore)
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to query subscriptions")
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to scan subscription")
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to iterate rows")
	}
	return subs, nil
}

func (r *PgSubscriptionRepository) FindActive(ctx context.Context, userID string) (*models.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.pg.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY end_date DESC LIMIT 1
	`, userID)
	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to get active subscription")
	}
	return s, nil
}

func (r *PgSubscriptionRepository) HasPlan(ctx context.Context, userID string, plan models.Plan) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := r.pg.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE user_id = $1 AND plan = $2)`,
		userID, string(plan)).Scan(&exists)
	if err != nil {
		return false, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to check plan")
	}
	return exists, nil
}

func (r *PgSubscriptionRepository) MarkExpired(ctx context.Context, userID string, asOf time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pg.Exec(ctx, `
		UPDATE subscriptions SET status = 'expired'
		WHERE user_id = $1 AND status <> 'expired' AND end_date <= $2
	`, userID, asOf)
	if err != nil {
		return 0, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to expire subscriptions")
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgSubscriptionRepository) Cancel(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pg.Exec(ctx, `UPDATE subscriptions SET status = 'canceled' WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to cancel subscription")
	}
	if tag.RowsAffected() == 0 {
		return coreerrors.Newf(coreerrors.CodeNotFound, "active subscription %d not found", id)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var (
		s      models.Subscription
		plan   string
		status string
	)
	if err := row.Scan(&s.ID, &s.UserID, &plan, &status, &s.StartDate, &s.EndDate, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Plan = models.Plan(plan)
	s.Status = models.SubscriptionStatus(status)
	return &s, nil
}
