package repos

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/core/storage/postgres"
	"ghostline-core/internal/models"
)

var _ VpnAccountRepository = (*PgVpnAccountRepository)(nil)

// uniqueViolation PostgreSQL unique_violation
const uniqueViolation = "23505"

type PgVpnAccountRepository struct {
	pg *postgres.Storage
}

func NewPgVpnAccountRepository(pg *postgres.Storage) *PgVpnAccountRepository {
	return &PgVpnAccountRepository{pg: pg}
}

const vpnAccountColumns = `id, user_id, server, port, public_key, sni, flow, devices_limit, is_blocked, created_at`

func (r *PgVpnAccountRepository) Create(ctx context.Context, account *models.VpnAccount) error {
	if account == nil {
		return coreerrors.New(coreerrors.CodeInvalidParam, "account is nil")
	}
	if account.UserID == "" {
		return coreerrors.New(coreerrors.CodeMissingParam, "user id is required")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.pg.QueryRow(ctx, `
		INSERT INTO vpn_accounts (user_id, server, port, public_key, sni, flow, devices_limit, is_blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, account.UserID, account.Server, account.Port, account.PublicKey, account.SNI,
		account.Flow, account.DevicesLimit, account.IsBlocked, account.CreatedAt).Scan(&account.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return coreerrors.Newf(coreerrors.CodeAlreadyExists, "vpn account for user %s already exists", account.UserID)
		}
		return coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to create vpn account")
	}
	return nil
}

func (r *PgVpnAccountRepository) FindAll(ctx context.Context) ([]*models.VpnAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pg.Query(ctx, `SELECT `+vpnAccountColumns+` FROM vpn_accounts ORDER BY id`)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to query vpn accounts")
	}
	defer rows.Close()

	var accounts []*models.VpnAccount
	for rows.Next() {
		a, err := scanVpnAccount(rows)
		if err != nil {
			return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to scan vpn account")
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to iterate rows")
	}
	return accounts, nil
}

func (r *PgVpnAccountRepository) FindByUserID(ctx context.Context, userID string) (*models.VpnAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.pg.QueryRow(ctx, `SELECT `+vpnAccountColumns+` FROM vpn_accounts WHERE user_id = $1`, userID)
	a, err := scanVpnAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.Newf(coreerrors.CodeAccountNotFound, "vpn account for user %s not found", userID)
		}
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to get vpn account")
	}
	return a, nil
}

func (r *PgVpnAccountRepository) ToggleBlock(ctx context.Context, userID string, blocked bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pg.Exec(ctx, `UPDATE vpn_accounts SET is_blocked = $2 WHERE user_id = $1`, userID, blocked)
	if err != nil {
		return false, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to update block flag")
	}
	return tag.RowsAffected() > 0, nil
}

func scanVpnAccount(row pgx.Row) (*models.VpnAccount, error) {
	var a models.VpnAccount
	err := row.Scan(&a.ID, &a.UserID, &a.Server, &a.Port, &a.PublicKey, &a.SNI,
		&a.Flow, &a.DevicesLimit, &a.IsBlocked, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
