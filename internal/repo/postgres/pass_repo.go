package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Eigensu/SM-Visitor/internal/domain"
)

type PassRepo interface {
	Insert(ctx context.Context, p *domain.GuestPass) (*domain.GuestPass, error)
	GetByID(ctx context.Context, id string) (*domain.GuestPass, error)
	SetToken(ctx context.Context, id, token string) error
	// MarkUsed consumes the pass. The conditional update succeeds for
	// exactly one caller even under concurrent redemption; everyone else
	// gets false.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.GuestPass, error)
}

type PassRepoImpl struct{ pool *pgxpool.Pool }

func NewPassRepo(pool *pgxpool.Pool) *PassRepoImpl { return &PassRepoImpl{pool: pool} }

const passCols = `id, owner_id, owner_flat, guest_name, token, expires_at,
one_time, is_all_flats, valid_flats, used_at, created_at`

func scanPass(row pgx.Row) (*domain.GuestPass, error) {
	var p domain.GuestPass
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.OwnerFlat, &p.GuestName, &p.Token, &p.ExpiresAt,
		&p.OneTime, &p.IsAllFlats, &p.ValidFlats, &p.UsedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PassRepoImpl) Insert(ctx context.Context, p *domain.GuestPass) (*domain.GuestPass, error) {
	const q = `INSERT INTO guest_passes (
    id, owner_id, owner_flat, guest_name, token, expires_at,
    one_time, is_all_flats, valid_flats
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  RETURNING ` + passCols

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanPass(r.pool.QueryRow(ctx, q,
		p.ID, p.OwnerID, p.OwnerFlat, p.GuestName, p.Token, p.ExpiresAt,
		p.OneTime, p.IsAllFlats, p.ValidFlats,
	))
}

func (r *PassRepoImpl) GetByID(ctx context.Context, id string) (*domain.GuestPass, error) {
	const q = `SELECT ` + passCols + ` FROM guest_passes WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPass(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PassRepoImpl) SetToken(ctx context.Context, id, token string) error {
	const q = `UPDATE guest_passes SET token=$2 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, token)
	return err
}

func (r *PassRepoImpl) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE guest_passes SET used_at=$2
  WHERE id=$1 AND used_at IS NULL AND expires_at > $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PassRepoImpl) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.GuestPass, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const q = `SELECT ` + passCols + ` FROM guest_passes
  WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ps := make([]domain.GuestPass, 0, limit)
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		ps = append(ps, *p)
	}
	return ps, rows.Err()
}

var _ PassRepo = (*PassRepoImpl)(nil)
