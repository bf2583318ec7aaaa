package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Eigensu/SM-Visitor/internal/domain"
)

type VisitRepo interface {
	Insert(ctx context.Context, v *domain.Visit) (*domain.Visit, error)
	GetByID(ctx context.Context, id string) (*domain.Visit, error)
	// UpdateStatus flips status from -> to and optionally sets entry_time.
	// It reports false when the visit no longer has the expected prior
	// status; the caller decides what that means.
	UpdateStatus(ctx context.Context, id string, from, to domain.VisitStatus, entryTime *time.Time) (bool, error)
	// SetExitTime succeeds at most once per visit.
	SetExitTime(ctx context.Context, id string, at time.Time) (bool, error)
	// DeletePending removes the visit only while it is still pending.
	DeletePending(ctx context.Context, id string) (bool, error)
	ListSince(ctx context.Context, since time.Time, f VisitFilter) ([]domain.Visit, error)
}

// VisitFilter narrows listings; empty fields match everything.
type VisitFilter struct {
	GuardID   string
	OwnerFlat string
	Limit     int
}

type VisitRepoImpl struct{ pool *pgxpool.Pool }

func NewVisitRepo(pool *pgxpool.Pool) *VisitRepoImpl { return &VisitRepoImpl{pool: pool} }

const visitCols = `id, visitor_id, name_snapshot, phone_snapshot, photo_snapshot_url,
purpose, owner_flat, target_flats, guard_id,
entry_time, exit_time, status, qr_token, created_at, updated_at`

func scanVisit(row pgx.Row) (*domain.Visit, error) {
	var v domain.Visit
	err := row.Scan(
		&v.ID, &v.VisitorID, &v.NameSnapshot, &v.PhoneSnapshot, &v.PhotoSnapshot,
		&v.Purpose, &v.OwnerFlat, &v.TargetFlats, &v.GuardID,
		&v.EntryTime, &v.ExitTime, &v.Status, &v.QRToken, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VisitRepoImpl) Insert(ctx context.Context, v *domain.Visit) (*domain.Visit, error) {
	const q = `INSERT INTO visits (
    id, visitor_id, name_snapshot, phone_snapshot, photo_snapshot_url,
    purpose, owner_flat, target_flats, guard_id,
    entry_time, exit_time, status, qr_token
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,$11,$12)
  RETURNING ` + visitCols

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanVisit(r.pool.QueryRow(ctx, q,
		v.ID, v.VisitorID, v.NameSnapshot, v.PhoneSnapshot, v.PhotoSnapshot,
		v.Purpose, v.OwnerFlat, v.TargetFlats, v.GuardID,
		v.EntryTime, v.Status, v.QRToken,
	))
}

func (r *VisitRepoImpl) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisit(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VisitRepoImpl) UpdateStatus(ctx context.Context, id string, from, to domain.VisitStatus, entryTime *time.Time) (bool, error) {
	const q = `UPDATE visits
  SET status=$3, entry_time=COALESCE($4, entry_time), updated_at=now()
  WHERE id=$1 AND status=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, from, to, entryTime)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *VisitRepoImpl) SetExitTime(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE visits SET exit_time=$2, updated_at=now()
  WHERE id=$1 AND exit_time IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *VisitRepoImpl) DeletePending(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM visits WHERE id=$1 AND status='pending'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *VisitRepoImpl) ListSince(ctx context.Context, since time.Time, f VisitFilter) ([]domain.Visit, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	const q = `SELECT ` + visitCols + ` FROM visits
  WHERE created_at >= $1
    AND ($2 = '' OR guard_id = $2)
    AND ($3 = '' OR owner_flat = $3)
  ORDER BY created_at DESC LIMIT $4`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, since, f.GuardID, f.OwnerFlat, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vs := make([]domain.Visit, 0, limit)
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		vs = append(vs, *v)
	}
	return vs, rows.Err()
}

var _ VisitRepo = (*VisitRepoImpl)(nil)
