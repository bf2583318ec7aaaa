package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Eigensu/SM-Visitor/internal/domain"
)

type VisitorRepo interface {
	Insert(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error)
	GetByID(ctx context.Context, id string) (*domain.Visitor, error)
	SetToken(ctx context.Context, id, token string) error
	Update(ctx context.Context, id string, patch domain.UpdateVisitorReq) (*domain.Visitor, error)
	// Deactivate revokes the visitor's credential; the QR token stays
	// decodable but the validator rejects it from then on.
	Deactivate(ctx context.Context, id string) (bool, error)
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]domain.Visitor, error)
	ListActive(ctx context.Context, limit int) ([]domain.Visitor, error)
}

type VisitorRepoImpl struct{ pool *pgxpool.Pool }

func NewVisitorRepo(pool *pgxpool.Pool) *VisitorRepoImpl { return &VisitorRepoImpl{pool: pool} }

const visitorCols = `id, name, phone, photo_url, category, default_purpose,
created_by, home_flat, is_all_flats, valid_flats,
schedule, auto_approval, qr_token, is_active, created_at`

func scanVisitor(row pgx.Row) (*domain.Visitor, error) {
	var (
		v        domain.Visitor
		schedule []byte
	)
	err := row.Scan(
		&v.ID, &v.Name, &v.Phone, &v.PhotoURL, &v.Category, &v.DefaultPurpose,
		&v.CreatedBy, &v.HomeFlat, &v.IsAllFlats, &v.ValidFlats,
		&schedule, &v.AutoApproval, &v.QRToken, &v.IsActive, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &v.Schedule); err != nil {
			return nil, fmt.Errorf("decode visitor schedule: %w", err)
		}
	}
	return &v, nil
}

func (r *VisitorRepoImpl) Insert(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error) {
	const q = `INSERT INTO visitors (
    id, name, phone, photo_url, category, default_purpose,
    created_by, home_flat, is_all_flats, valid_flats,
    schedule, auto_approval, qr_token, is_active
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,true)
  RETURNING ` + visitorCols

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	schedule, err := json.Marshal(v.Schedule)
	if err != nil {
		return nil, fmt.Errorf("encode visitor schedule: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanVisitor(r.pool.QueryRow(ctx, q,
		v.ID, v.Name, v.Phone, v.PhotoURL, v.Category, v.DefaultPurpose,
		v.CreatedBy, v.HomeFlat, v.IsAllFlats, v.ValidFlats,
		schedule, v.AutoApproval, v.QRToken,
	))
}

func (r *VisitorRepoImpl) GetByID(ctx context.Context, id string) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VisitorRepoImpl) SetToken(ctx context.Context, id, token string) error {
	const q = `UPDATE visitors SET qr_token=$2 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, token)
	return err
}

func (r *VisitorRepoImpl) Update(ctx context.Context, id string, patch domain.UpdateVisitorReq) (*domain.Visitor, error) {
	const q = `UPDATE visitors SET
    name = COALESCE($2, name),
    phone = COALESCE($3, phone),
    default_purpose = COALESCE($4, default_purpose)
  WHERE id=$1
  RETURNING ` + visitorCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q, id, patch.Name, patch.Phone, patch.DefaultPurpose))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VisitorRepoImpl) Deactivate(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE visitors SET is_active=false WHERE id=$1 AND is_active`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *VisitorRepoImpl) ListByCreator(ctx context.Context, createdBy string, limit int) ([]domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors
  WHERE created_by=$1 AND is_active ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, q, createdBy, limit)
}

func (r *VisitorRepoImpl) ListActive(ctx context.Context, limit int) ([]domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors
  WHERE is_active ORDER BY created_at DESC LIMIT $1`
	return r.list(ctx, q, nil, limit)
}

func (r *VisitorRepoImpl) list(ctx context.Context, q string, arg any, limit int) ([]domain.Visitor, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	args := []any{limit}
	if arg != nil {
		args = []any{arg, limit}
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vs := make([]domain.Visitor, 0, limit)
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, err
		}
		vs = append(vs, *v)
	}
	return vs, rows.Err()
}

var _ VisitorRepo = (*VisitorRepoImpl)(nil)
