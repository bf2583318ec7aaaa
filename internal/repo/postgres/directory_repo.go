package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryRepo answers who lives where. The audience resolver and the
// hub's audience broadcast are its only consumers.
type DirectoryRepo interface {
	ResidentsForFlats(ctx context.Context, flatIDs []string) ([]string, error)
	AllFlatIDs(ctx context.Context) ([]string, error)
}

type DirectoryRepoImpl struct{ pool *pgxpool.Pool }

func NewDirectoryRepo(pool *pgxpool.Pool) *DirectoryRepoImpl {
	return &DirectoryRepoImpl{pool: pool}
}

func (r *DirectoryRepoImpl) ResidentsForFlats(ctx context.Context, flatIDs []string) ([]string, error) {
	if len(flatIDs) == 0 {
		return nil, nil
	}
	const q = `SELECT id FROM residents WHERE flat_id = ANY($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, flatIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DirectoryRepoImpl) AllFlatIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT flat_id FROM residents WHERE flat_id <> '' ORDER BY flat_id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ DirectoryRepo = (*DirectoryRepoImpl)(nil)
