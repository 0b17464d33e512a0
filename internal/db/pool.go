package mlm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Запись пула за месяц. Уникальный индекс по месяцу делает повторный
// расчет невозможным на уровне хранилища.
func (s *Store) CreatePool(ctx context.Context, pool model.GlobalPool) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	qualified, err := json.Marshal(pool.Qualified)
	if err != nil {
		return err
	}

	sql, args, err := sq.Insert("global_pool").
		Columns("id", "month", "company_volume", "percent", "pool_size", "qualified", "share", "status", "created_at").
		Values(pool.ID, pool.Month, pool.CompanyVolume, pool.Percent, pool.PoolSize, qualified, pool.Share, pool.Status, pool.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return err
	}

	_, err = conn.Exec(ctx, sql, args...)
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "23505" {
			return fmt.Errorf("pool for %s %w", pool.Month, model.ErrDuplicate)
		}
		s.logSQL(err, sql, args)
		return err
	}
	return nil
}

func (s *Store) GetPoolByMonth(ctx context.Context, month string) (model.GlobalPool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.GlobalPool{}, err
	}
	defer conn.Release()

	var pool model.GlobalPool
	var qualified []byte
	row := conn.QueryRow(ctx,
		"SELECT id, month, company_volume, percent, pool_size, qualified, share, status, created_at FROM global_pool WHERE month = $1",
		month)
	err = row.Scan(&pool.ID, &pool.Month, &pool.CompanyVolume, &pool.Percent, &pool.PoolSize, &qualified, &pool.Share, &pool.Status, &pool.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GlobalPool{}, fmt.Errorf("pool for %s %w", month, model.ErrNotFound)
		}
		return model.GlobalPool{}, err
	}
	if len(qualified) > 0 {
		err = json.Unmarshal(qualified, &pool.Qualified)
		if err != nil {
			return model.GlobalPool{}, err
		}
	}
	return pool, nil
}

func (s *Store) MarkPoolDistributed(ctx context.Context, id uuid.UUID) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "UPDATE global_pool SET status = $1 WHERE id = $2", model.PoolDistributed, id)
	return err
}

// История рангов, только добавление
func (s *Store) AppendRankHistory(ctx context.Context, entry model.RankHistory) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Insert("rank_history").
		Columns("id", "account_id", "old_rank", "new_rank", "method", "created_at").
		Values(entry.ID, entry.AccountID, int(entry.OldRank), int(entry.NewRank), entry.Method, entry.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return err
	}

	_, err = conn.Exec(ctx, sql, args...)
	if err != nil {
		s.logSQL(err, sql, args)
		return err
	}
	return nil
}
