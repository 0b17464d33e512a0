package mlm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
)

var accountColumns = []string{
	"id", "name", "upline", "rank", "is_active",
	"personal_volume", "full_volume", "balance_active", "balance_passive",
	"volumes_state", "total_volume_state", "status_state", "created_at",
}

type accountRow interface {
	Scan(dest ...any) error
}

func scanAccount(row accountRow) (model.Account, error) {
	var account model.Account
	var upline pgtype.UUID
	var volumes, totalVolume, status []byte
	err := row.Scan(
		&account.ID, &account.Name, &upline, &account.Rank, &account.IsActive,
		&account.PersonalVolume, &account.FullVolume, &account.BalanceActive, &account.BalancePassive,
		&volumes, &totalVolume, &status, &account.CreatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}
	if upline.Status == pgtype.Present {
		id, _ := uuid.FromBytes(upline.Bytes[:])
		account.Upline = &id
	}
	// jsonb-поля всегда типизированы; пустое значение = еще не рассчитано
	if len(volumes) > 0 {
		err = json.Unmarshal(volumes, &account.Volumes)
		if err != nil {
			return model.Account{}, err
		}
	}
	if len(totalVolume) > 0 {
		err = json.Unmarshal(totalVolume, &account.TotalVolume)
		if err != nil {
			return model.Account{}, err
		}
	}
	if len(status) > 0 {
		err = json.Unmarshal(status, &account.Status)
		if err != nil {
			return model.Account{}, err
		}
	}
	return account, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer conn.Release()

	sql, args, err := sq.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return model.Account{}, err
	}

	account, err := scanAccount(conn.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("account %s %w", id.String(), model.ErrNotFound)
		}
		return model.Account{}, err
	}
	return account, nil
}

// Корневой аккаунт - единственный без аплайна
func (s *Store) GetDefaultAccount(ctx context.Context) (model.Account, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer conn.Release()

	sql, args, err := sq.Select(accountColumns...).
		From("accounts").
		Where("upline IS NULL").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return model.Account{}, err
	}

	account, err := scanAccount(conn.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("default account %w", model.ErrNotFound)
		}
		return model.Account{}, err
	}
	return account, nil
}

func (s *Store) GetDirectDownline(ctx context.Context, id uuid.UUID) ([]model.Account, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	sql, args, err := sq.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"upline": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) GetAllAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, "SELECT id FROM accounts ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		err = rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PV покупателя под блокировкой строки: месячный и суммарный объем,
// активация при достижении порога
func (s *Store) AddPersonalVolume(ctx context.Context, id uuid.UUID, amount float64, month string, activationPV float64) (account model.Account, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var isActive bool
	var volumesRaw, statusRaw []byte
	row := tx.QueryRow(ctx, "SELECT is_active, volumes_state, status_state FROM accounts WHERE id = $1 FOR UPDATE", id)
	err = row.Scan(&isActive, &volumesRaw, &statusRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("account %s %w", id.String(), model.ErrNotFound)
		}
		return model.Account{}, err
	}

	var volumes model.VolumesState
	var status model.StatusState
	if len(volumesRaw) > 0 {
		err = json.Unmarshal(volumesRaw, &volumes)
		if err != nil {
			return model.Account{}, err
		}
	}
	if len(statusRaw) > 0 {
		err = json.Unmarshal(statusRaw, &status)
		if err != nil {
			return model.Account{}, err
		}
	}

	volumes.MonthlyPV += amount
	if !isActive && volumes.MonthlyPV >= activationPV {
		isActive = true
		status.LastActiveMonth = month
	}

	volumesJSON, err := json.Marshal(volumes)
	if err != nil {
		return model.Account{}, err
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return model.Account{}, err
	}

	sql, args, err := sq.Update("accounts").
		Set("personal_volume", sq.Expr("personal_volume + ?", amount)).
		Set("is_active", isActive).
		Set("volumes_state", volumesJSON).
		Set("status_state", statusJSON).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return model.Account{}, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		return model.Account{}, err
	}
	err = tx.Commit(ctx)
	if err != nil {
		return model.Account{}, err
	}

	return s.GetAccount(ctx, id)
}

// Сырой FV: дешевое безусловное сложение, без капа
func (s *Store) AddFullVolume(ctx context.Context, id uuid.UUID, amount float64) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Update("accounts").
		Set("full_volume", sq.Expr("full_volume + ?", amount)).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return err
	}
	_, err = conn.Exec(ctx, sql, args...)
	return err
}

func (s *Store) saveState(ctx context.Context, id uuid.UUID, column string, state any) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	sql, args, err := sq.Update("accounts").
		Set(column, raw).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return err
	}
	_, err = conn.Exec(ctx, sql, args...)
	return err
}

func (s *Store) SaveTotalVolumeState(ctx context.Context, id uuid.UUID, state model.TotalVolumeState) error {
	return s.saveState(ctx, id, "total_volume_state", state)
}

func (s *Store) SaveVolumesState(ctx context.Context, id uuid.UUID, state model.VolumesState) error {
	return s.saveState(ctx, id, "volumes_state", state)
}

func (s *Store) SaveStatusState(ctx context.Context, id uuid.UUID, state model.StatusState) error {
	return s.saveState(ctx, id, "status_state", state)
}

func (s *Store) SetRank(ctx context.Context, id uuid.UUID, rank model.Rank) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Update("accounts").
		Set("rank", int(rank)).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return err
	}
	_, err = conn.Exec(ctx, sql, args...)
	return err
}

// Граница 1-го числа: месячные PV в ноль, все неактивны
func (s *Store) ResetMonthlyVolumes(ctx context.Context) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx,
		"UPDATE accounts SET is_active = false, volumes_state = jsonb_set(COALESCE(volumes_state, '{}'::jsonb), '{monthlyPV}', '0')")
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Месячный PV активных аккаунтов без корневого
func (s *Store) TotalActiveMonthlyPV(ctx context.Context, exclude uuid.UUID) (float64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	var total float64
	row := conn.QueryRow(ctx,
		"SELECT COALESCE(SUM((volumes_state->>'monthlyPV')::numeric), 0) FROM accounts WHERE is_active = true AND id <> $1",
		exclude)
	err = row.Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Счетчик Pioneer на строке корневого аккаунта.
// check-then-increment под блокировкой строки, иначе две одновременные
// крупные покупки у границы когорты раздадут лишний слот.
func (s *Store) ClaimPioneerSlot(ctx context.Context, limit int) (slot int, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var rootID uuid.UUID
	var statusRaw []byte
	row := tx.QueryRow(ctx, "SELECT id, status_state FROM accounts WHERE upline IS NULL FOR UPDATE")
	err = row.Scan(&rootID, &statusRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("default account %w", model.ErrNotFound)
		}
		return 0, err
	}

	var status model.StatusState
	if len(statusRaw) > 0 {
		err = json.Unmarshal(statusRaw, &status)
		if err != nil {
			return 0, err
		}
	}
	if status.PioneerCount >= limit {
		return 0, model.ErrNoSlots
	}
	status.PioneerCount++

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, "UPDATE accounts SET status_state = $1 WHERE id = $2", statusJSON, rootID)
	if err != nil {
		return 0, err
	}
	err = tx.Commit(ctx)
	if err != nil {
		return 0, err
	}
	return status.PioneerCount, nil
}
