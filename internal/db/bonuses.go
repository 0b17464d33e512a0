package mlm

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateBonus(ctx context.Context, bonus model.Bonus) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Insert("bonuses").
		Columns("id", "account_id", "purchase_id", "source_id", "product_id",
			"type", "rate", "amount", "compressed", "status", "month", "created_at").
		Values(bonus.ID, bonus.AccountID, bonus.PurchaseID, bonus.SourceID, bonus.ProductID,
			bonus.Type, bonus.Rate, bonus.Amount, bonus.Compressed, bonus.Status, bonus.Month, bonus.CreatedAt).
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

func (s *Store) GetBonuses(ctx context.Context, account uuid.UUID, from time.Time, to time.Time) ([]model.Bonus, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	sql, args, err := sq.Select("id", "account_id", "purchase_id", "source_id", "product_id",
		"type", "rate", "amount", "compressed", "status", "month", "created_at").
		From("bonuses").
		Where(sq.Eq{"account_id": account}).
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.LtOrEq{"created_at": to}).
		OrderBy("created_at DESC").
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

	var bonuses []model.Bonus
	for rows.Next() {
		var bonus model.Bonus
		var purchaseID, sourceID, productID pgtype.UUID
		err = rows.Scan(&bonus.ID, &bonus.AccountID, &purchaseID, &sourceID, &productID,
			&bonus.Type, &bonus.Rate, &bonus.Amount, &bonus.Compressed, &bonus.Status, &bonus.Month, &bonus.CreatedAt)
		if err != nil {
			return nil, err
		}
		if purchaseID.Status == pgtype.Present {
			id, _ := uuid.FromBytes(purchaseID.Bytes[:])
			bonus.PurchaseID = &id
		}
		if sourceID.Status == pgtype.Present {
			id, _ := uuid.FromBytes(sourceID.Bytes[:])
			bonus.SourceID = &id
		}
		if productID.Status == pgtype.Present {
			id, _ := uuid.FromBytes(productID.Bytes[:])
			bonus.ProductID = &id
		}
		bonuses = append(bonuses, bonus)
	}
	return bonuses, rows.Err()
}

// Уже выдано аккаунту по продукту начислений данного типа
func (s *Store) SumByAccountProduct(ctx context.Context, account uuid.UUID, product uuid.UUID, bonusType string) (float64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	sql, args, err := sq.Select("COALESCE(SUM(amount), 0)").
		From("bonuses").
		Where(sq.Eq{"account_id": account}).
		Where(sq.Eq{"product_id": product}).
		Where(sq.Eq{"type": bonusType}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return 0, err
	}

	var total float64
	err = conn.QueryRow(ctx, sql, args...).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ExistsByPurchaseType(ctx context.Context, purchase uuid.UUID, bonusType string) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	var one int
	row := conn.QueryRow(ctx,
		"SELECT 1 FROM bonuses WHERE purchase_id = $1 AND type = $2 LIMIT 1", purchase, bonusType)
	err = row.Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Выплата отложенных бонусов пула за прошлые месяцы:
// статус paid и кредит пассивного баланса одной транзакцией
func (s *Store) PayPoolBonuses(ctx context.Context, beforeMonth string) (paid []model.Bonus, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		"SELECT id, account_id, amount, month FROM bonuses WHERE type = $1 AND status = $2 AND month < $3 FOR UPDATE",
		model.BonusGlobalPool, model.BonusPending, beforeMonth)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var bonus model.Bonus
		err = rows.Scan(&bonus.ID, &bonus.AccountID, &bonus.Amount, &bonus.Month)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bonus.Type = model.BonusGlobalPool
		bonus.Status = model.BonusPaid
		paid = append(paid, bonus)
	}
	rows.Close()
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	for _, bonus := range paid {
		_, err = tx.Exec(ctx, "UPDATE bonuses SET status = $1 WHERE id = $2", model.BonusPaid, bonus.ID)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, "UPDATE accounts SET balance_passive = balance_passive + $1 WHERE id = $2",
			bonus.Amount, bonus.AccountID)
		if err != nil {
			return nil, err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return paid, nil
}
