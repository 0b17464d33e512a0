package mlm

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreatePurchase(ctx context.Context, purchase model.Purchase) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Insert("purchases").
		Columns("id", "account_id", "product_id", "option_id", "quantity", "total", "is_auto", "created_at").
		Values(purchase.ID, purchase.AccountID, purchase.ProductID, purchase.OptionID, purchase.Quantity, purchase.Total, purchase.IsAuto, purchase.CreatedAt).
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

func (s *Store) GetPurchase(ctx context.Context, id uuid.UUID) (model.Purchase, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.Purchase{}, err
	}
	defer conn.Release()

	sql, args, err := sq.Select("id", "account_id", "product_id", "option_id", "quantity", "total", "is_auto", "created_at").
		From("purchases").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return model.Purchase{}, err
	}

	var purchase model.Purchase
	row := conn.QueryRow(ctx, sql, args...)
	err = row.Scan(&purchase.ID, &purchase.AccountID, &purchase.ProductID, &purchase.OptionID,
		&purchase.Quantity, &purchase.Total, &purchase.IsAuto, &purchase.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, fmt.Errorf("purchase %s %w", id.String(), model.ErrNotFound)
		}
		return model.Purchase{}, err
	}
	return purchase, nil
}

// Накоплено аккаунтом по продукту за все время.
// Автопокупки не считаются: бонусные начисления не растят ступень.
func (s *Store) TotalByAccountProduct(ctx context.Context, account uuid.UUID, product uuid.UUID) (float64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	sql, args, err := sq.Select("COALESCE(SUM(total), 0)").
		From("purchases").
		Where(sq.Eq{"account_id": account}).
		Where(sq.Eq{"product_id": product}).
		Where(sq.Eq{"is_auto": false}).
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

func (s *Store) GetOption(ctx context.Context, id uuid.UUID) (model.ProductOption, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.ProductOption{}, err
	}
	defer conn.Release()

	var option model.ProductOption
	row := conn.QueryRow(ctx,
		"SELECT id, product_id, name, unit_price, active FROM product_options WHERE id = $1", id)
	err = row.Scan(&option.ID, &option.ProductID, &option.Name, &option.UnitPrice, &option.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ProductOption{}, fmt.Errorf("option %s %w", id.String(), model.ErrNotFound)
		}
		return model.ProductOption{}, err
	}
	return option, nil
}

// Самая дешевая активная опция продукта
func (s *Store) GetCheapestOption(ctx context.Context, product uuid.UUID) (model.ProductOption, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.ProductOption{}, err
	}
	defer conn.Release()

	var option model.ProductOption
	row := conn.QueryRow(ctx,
		"SELECT id, product_id, name, unit_price, active FROM product_options WHERE product_id = $1 AND active = true ORDER BY unit_price ASC LIMIT 1",
		product)
	err = row.Scan(&option.ID, &option.ProductID, &option.Name, &option.UnitPrice, &option.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ProductOption{}, fmt.Errorf("active option for product %s %w", product.String(), model.ErrNotFound)
		}
		return model.ProductOption{}, err
	}
	return option, nil
}

// Закрытый контур товарного бонуса одной транзакцией:
// кредит активного баланса, автопокупка, дебет на ту же сумму.
// Денежный эффект нулевой, количество в портфеле растет.
func (s *Store) GrantProductBonus(ctx context.Context, account uuid.UUID, option model.ProductOption, amount float64) (purchase model.Purchase, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return model.Purchase{}, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Purchase{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// блокируем строку с балансом
	var balance float64
	row := tx.QueryRow(ctx, "SELECT balance_active FROM accounts WHERE id = $1 FOR UPDATE", account)
	err = row.Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, fmt.Errorf("account %s %w", account.String(), model.ErrNotFound)
		}
		return model.Purchase{}, err
	}

	// кредит
	_, err = tx.Exec(ctx, "UPDATE accounts SET balance_active = balance_active + $1 WHERE id = $2", amount, account)
	if err != nil {
		return model.Purchase{}, err
	}

	quantity := int(amount / option.UnitPrice)
	purchase = model.Purchase{
		ID:        uuid.New(),
		AccountID: account,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Quantity:  quantity,
		Total:     amount,
		IsAuto:    true,
	}
	sql, args, err := sq.Insert("purchases").
		Columns("id", "account_id", "product_id", "option_id", "quantity", "total", "is_auto", "created_at").
		Values(purchase.ID, purchase.AccountID, purchase.ProductID, purchase.OptionID, purchase.Quantity, purchase.Total, true, sq.Expr("now()")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		s.logSQL(err, sql, args)
		return model.Purchase{}, err
	}
	_, err = tx.Exec(ctx, sql, args...)
	if err != nil {
		return model.Purchase{}, err
	}

	// дебет на ту же сумму
	_, err = tx.Exec(ctx, "UPDATE accounts SET balance_active = balance_active - $1 WHERE id = $2", amount, account)
	if err != nil {
		return model.Purchase{}, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return model.Purchase{}, err
	}
	return purchase, nil
}
