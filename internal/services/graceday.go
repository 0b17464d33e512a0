package mlm

import (
	"context"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Бонус Grace Day: плоский процент единицами продукта за покупку
// в льготный день, серия по месяцам и флаг лояльности
type GraceDayService struct {
	logger    *zap.Logger
	db        interf.AccountStorage
	purchases interf.PurchaseStorage
	bonuses   interf.BonusStorage
	grant     *GrantService
	notify    interf.Notifier
	clock     interf.Clock
	plan      model.Plan
}

func NewGraceDayService(logger *zap.Logger, db interf.AccountStorage, purchases interf.PurchaseStorage, bonuses interf.BonusStorage, grant *GrantService, notify interf.Notifier, clock interf.Clock, plan model.Plan) *GraceDayService {
	return &GraceDayService{logger, db, purchases, bonuses, grant, notify, clock, plan}
}

func (s *GraceDayService) ProcessPurchaseBonus(ctx context.Context, purchase model.Purchase) error {
	if purchase.IsAuto {
		return nil
	}
	grace, err := s.clock.IsGraceDay(ctx)
	if err != nil {
		return err
	}
	if !grace {
		return nil
	}

	month, err := s.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}
	now, err := s.clock.Now(ctx)
	if err != nil {
		return err
	}

	option, err := s.purchases.GetOption(ctx, purchase.OptionID)
	if err != nil {
		return err
	}
	amount := purchase.Total * s.plan.GraceDayPercent / 100

	_, err = s.grant.GrantProductBonus(ctx, purchase.AccountID, option, amount)
	if err != nil {
		return err
	}
	err = s.bonuses.CreateBonus(ctx, model.Bonus{
		ID:         uuid.New(),
		AccountID:  purchase.AccountID,
		PurchaseID: &purchase.ID,
		ProductID:  &purchase.ProductID,
		Type:       model.BonusGraceDay,
		Rate:       s.plan.GraceDayPercent,
		Amount:     amount,
		Status:     model.BonusPaid,
		Month:      month,
		CreatedAt:  now,
	})
	if err != nil {
		return err
	}

	return s.advanceStreak(ctx, purchase.AccountID, month)
}

// Серия Grace Day: +1 если предыдущая льготная покупка была ровно
// в прошлом месяце, иначе серия начинается заново.
// Повторные покупки в том же месяце серию не двигают.
func (s *GraceDayService) advanceStreak(ctx context.Context, accountID uuid.UUID, month string) error {
	account, err := s.db.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	volumes := account.Volumes
	if volumes.LastGraceMonth == month {
		return nil
	}

	if volumes.LastGraceMonth == PrevMonth(month) {
		volumes.GraceStreak++
	} else {
		volumes.GraceStreak = 1
	}
	volumes.LastGraceMonth = month

	qualified := volumes.GraceStreak >= s.plan.LoyaltyStreak
	justQualified := qualified && !volumes.LoyaltyQualified
	volumes.LoyaltyQualified = qualified

	err = s.db.SaveVolumesState(ctx, accountID, volumes)
	if err != nil {
		return err
	}

	s.logger.Info("grace day streak",
		zap.String("account", accountID.String()),
		zap.Int("streak", volumes.GraceStreak),
	)
	if justQualified && s.notify != nil {
		err = s.notify.Notify(ctx, accountID, "loyalty_qualified", nil)
		if err != nil {
			s.logger.Error(err.Error())
		}
	}
	return nil
}

// Граница 2-го числа: кто пропустил последний Grace Day,
// тому серию в ноль и снимаем флаг лояльности
func (s *GraceDayService) ResetMonthlyStreaks(ctx context.Context) error {
	month, err := s.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}
	ids, err := s.db.GetAllAccountIDs(ctx)
	if err != nil {
		return err
	}

	var reset int
	for _, id := range ids {
		account, err := s.db.GetAccount(ctx, id)
		if err != nil {
			s.logger.Error(err.Error())
			continue
		}
		volumes := account.Volumes
		if volumes.LastGraceMonth == month {
			continue
		}
		if volumes.GraceStreak == 0 && !volumes.LoyaltyQualified {
			continue
		}
		volumes.GraceStreak = 0
		volumes.LoyaltyQualified = false
		err = s.db.SaveVolumesState(ctx, id, volumes)
		if err != nil {
			s.logger.Error(err.Error())
			continue
		}
		reset++
	}

	s.logger.Info("grace day streaks reset",
		zap.String("month", month),
		zap.Int("accounts", reset),
	)
	return nil
}
