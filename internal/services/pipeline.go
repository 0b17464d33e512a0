package mlm

import (
	"context"

	interf "github.com/avafin/mlm/internal/interfaces"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Конвейер покупки: объемы -> бонусы -> комиссии.
// Этапы идут строго последовательно, но коммитят независимо:
// ошибка позднего этапа не откатывает ранние. Лучше частичный
// прогресс с безопасным повтором, чем строгая атомарность.
type Pipeline struct {
	logger     *zap.Logger
	purchases  interf.PurchaseStorage
	volume     *VolumeService
	grace      *GraceDayService
	invest     *InvestBonusService
	commission *CommissionService
}

func NewPipeline(logger *zap.Logger, purchases interf.PurchaseStorage, volume *VolumeService, grace *GraceDayService, invest *InvestBonusService, commission *CommissionService) *Pipeline {
	return &Pipeline{logger, purchases, volume, grace, invest, commission}
}

func (p *Pipeline) HandlePurchase(ctx context.Context, purchaseID uuid.UUID) error {
	purchase, err := p.purchases.GetPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	log := p.logger.With(
		zap.String("purchase", purchase.ID.String()),
		zap.String("account", purchase.AccountID.String()),
	)

	err = p.volume.RecordPurchaseVolumes(ctx, purchase)
	if err != nil {
		log.Error("volume stage failed", zap.Error(err))
	}

	err = p.grace.ProcessPurchaseBonus(ctx, purchase)
	if err != nil {
		log.Error("grace day stage failed", zap.Error(err))
	}

	err = p.invest.ProcessPurchaseBonus(ctx, purchase)
	if err != nil {
		log.Error("investment bonus stage failed", zap.Error(err))
	}

	_, _, err = p.commission.ProcessPurchase(ctx, purchase.ID)
	if err != nil {
		log.Error("commission stage failed", zap.Error(err))
	}

	log.Info("purchase processed")
	return nil
}
