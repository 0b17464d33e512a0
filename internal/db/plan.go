package mlm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	model "github.com/avafin/mlm/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Маркетинговый план живет в Mongo: таблицы рангов и ступеней
// правит оператор, ядро только читает
type PlanDB struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

func NewPlanDB() (*PlanDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mng := os.Getenv("MLM_MONGO")
	if mng == "" {
		return nil, fmt.Errorf("env MLM_MONGO is not set")
	}

	options := options.Client().ApplyURI("mongodb://" + mng)
	client, err := mongo.Connect(ctx, options)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	db := client.Database("mlmDB")
	coll := db.Collection("plan")

	return &PlanDB{client, coll}, nil
}

func (p *PlanDB) GetPlan(ctx context.Context) (model.Plan, error) {
	var plan model.Plan
	err := p.coll.FindOne(ctx, bson.M{"current": true}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Plan{}, fmt.Errorf("plan %w", model.ErrNotFound)
		}
		return model.Plan{}, err
	}
	return plan, nil
}

func (p *PlanDB) SavePlan(ctx context.Context, plan model.Plan) error {
	update := bson.M{"$set": bson.M{
		"current":           true,
		"ranks":             plan.Ranks,
		"tiers":             plan.Tiers,
		"ceilingPercent":    plan.CeilingPercent,
		"pioneerPercent":    plan.PioneerPercent,
		"pioneerSlots":      plan.PioneerSlots,
		"referralPercent":   plan.ReferralPercent,
		"referralMinAmount": plan.ReferralMinAmount,
		"globalPoolPercent": plan.GlobalPoolPercent,
		"graceDayPercent":   plan.GraceDayPercent,
		"activationPV":      plan.ActivationPV,
		"loyaltyStreak":     plan.LoyaltyStreak,
		"maxWalkDepth":      plan.MaxWalkDepth,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := p.coll.UpdateOne(ctx, bson.M{"current": true}, update, opts)
	return err
}
