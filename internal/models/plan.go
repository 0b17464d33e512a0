package mlm

// Требования для квалификации на ранг
type RankRequirement struct {
	Rank           Rank    `bson:"rank" json:"rank"`
	DisplayName    string  `bson:"displayName" json:"displayName"`
	Percent        float64 `bson:"percent" json:"percent"` // процент дифференциальной комиссии
	TeamVolume     float64 `bson:"teamVolume" json:"teamVolume"`
	ActivePartners int     `bson:"activePartners" json:"activePartners"`
}

// Ступень инвестиционного бонуса: порог накопленных покупок -> процент
type InvestTier struct {
	Threshold float64 `bson:"threshold" json:"threshold"`
	Percent   float64 `bson:"percent" json:"percent"`
}

// Маркетинговый план: таблицы рангов и ступеней, процентные константы
type Plan struct {
	Ranks             []RankRequirement `bson:"ranks" json:"ranks"`
	Tiers             []InvestTier      `bson:"tiers" json:"tiers"`
	CeilingPercent    float64           `bson:"ceilingPercent" json:"ceilingPercent"`       // потолок дифференциальной комиссии
	PioneerPercent    float64           `bson:"pioneerPercent" json:"pioneerPercent"`       // надбавка Pioneer
	PioneerSlots      int               `bson:"pioneerSlots" json:"pioneerSlots"`           // размер когорты Pioneer
	ReferralPercent   float64           `bson:"referralPercent" json:"referralPercent"`     // реферальный бонус
	ReferralMinAmount float64           `bson:"referralMinAmount" json:"referralMinAmount"` // минимальная покупка для реферального и Pioneer
	GlobalPoolPercent float64           `bson:"globalPoolPercent" json:"globalPoolPercent"` // процент пула от объема компании
	GraceDayPercent   float64           `bson:"graceDayPercent" json:"graceDayPercent"`     // бонус Grace Day
	ActivationPV      float64           `bson:"activationPV" json:"activationPV"`           // месячный PV для активности
	LoyaltyStreak     int               `bson:"loyaltyStreak" json:"loyaltyStreak"`         // серия Grace Day для лояльности
	MaxWalkDepth      int               `bson:"maxWalkDepth" json:"maxWalkDepth"`           // глубина обхода дерева
}

// План по умолчанию, если в хранилище конфигурации пусто
func DefaultPlan() Plan {
	return Plan{
		Ranks: []RankRequirement{
			{Rank: RankStart, DisplayName: "Start", Percent: 0, TeamVolume: 0, ActivePartners: 0},
			{Rank: RankBuilder, DisplayName: "Builder", Percent: 8, TeamVolume: 10000, ActivePartners: 3},
			{Rank: RankGrowth, DisplayName: "Growth", Percent: 12, TeamVolume: 25000, ActivePartners: 5},
			{Rank: RankLeadership, DisplayName: "Leadership", Percent: 15, TeamVolume: 50000, ActivePartners: 8},
			{Rank: RankDirector, DisplayName: "Director", Percent: 18, TeamVolume: 100000, ActivePartners: 12},
		},
		Tiers: []InvestTier{
			{Threshold: 1000, Percent: 5},
			{Threshold: 5000, Percent: 10},
			{Threshold: 10000, Percent: 15},
			{Threshold: 20000, Percent: 20},
		},
		CeilingPercent:    18,
		PioneerPercent:    4,
		PioneerSlots:      50,
		ReferralPercent:   1,
		ReferralMinAmount: 5000,
		GlobalPoolPercent: 2,
		GraceDayPercent:   5,
		ActivationPV:      200,
		LoyaltyStreak:     3,
		MaxWalkDepth:      50,
	}
}

// Требование для ранга; если ранг выше последнего в таблице, берется последний
func (p Plan) Requirement(r Rank) RankRequirement {
	for _, req := range p.Ranks {
		if req.Rank == r {
			return req
		}
	}
	if len(p.Ranks) > 0 {
		if r > p.Ranks[len(p.Ranks)-1].Rank {
			return p.Ranks[len(p.Ranks)-1]
		}
	}
	return RankRequirement{Rank: r}
}

// Процент комиссии ранга
func (p Plan) Percent(r Rank) float64 {
	return p.Requirement(r).Percent
}

// Высший ранг плана
func (p Plan) TopRank() Rank {
	if len(p.Ranks) == 0 {
		return RankStart
	}
	return p.Ranks[len(p.Ranks)-1].Rank
}

// Ступень для накопленной суммы: последняя, чей порог достигнут
func (p Plan) TierFor(total float64) (InvestTier, bool) {
	var found InvestTier
	var ok bool
	for _, t := range p.Tiers {
		if total >= t.Threshold {
			found = t
			ok = true
		}
	}
	return found, ok
}
