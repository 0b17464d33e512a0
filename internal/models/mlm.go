package mlm

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("already exists")
	ErrNotQualified = errors.New("not qualified")
	ErrNoSlots      = errors.New("no slots left")
)

// Ранги партнеров
type Rank int

const (
	RankStart Rank = iota
	RankBuilder
	RankGrowth
	RankLeadership
	RankDirector
)

func (r Rank) String() string {
	switch r {
	case RankStart:
		return "start"
	case RankBuilder:
		return "builder"
	case RankGrowth:
		return "growth"
	case RankLeadership:
		return "leadership"
	case RankDirector:
		return "director"
	}
	return "unknown"
}

// Способ получения ранга
const (
	QualifyNatural  = "natural"
	QualifyAssigned = "assigned"
	QualifyFounder  = "founder"
)

// Месячные объемы и счетчики Grace Day
type VolumesState struct {
	MonthlyPV        float64 `json:"monthlyPV"`
	GraceStreak      int     `json:"graceStreak"`
	LastGraceMonth   string  `json:"lastGraceMonth"` // "YYYY-MM"
	LoyaltyQualified bool    `json:"loyaltyQualified"`
}

// Ветка в разрезе квалификационного объема
type BranchVolume struct {
	AccountID   uuid.UUID `json:"accountId"`
	Name        string    `json:"name"`
	FullVolume  float64   `json:"fullVolume"`
	Capped      float64   `json:"capped"`
	WasCapped   bool      `json:"wasCapped"`
	HasDirector bool      `json:"hasDirector"`
}

// Последний рассчитанный квалификационный объем
type TotalVolumeState struct {
	QualifyingVolume float64        `json:"qualifyingVolume"`
	FullVolume       float64        `json:"fullVolume"`
	Gap              float64        `json:"gap"`
	Branches         []BranchVolume `json:"branches"`
	ComputedAt       time.Time      `json:"computedAt"` // нулевое время = еще не рассчитан
}

func (t TotalVolumeState) Computed() bool {
	return !t.ComputedAt.IsZero()
}

// Статусы аккаунта: Pioneer, ранг от фаундера, последний активный месяц
type StatusState struct {
	IsPioneer       bool       `json:"isPioneer"`
	PioneerDate     *time.Time `json:"pioneerDate,omitempty"`
	PioneerCount    int        `json:"pioneerCount"` // глобальный счетчик, ведется только на корневом аккаунте
	FounderRank     *Rank      `json:"founderRank,omitempty"`
	IsFounder       bool       `json:"isFounder"`
	LastActiveMonth string     `json:"lastActiveMonth"`
}

// Аккаунт партнера
type Account struct {
	ID             uuid.UUID
	Name           string
	Upline         *uuid.UUID // только у корневого аккаунта нет аплайна
	Rank           Rank
	IsActive       bool
	PersonalVolume float64 // объем собственных покупок за все время
	FullVolume     float64 // сырой объем всей структуры, без капа
	BalanceActive  float64
	BalancePassive float64
	Volumes        VolumesState
	TotalVolume    TotalVolumeState
	Status         StatusState
	CreatedAt      time.Time
}

// Покупка - неизменяемое денежное событие
type Purchase struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	ProductID uuid.UUID
	OptionID  uuid.UUID
	Quantity  int
	Total     float64
	IsAuto    bool // автопокупка, созданная бонусным начислением
	CreatedAt time.Time
}

// Продукт и его опция (пакет)
type ProductOption struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Name      string
	UnitPrice float64
	Active    bool
}

// Типы начислений
const (
	BonusDifferential = "differential"
	BonusCompression  = "system_compression"
	BonusPioneer      = "pioneer"
	BonusReferral     = "referral"
	BonusInvestment   = "investment_package"
	BonusGraceDay     = "grace_day"
	BonusTransfer     = "transfer_bonus"
	BonusGlobalPool   = "global_pool"
)

// Статусы начислений
const (
	BonusPending = "pending"
	BonusPaid    = "paid"
	BonusError   = "error"
)

// Начисление комиссии или бонуса
type Bonus struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	PurchaseID *uuid.UUID // пусто для выплат из пула
	SourceID   *uuid.UUID // даунлайн, чья покупка породила начисление
	ProductID  *uuid.UUID // продукт, по которому начислен инвестиционный бонус
	Type       string
	Rate       float64 // примененный процент
	Amount     float64
	Compressed bool // в сумму вошла компрессия неактивных
	Status     string
	Month      string // "YYYY-MM", для выплат из пула
	CreatedAt  time.Time
}

// Статусы задач пересчета
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Задача пересчета квалификационного объема
type VolumeTask struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Priority  int
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Статусы месячного пула
const (
	PoolCalculated  = "calculated"
	PoolDistributed = "distributed"
)

// Глобальный пул за календарный месяц
type GlobalPool struct {
	ID            uuid.UUID
	Month         string // "YYYY-MM"
	CompanyVolume float64
	Percent       float64
	PoolSize      float64
	Qualified     []uuid.UUID
	Share         float64
	Status        string
	CreatedAt     time.Time
}

// Запись истории рангов
type RankHistory struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	OldRank   Rank
	NewRank   Rank
	Method    string
	CreatedAt time.Time
}
