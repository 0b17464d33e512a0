package mlm

import (
	"context"
	"sort"
	"sync"
	"time"

	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
)

// In-memory стор для тестов сервисов: то же поведение, что у Postgres-слоя
type memStore struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]model.Account
	purchases map[uuid.UUID]model.Purchase
	options   map[uuid.UUID]model.ProductOption
	bonuses   []model.Bonus
	tasks     []model.VolumeTask
	pools     map[string]model.GlobalPool
	history   []model.RankHistory
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  make(map[uuid.UUID]model.Account),
		purchases: make(map[uuid.UUID]model.Purchase),
		options:   make(map[uuid.UUID]model.ProductOption),
		pools:     make(map[string]model.GlobalPool),
	}
}

func (m *memStore) addAccount(account model.Account) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	m.accounts[account.ID] = account
	return account
}

func (m *memStore) addOption(option model.ProductOption) model.ProductOption {
	m.mu.Lock()
	defer m.mu.Unlock()
	if option.ID == uuid.Nil {
		option.ID = uuid.New()
	}
	m.options[option.ID] = option
	return option
}

func (m *memStore) addPurchase(purchase model.Purchase) model.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	m.purchases[purchase.ID] = purchase
	return purchase
}

// AccountStorage

func (m *memStore) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return account, nil
}

func (m *memStore) GetDefaultAccount(ctx context.Context) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Upline == nil {
			return account, nil
		}
	}
	return model.Account{}, model.ErrNotFound
}

func (m *memStore) GetDirectDownline(ctx context.Context, id uuid.UUID) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var children []model.Account
	for _, account := range m.accounts {
		if account.Upline != nil && *account.Upline == id {
			children = append(children, account)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (m *memStore) GetAllAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) AddPersonalVolume(ctx context.Context, id uuid.UUID, amount float64, month string, activationPV float64) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	account.PersonalVolume += amount
	account.Volumes.MonthlyPV += amount
	if !account.IsActive && account.Volumes.MonthlyPV >= activationPV {
		account.IsActive = true
		account.Status.LastActiveMonth = month
	}
	m.accounts[id] = account
	return account, nil
}

func (m *memStore) AddFullVolume(ctx context.Context, id uuid.UUID, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.ErrNotFound
	}
	account.FullVolume += amount
	m.accounts[id] = account
	return nil
}

func (m *memStore) SaveTotalVolumeState(ctx context.Context, id uuid.UUID, state model.TotalVolumeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.ErrNotFound
	}
	account.TotalVolume = state
	m.accounts[id] = account
	return nil
}

func (m *memStore) SaveVolumesState(ctx context.Context, id uuid.UUID, state model.VolumesState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.ErrNotFound
	}
	account.Volumes = state
	m.accounts[id] = account
	return nil
}

func (m *memStore) SaveStatusState(ctx context.Context, id uuid.UUID, state model.StatusState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.ErrNotFound
	}
	account.Status = state
	m.accounts[id] = account
	return nil
}

func (m *memStore) SetRank(ctx context.Context, id uuid.UUID, rank model.Rank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.ErrNotFound
	}
	account.Rank = rank
	m.accounts[id] = account
	return nil
}

func (m *memStore) ResetMonthlyVolumes(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, account := range m.accounts {
		account.Volumes.MonthlyPV = 0
		account.IsActive = false
		m.accounts[id] = account
		count++
	}
	return count, nil
}

func (m *memStore) TotalActiveMonthlyPV(ctx context.Context, exclude uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for id, account := range m.accounts {
		if id == exclude || !account.IsActive {
			continue
		}
		total += account.Volumes.MonthlyPV
	}
	return total, nil
}

func (m *memStore) ClaimPioneerSlot(ctx context.Context, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, account := range m.accounts {
		if account.Upline != nil {
			continue
		}
		if account.Status.PioneerCount >= limit {
			return 0, model.ErrNoSlots
		}
		account.Status.PioneerCount++
		m.accounts[id] = account
		return account.Status.PioneerCount, nil
	}
	return 0, model.ErrNotFound
}

// PurchaseStorage

func (m *memStore) CreatePurchase(ctx context.Context, purchase model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[purchase.ID] = purchase
	return nil
}

func (m *memStore) GetPurchase(ctx context.Context, id uuid.UUID) (model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purchase, ok := m.purchases[id]
	if !ok {
		return model.Purchase{}, model.ErrNotFound
	}
	return purchase, nil
}

func (m *memStore) TotalByAccountProduct(ctx context.Context, account uuid.UUID, product uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, purchase := range m.purchases {
		if purchase.AccountID == account && purchase.ProductID == product && !purchase.IsAuto {
			total += purchase.Total
		}
	}
	return total, nil
}

func (m *memStore) GetOption(ctx context.Context, id uuid.UUID) (model.ProductOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	option, ok := m.options[id]
	if !ok {
		return model.ProductOption{}, model.ErrNotFound
	}
	return option, nil
}

func (m *memStore) GetCheapestOption(ctx context.Context, product uuid.UUID) (model.ProductOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cheapest model.ProductOption
	found := false
	for _, option := range m.options {
		if option.ProductID != product || !option.Active {
			continue
		}
		if !found || option.UnitPrice < cheapest.UnitPrice {
			cheapest = option
			found = true
		}
	}
	if !found {
		return model.ProductOption{}, model.ErrNotFound
	}
	return cheapest, nil
}

func (m *memStore) GrantProductBonus(ctx context.Context, account uuid.UUID, option model.ProductOption, amount float64) (model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[account]
	if !ok {
		return model.Purchase{}, model.ErrNotFound
	}
	acc.BalanceActive += amount
	purchase := model.Purchase{
		ID:        uuid.New(),
		AccountID: account,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Quantity:  int(amount / option.UnitPrice),
		Total:     amount,
		IsAuto:    true,
		CreatedAt: time.Now(),
	}
	m.purchases[purchase.ID] = purchase
	acc.BalanceActive -= amount
	m.accounts[account] = acc
	return purchase, nil
}

// BonusStorage

func (m *memStore) CreateBonus(ctx context.Context, bonus model.Bonus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bonuses = append(m.bonuses, bonus)
	return nil
}

func (m *memStore) GetBonuses(ctx context.Context, account uuid.UUID, from time.Time, to time.Time) ([]model.Bonus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Bonus
	for _, bonus := range m.bonuses {
		if bonus.AccountID != account {
			continue
		}
		if bonus.CreatedAt.Before(from) || bonus.CreatedAt.After(to) {
			continue
		}
		result = append(result, bonus)
	}
	return result, nil
}

func (m *memStore) SumByAccountProduct(ctx context.Context, account uuid.UUID, product uuid.UUID, bonusType string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, bonus := range m.bonuses {
		if bonus.AccountID != account || bonus.Type != bonusType {
			continue
		}
		if bonus.ProductID == nil || *bonus.ProductID != product {
			continue
		}
		total += bonus.Amount
	}
	return total, nil
}

func (m *memStore) ExistsByPurchaseType(ctx context.Context, purchase uuid.UUID, bonusType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bonus := range m.bonuses {
		if bonus.PurchaseID != nil && *bonus.PurchaseID == purchase && bonus.Type == bonusType {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) PayPoolBonuses(ctx context.Context, beforeMonth string) ([]model.Bonus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paid []model.Bonus
	for i, bonus := range m.bonuses {
		if bonus.Type != model.BonusGlobalPool || bonus.Status != model.BonusPending {
			continue
		}
		if bonus.Month >= beforeMonth {
			continue
		}
		m.bonuses[i].Status = model.BonusPaid
		account := m.accounts[bonus.AccountID]
		account.BalancePassive += bonus.Amount
		m.accounts[bonus.AccountID] = account
		paid = append(paid, m.bonuses[i])
	}
	return paid, nil
}

func (m *memStore) bonusesByType(bonusType string) []model.Bonus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Bonus
	for _, bonus := range m.bonuses {
		if bonus.Type == bonusType {
			result = append(result, bonus)
		}
	}
	return result
}

// TaskStorage

func (m *memStore) EnqueueRecalc(ctx context.Context, account uuid.UUID, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.AccountID == account && (task.Status == model.TaskPending || task.Status == model.TaskProcessing) {
			return nil
		}
	}
	m.tasks = append(m.tasks, model.VolumeTask{
		ID:        uuid.New(),
		AccountID: account,
		Priority:  priority,
		Status:    model.TaskPending,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) ClaimBatch(ctx context.Context, batch int) ([]model.VolumeTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []int
	for i, task := range m.tasks {
		if task.Status == model.TaskPending {
			pending = append(pending, i)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := m.tasks[pending[i]], m.tasks[pending[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if len(pending) > batch {
		pending = pending[:batch]
	}
	var claimed []model.VolumeTask
	for _, i := range pending {
		m.tasks[i].Status = model.TaskProcessing
		m.tasks[i].Attempts++
		claimed = append(claimed, m.tasks[i])
	}
	return claimed, nil
}

func (m *memStore) CompleteTask(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, task := range m.tasks {
		if task.ID == id {
			m.tasks[i].Status = model.TaskCompleted
			m.tasks[i].LastError = ""
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memStore) FailTask(ctx context.Context, id uuid.UUID, lasterr string, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, task := range m.tasks {
		if task.ID == id {
			if task.Attempts >= maxAttempts {
				m.tasks[i].Status = model.TaskFailed
			} else {
				m.tasks[i].Status = model.TaskPending
			}
			m.tasks[i].LastError = lasterr
			return nil
		}
	}
	return model.ErrNotFound
}

// PoolStorage

func (m *memStore) CreatePool(ctx context.Context, pool model.GlobalPool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[pool.Month]; ok {
		return model.ErrDuplicate
	}
	m.pools[pool.Month] = pool
	return nil
}

func (m *memStore) GetPoolByMonth(ctx context.Context, month string) (model.GlobalPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[month]
	if !ok {
		return model.GlobalPool{}, model.ErrNotFound
	}
	return pool, nil
}

func (m *memStore) MarkPoolDistributed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for month, pool := range m.pools {
		if pool.ID == id {
			pool.Status = model.PoolDistributed
			m.pools[month] = pool
			return nil
		}
	}
	return model.ErrNotFound
}

// RankHistoryStorage

func (m *memStore) AppendRankHistory(ctx context.Context, entry model.RankHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	return nil
}

// Часы с фиксированными показаниями
type testClock struct {
	now   time.Time
	grace bool
}

func (c testClock) Now(ctx context.Context) (time.Time, error) {
	return c.now, nil
}

func (c testClock) IsGraceDay(ctx context.Context) (bool, error) {
	return c.grace, nil
}

func (c testClock) CurrentMonth(ctx context.Context) (string, error) {
	return c.now.Format("2006-01"), nil
}
