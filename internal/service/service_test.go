package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/interact-app/points-ledger/internal/model"
	"github.com/interact-app/points-ledger/internal/repository"
	"github.com/interact-app/points-ledger/internal/rules"
)

// memRepo воспроизводит семантику репозитория в памяти: проверку баланса,
// ключи идемпотентности и атомарность переводов.
type memRepo struct {
	levelFor func(int64) int

	accounts map[int64]*model.Account
	ledger   []model.LedgerEntry
	keys     map[string]bool

	items map[int64]*model.RewardItem
	reds  map[int64]*model.Redemption

	nextRedemptionID int64

	mismatches []repository.BalanceMismatch
}

func newMemRepo(r *rules.Rules) *memRepo {
	return &memRepo{
		levelFor: r.LevelFor,
		accounts: make(map[int64]*model.Account),
		keys:     make(map[string]bool),
		items:    make(map[int64]*model.RewardItem),
		reds:     make(map[int64]*model.Redemption),
	}
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	return 1, nil
}

func (m *memRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return nil, repository.ErrUserNotFound
}

func (m *memRepo) account(id int64) *model.Account {
	acc, ok := m.accounts[id]
	if !ok {
		acc = &model.Account{UserID: id, Level: m.levelFor(0)}
		m.accounts[id] = acc
	}
	return acc
}

func (m *memRepo) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *memRepo) applyLocked(acc *model.Account, amount int64, reason model.ReasonCode, reference string) error {
	if acc.Balance+amount < 0 {
		return repository.ErrInsufficientBalance
	}
	key := fmt.Sprintf("%d/%s/%s", acc.UserID, reason, reference)
	if m.keys[key] {
		return repository.ErrDuplicateAward
	}
	m.keys[key] = true

	acc.Balance += amount
	if amount > 0 {
		acc.LifetimeEarned += amount
	}
	acc.Level = m.levelFor(acc.LifetimeEarned)
	m.ledger = append(m.ledger, model.LedgerEntry{
		AccountID: acc.UserID,
		Amount:    amount,
		Reason:    reason,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *memRepo) ApplyDelta(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string) (*model.Account, error) {
	acc := m.account(accountID)
	if err := m.applyLocked(acc, amount, reason, reference); err != nil {
		return nil, err
	}
	cp := *acc
	return &cp, nil
}

func (m *memRepo) ApplyAward(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string, nextStreak func(*model.Account) int) (*model.Account, error) {
	acc := m.account(accountID)
	streak := nextStreak(acc)
	if err := m.applyLocked(acc, amount, reason, reference); err != nil {
		return nil, err
	}
	now := time.Now()
	acc.StreakCount = streak
	acc.LastActivityDate = &now
	cp := *acc
	return &cp, nil
}

func (m *memRepo) TransferBonus(ctx context.Context, fromID, toID, amount int64, reference string) (*model.Account, error) {
	from := m.account(fromID)
	if from.Balance-amount < 0 {
		return nil, repository.ErrInsufficientBalance
	}
	if err := m.applyLocked(from, -amount, model.ReasonBonusGift, reference); err != nil {
		return nil, err
	}
	if err := m.applyLocked(m.account(toID), amount, model.ReasonBonusGift, reference); err != nil {
		return nil, err
	}
	cp := *from
	return &cp, nil
}

func (m *memRepo) Redeem(ctx context.Context, accountID, itemID int64, reference string) (*model.Redemption, *model.Account, error) {
	item, ok := m.items[itemID]
	if !ok {
		return nil, nil, repository.ErrItemNotFound
	}
	if !item.IsAvailable {
		return nil, nil, repository.ErrItemUnavailable
	}
	if item.ExpiresAt != nil && !item.ExpiresAt.After(time.Now()) {
		return nil, nil, repository.ErrItemExpired
	}
	if item.Stock != nil && *item.Stock <= 0 {
		return nil, nil, repository.ErrOutOfStock
	}

	acc := m.account(accountID)
	if err := m.applyLocked(acc, -item.PointsCost, model.ReasonPurchase, reference); err != nil {
		return nil, nil, err
	}

	if item.Stock != nil {
		*item.Stock--
	}

	status := model.RedemptionStatusPending
	if item.AutoFulfill {
		status = model.RedemptionStatusApproved
	}

	m.nextRedemptionID++
	red := &model.Redemption{
		ID:          m.nextRedemptionID,
		AccountID:   accountID,
		ItemID:      itemID,
		PointsSpent: item.PointsCost,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	m.reds[red.ID] = red

	cp := *acc
	rcp := *red
	return &rcp, &cp, nil
}

func (m *memRepo) SetRedemptionStatus(ctx context.Context, redemptionID int64, status model.RedemptionStatus) (*model.Redemption, error) {
	red, ok := m.reds[redemptionID]
	if !ok {
		return nil, repository.ErrRedemptionNotFound
	}
	red.Status = status
	cp := *red
	return &cp, nil
}

func (m *memRepo) LedgerByAccount(ctx context.Context, accountID int64) ([]model.LedgerEntry, error) {
	var res []model.LedgerEntry
	for _, e := range m.ledger {
		if e.AccountID == accountID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *memRepo) ReconstructBalance(ctx context.Context, accountID int64) (int64, error) {
	var sum int64
	for _, e := range m.ledger {
		if e.AccountID == accountID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *memRepo) FindBalanceMismatches(ctx context.Context) ([]repository.BalanceMismatch, error) {
	return m.mismatches, nil
}

func (m *memRepo) CreateRewardItem(ctx context.Context, item *model.RewardItem) (int64, error) {
	id := int64(len(m.items) + 1)
	cp := *item
	cp.ID = id
	m.items[id] = &cp
	return id, nil
}

func (m *memRepo) UpdateRewardItem(ctx context.Context, itemID int64, isAvailable *bool, stock *int64) (*model.RewardItem, error) {
	it, ok := m.items[itemID]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	if isAvailable != nil {
		it.IsAvailable = *isAvailable
	}
	if stock != nil {
		s := *stock
		it.Stock = &s
	}
	cp := *it
	return &cp, nil
}

func (m *memRepo) ListRewardItems(ctx context.Context, onlyAvailable bool) ([]model.RewardItem, error) {
	var res []model.RewardItem
	for _, it := range m.items {
		res = append(res, *it)
	}
	return res, nil
}

func (m *memRepo) RedemptionsByAccount(ctx context.Context, accountID int64) ([]model.Redemption, error) {
	var res []model.Redemption
	for _, rd := range m.reds {
		if rd.AccountID == accountID {
			res = append(res, *rd)
		}
	}
	return res, nil
}

type stubNotifier struct {
	levelUps    int
	redemptions int
}

func (n *stubNotifier) LevelUp(ctx context.Context, accountID int64, level int, title string) error {
	n.levelUps++
	return nil
}

func (n *stubNotifier) RedemptionCreated(ctx context.Context, red *model.Redemption) error {
	n.redemptions++
	return nil
}

func newTestService(t *testing.T) (*Service, *memRepo, *stubNotifier) {
	t.Helper()
	r := rules.Default()
	repo := newMemRepo(r)
	notifier := &stubNotifier{}
	return NewService(repo, r, notifier, zap.NewNop()), repo, notifier
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestAward_ResolvesAmountFromRules(t *testing.T) {
	svc, _, _ := newTestService(t)

	acc, err := svc.Award(context.Background(), 1, model.ReasonAttendance, "event-1", 0)
	if err != nil {
		t.Fatalf("Award error: %v", err)
	}
	if acc.Balance != 10 {
		t.Fatalf("balance = %d, want 10", acc.Balance)
	}
	if acc.LifetimeEarned != 10 {
		t.Fatalf("lifetime = %d, want 10", acc.LifetimeEarned)
	}
	if acc.Level != 1 {
		t.Fatalf("level = %d, want 1", acc.Level)
	}
}

func TestAward_InvalidReason(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Award(context.Background(), 1, model.ReasonPurchase, "ref", 0)
	if !errors.Is(err, ErrInvalidReason) {
		t.Fatalf("expected ErrInvalidReason, got %v", err)
	}
}

func TestAward_Idempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)

	if _, err := svc.Award(context.Background(), 1, model.ReasonAttendance, "event-1", 0); err != nil {
		t.Fatalf("first award error: %v", err)
	}

	_, err := svc.Award(context.Background(), 1, model.ReasonAttendance, "event-1", 0)
	if !errors.Is(err, repository.ErrDuplicateAward) {
		t.Fatalf("expected ErrDuplicateAward, got %v", err)
	}

	entries, _ := repo.LedgerByAccount(context.Background(), 1)
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	acc, _ := repo.GetAccount(context.Background(), 1)
	if acc.Balance != 10 {
		t.Fatalf("balance = %d, want 10 after duplicate", acc.Balance)
	}
}

func TestAward_GiftedBonusAddsToRuleValue(t *testing.T) {
	svc, _, _ := newTestService(t)

	acc, err := svc.Award(context.Background(), 1, model.ReasonRecognitionReceived, "rec-7", 15)
	if err != nil {
		t.Fatalf("Award error: %v", err)
	}
	if acc.Balance != 25 {
		t.Fatalf("balance = %d, want 25 (10 rule + 15 bonus)", acc.Balance)
	}
}

func TestAward_NegativeBonusRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Award(context.Background(), 1, model.ReasonRecognitionReceived, "rec-7", -5)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAward_StreakMilestoneBonus(t *testing.T) {
	svc, repo, _ := newTestService(t)

	// Счёт с серией из двух дней, последняя активность вчера.
	yesterday := time.Now().AddDate(0, 0, -1)
	repo.accounts[1] = &model.Account{
		UserID:           1,
		Balance:          20,
		LifetimeEarned:   20,
		Level:            1,
		StreakCount:      2,
		LastActivityDate: &yesterday,
	}

	acc, err := svc.Award(context.Background(), 1, model.ReasonAttendance, "event-9", 0)
	if err != nil {
		t.Fatalf("Award error: %v", err)
	}

	if acc.StreakCount != 3 {
		t.Fatalf("streak = %d, want 3", acc.StreakCount)
	}
	// 20 + 10 за участие + 10 бонус за серию из 3 дней
	if acc.Balance != 40 {
		t.Fatalf("balance = %d, want 40", acc.Balance)
	}

	entries, _ := repo.LedgerByAccount(context.Background(), 1)
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2 (award + streak bonus)", len(entries))
	}
}

func TestAward_LevelUpNotification(t *testing.T) {
	svc, _, notifier := newTestService(t)

	// 10 (правило) + 95 (бонус) = 105, порог второго уровня пройден
	acc, err := svc.Award(context.Background(), 1, model.ReasonRecognitionReceived, "rec-1", 95)
	if err != nil {
		t.Fatalf("Award error: %v", err)
	}
	if acc.Level != 2 {
		t.Fatalf("level = %d, want 2", acc.Level)
	}
	if notifier.levelUps != 1 {
		t.Fatalf("level up notifications = %d, want 1", notifier.levelUps)
	}
}

func TestTransferBonus_InsufficientBalanceLeavesBothUntouched(t *testing.T) {
	svc, repo, _ := newTestService(t)

	if _, err := svc.Award(context.Background(), 1, model.ReasonAttendance, "e1", 20); err != nil {
		t.Fatalf("seed award error: %v", err)
	}
	// Баланс отправителя 30
	_, err := svc.TransferBonus(context.Background(), 1, 2, 50, "gift-1")
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	from, _ := repo.GetAccount(context.Background(), 1)
	if from.Balance != 30 {
		t.Fatalf("sender balance = %d, want 30", from.Balance)
	}
	if _, err := repo.GetAccount(context.Background(), 2); !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("recipient account must not be created by failed transfer")
	}
}

func TestTransferBonus_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.TransferBonus(context.Background(), 1, 2, 0, "ref"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero transfer, got %v", err)
	}
	if _, err := svc.TransferBonus(context.Background(), 1, 1, 10, "ref"); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestAdminAdjust_GeneratesReference(t *testing.T) {
	svc, repo, _ := newTestService(t)

	if _, err := svc.AdminAdjust(context.Background(), 1, 100, ""); err != nil {
		t.Fatalf("AdminAdjust error: %v", err)
	}

	entries, _ := repo.LedgerByAccount(context.Background(), 1)
	if len(entries) != 1 || entries[0].Reference == "" {
		t.Fatalf("adjustment must produce a ledger entry with generated reference")
	}
	if entries[0].Reason != model.ReasonAdminAdjustment {
		t.Fatalf("reason = %s, want admin_adjustment", entries[0].Reason)
	}
}

func TestAdminAdjust_ZeroAmount(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.AdminAdjust(context.Background(), 1, 0, "ref"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSetRedemptionStatus_UnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SetRedemptionStatus(context.Background(), 1, model.RedemptionStatus("shipped"))
	if !errors.Is(err, repository.ErrInvalidStatusChange) {
		t.Fatalf("expected ErrInvalidStatusChange, got %v", err)
	}
}

// TestPointsLifecycleScenario проверяет сквозной сценарий: начисления,
// обмен и отказ по нехватке баллов, с согласованностью журнала и баланса.
func TestPointsLifecycleScenario(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Award(ctx, 1, model.ReasonAttendance, "event-1", 0)
	if err != nil {
		t.Fatalf("attendance award error: %v", err)
	}
	if acc.Balance != 10 || acc.LifetimeEarned != 10 || acc.Level != 1 {
		t.Fatalf("after attendance: {%d,%d,%d}, want {10,10,1}", acc.Balance, acc.LifetimeEarned, acc.Level)
	}

	acc, err = svc.Award(ctx, 1, model.ReasonActivityCompletion, "activity-1", 0)
	if err != nil {
		t.Fatalf("activity award error: %v", err)
	}
	if acc.Balance != 25 || acc.LifetimeEarned != 25 || acc.Level != 1 {
		t.Fatalf("after activity: {%d,%d,%d}, want {25,25,1}", acc.Balance, acc.LifetimeEarned, acc.Level)
	}

	stock := int64(3)
	itemID, err := svc.CreateRewardItem(ctx, &model.RewardItem{
		Name:        "Coffee voucher",
		PointsCost:  20,
		Stock:       &stock,
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("create reward error: %v", err)
	}

	red, acc, err := svc.Redeem(ctx, 1, itemID)
	if err != nil {
		t.Fatalf("redeem error: %v", err)
	}
	if acc.Balance != 5 {
		t.Fatalf("balance after redeem = %d, want 5", acc.Balance)
	}
	if acc.LifetimeEarned != 25 {
		t.Fatalf("lifetime must not decrease on spend, got %d", acc.LifetimeEarned)
	}
	if red.Status != model.RedemptionStatusPending {
		t.Fatalf("redemption status = %s, want pending", red.Status)
	}
	if got := *repo.items[itemID].Stock; got != 2 {
		t.Fatalf("stock = %d, want 2", got)
	}
	if notifier.redemptions != 1 {
		t.Fatalf("redemption notifications = %d, want 1", notifier.redemptions)
	}

	// Повторный обмен не по карману: баланс 5, цена 20
	if _, _, err := svc.Redeem(ctx, 1, itemID); !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	acc, _ = repo.GetAccount(ctx, 1)
	if acc.Balance != 5 {
		t.Fatalf("balance after failed redeem = %d, want 5", acc.Balance)
	}

	// Журнал восстанавливает баланс
	sum, err := repo.ReconstructBalance(ctx, 1)
	if err != nil {
		t.Fatalf("reconstruct error: %v", err)
	}
	if sum != acc.Balance {
		t.Fatalf("ledger sum %d != cached balance %d", sum, acc.Balance)
	}
}

func TestRedeem_ChecksOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Redeem(ctx, 1, 99); !errors.Is(err, repository.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	expired := time.Now().Add(-time.Hour)
	zero := int64(0)
	unavailableID, _ := repo.CreateRewardItem(ctx, &model.RewardItem{Name: "a", PointsCost: 10, IsAvailable: false})
	expiredID, _ := repo.CreateRewardItem(ctx, &model.RewardItem{Name: "b", PointsCost: 10, IsAvailable: true, ExpiresAt: &expired})
	outOfStockID, _ := repo.CreateRewardItem(ctx, &model.RewardItem{Name: "c", PointsCost: 10, IsAvailable: true, Stock: &zero})

	if _, _, err := svc.Redeem(ctx, 1, unavailableID); !errors.Is(err, repository.ErrItemUnavailable) {
		t.Fatalf("expected ErrItemUnavailable, got %v", err)
	}
	if _, _, err := svc.Redeem(ctx, 1, expiredID); !errors.Is(err, repository.ErrItemExpired) {
		t.Fatalf("expected ErrItemExpired, got %v", err)
	}
	if _, _, err := svc.Redeem(ctx, 1, outOfStockID); !errors.Is(err, repository.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestReconcile_ReportsMismatches(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.mismatches = []repository.BalanceMismatch{
		{AccountID: 1, CachedBalance: 100, LedgerBalance: 90},
	}

	// Сверка логирует расхождение и не изменяет счета.
	svc.reconcile(context.Background())

	if len(repo.accounts) != 0 {
		t.Fatalf("reconcile must not create or modify accounts")
	}
}
