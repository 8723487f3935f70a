// Package service реализует бизнес-логику сервиса баллов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/interact-app/points-ledger/internal/model"
	"github.com/interact-app/points-ledger/internal/repository"
	"github.com/interact-app/points-ledger/internal/rules"
)

// ErrNothingToAward возвращается, когда итоговая сумма начисления не положительна.
var (
	ErrNothingToAward = errors.New("nothing to award")
	// ErrInvalidReason возвращается для причины, недопустимой в операции начисления.
	ErrInvalidReason = errors.New("invalid award reason")
	// ErrInvalidAmount возвращается для некорректной суммы операции.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSelfTransfer возвращается при попытке перевода баллов самому себе.
	ErrSelfTransfer = errors.New("transfer to self")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetAccount(ctx context.Context, accountID int64) (*model.Account, error)
	ApplyDelta(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string) (*model.Account, error)
	ApplyAward(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string, nextStreak func(*model.Account) int) (*model.Account, error)
	TransferBonus(ctx context.Context, fromID, toID, amount int64, reference string) (*model.Account, error)
	Redeem(ctx context.Context, accountID, itemID int64, reference string) (*model.Redemption, *model.Account, error)
	SetRedemptionStatus(ctx context.Context, redemptionID int64, status model.RedemptionStatus) (*model.Redemption, error)
	LedgerByAccount(ctx context.Context, accountID int64) ([]model.LedgerEntry, error)
	ReconstructBalance(ctx context.Context, accountID int64) (int64, error)
	FindBalanceMismatches(ctx context.Context) ([]repository.BalanceMismatch, error)
	CreateRewardItem(ctx context.Context, item *model.RewardItem) (int64, error)
	UpdateRewardItem(ctx context.Context, itemID int64, isAvailable *bool, stock *int64) (*model.RewardItem, error)
	ListRewardItems(ctx context.Context, onlyAvailable bool) ([]model.RewardItem, error)
	RedemptionsByAccount(ctx context.Context, accountID int64) ([]model.Redemption, error)
}

// Notifier отправляет уведомления о событиях счёта. Вызывается после фиксации
// транзакции; неудачная отправка не влияет на результат операции.
type Notifier interface {
	LevelUp(ctx context.Context, accountID int64, level int, title string) error
	RedemptionCreated(ctx context.Context, redemption *model.Redemption) error
}

// Service содержит бизнес-логику сервиса баллов.
type Service struct {
	repo     Repository
	rules    *rules.Rules
	notifier Notifier
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием, правилами и нотификатором.
func NewService(repo Repository, r *rules.Rules, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		rules:    r,
		notifier: notifier,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetUserByLogin возвращает пользователя по логину.
func (s *Service) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.repo.GetUserByLogin(ctx, login)
}

// Award начисляет баллы за действие с указанной причиной. Сумма берётся из правил,
// bonus добавляет подаренные баллы признания. Повторное начисление с тем же
// reference отклоняется ограничением уникальности журнала.
func (s *Service) Award(ctx context.Context, accountID int64, reason model.ReasonCode, reference string, bonus int64) (*model.Account, error) {
	if !model.AwardReasons[reason] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReason, reason)
	}
	if bonus < 0 {
		return nil, fmt.Errorf("%w: negative bonus", ErrInvalidAmount)
	}

	amount := s.rules.PointsFor(reason) + bonus
	if amount <= 0 {
		return nil, ErrNothingToAward
	}

	var oldLevel, oldStreak int
	acc, err := s.repo.ApplyAward(ctx, accountID, amount, reason, reference, func(a *model.Account) int {
		oldLevel = a.Level
		oldStreak = a.StreakCount
		return rules.NextStreak(a.StreakCount, a.LastActivityDate, time.Now())
	})
	if err != nil {
		return nil, err
	}

	if acc.StreakCount != oldStreak {
		acc = s.applyStreakBonus(ctx, acc)
	}

	if acc.Level > oldLevel {
		s.notifyLevelUp(ctx, acc)
	}

	return acc, nil
}

// applyStreakBonus начисляет бонус за достижение контрольной длины серии.
// Ключ идемпотентности включает длину серии и дату, так что повтор запроса
// в тот же день не даёт второго бонуса.
func (s *Service) applyStreakBonus(ctx context.Context, acc *model.Account) *model.Account {
	bonus := s.rules.StreakBonus(acc.StreakCount)
	if bonus <= 0 {
		return acc
	}

	reference := fmt.Sprintf("streak:%d:%s", acc.StreakCount, time.Now().UTC().Format("2006-01-02"))
	updated, err := s.repo.ApplyDelta(ctx, acc.UserID, bonus, model.ReasonStreakBonus, reference)
	if err != nil {
		if !errors.Is(err, repository.ErrDuplicateAward) {
			s.logger.Error("streak bonus failed",
				zap.Int64("accountID", acc.UserID),
				zap.Int("streak", acc.StreakCount),
				zap.Error(err))
		}
		return acc
	}
	return updated
}

// AdminAdjust применяет ручную корректировку баланса со знаком.
// При отсутствии reference генерируется уникальный ключ.
func (s *Service) AdminAdjust(ctx context.Context, accountID, amount int64, reference string) (*model.Account, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero adjustment", ErrInvalidAmount)
	}
	if reference == "" {
		reference = "adjust:" + uuid.NewString()
	}
	return s.repo.ApplyDelta(ctx, accountID, amount, model.ReasonAdminAdjustment, reference)
}

// TransferBonus переводит подаренные баллы признания с одного счёта на другой.
func (s *Service) TransferBonus(ctx context.Context, fromID, toID, amount int64, reference string) (*model.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidAmount)
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}
	return s.repo.TransferBonus(ctx, fromID, toID, amount, reference)
}

// GetAccount возвращает счёт пользователя без его создания.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	return s.repo.GetAccount(ctx, accountID)
}

// LevelTitle возвращает название уровня для накопленной суммы баллов.
func (s *Service) LevelTitle(lifetimeEarned int64) string {
	return s.rules.TitleFor(lifetimeEarned)
}

// GetLedger возвращает журнал операций счёта.
func (s *Service) GetLedger(ctx context.Context, accountID int64) ([]model.LedgerEntry, error) {
	return s.repo.LedgerByAccount(ctx, accountID)
}

// GetRewards возвращает доступные позиции каталога вознаграждений.
func (s *Service) GetRewards(ctx context.Context) ([]model.RewardItem, error) {
	return s.repo.ListRewardItems(ctx, true)
}

// CreateRewardItem добавляет позицию каталога вознаграждений.
func (s *Service) CreateRewardItem(ctx context.Context, item *model.RewardItem) (int64, error) {
	if item.Name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidAmount)
	}
	if item.PointsCost <= 0 {
		return 0, fmt.Errorf("%w: points cost must be positive", ErrInvalidAmount)
	}
	if item.Stock != nil && *item.Stock < 0 {
		return 0, fmt.Errorf("%w: negative stock", ErrInvalidAmount)
	}
	return s.repo.CreateRewardItem(ctx, item)
}

// UpdateRewardItem изменяет доступность и запас позиции каталога.
func (s *Service) UpdateRewardItem(ctx context.Context, itemID int64, isAvailable *bool, stock *int64) (*model.RewardItem, error) {
	if stock != nil && *stock < 0 {
		return nil, fmt.Errorf("%w: negative stock", ErrInvalidAmount)
	}
	return s.repo.UpdateRewardItem(ctx, itemID, isAvailable, stock)
}

// Redeem обменивает баллы счёта на позицию каталога.
func (s *Service) Redeem(ctx context.Context, accountID, itemID int64) (*model.Redemption, *model.Account, error) {
	reference := "redemption:" + uuid.NewString()

	red, acc, err := s.repo.Redeem(ctx, accountID, itemID, reference)
	if err != nil {
		return nil, nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.RedemptionCreated(ctx, red); err != nil {
			s.logger.Warn("redemption notification failed",
				zap.Int64("redemptionID", red.ID),
				zap.Error(err))
		}
	}

	return red, acc, nil
}

// GetRedemptions возвращает историю обменов счёта.
func (s *Service) GetRedemptions(ctx context.Context, accountID int64) ([]model.Redemption, error) {
	return s.repo.RedemptionsByAccount(ctx, accountID)
}

// SetRedemptionStatus переводит обмен в новый статус согласно допустимым переходам.
func (s *Service) SetRedemptionStatus(ctx context.Context, redemptionID int64, status model.RedemptionStatus) (*model.Redemption, error) {
	switch status {
	case model.RedemptionStatusApproved, model.RedemptionStatusRejected, model.RedemptionStatusDelivered:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidStatusChange, status)
	}
	return s.repo.SetRedemptionStatus(ctx, redemptionID, status)
}

func (s *Service) notifyLevelUp(ctx context.Context, acc *model.Account) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.LevelUp(ctx, acc.UserID, acc.Level, s.rules.TitleFor(acc.LifetimeEarned)); err != nil {
		s.logger.Warn("level up notification failed",
			zap.Int64("accountID", acc.UserID),
			zap.Int("level", acc.Level),
			zap.Error(err))
	}
}

// StartReconciliation запускает фоновую сверку кэшированных балансов с журналом.
// Расхождение — это нарушение целостности данных: оно логируется для оператора
// и никогда не исправляется автоматически.
func (s *Service) StartReconciliation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reconcile(ctx)
			}
		}
	}()
}

func (s *Service) reconcile(ctx context.Context) {
	mismatches, err := s.repo.FindBalanceMismatches(ctx)
	if err != nil {
		s.logger.Error("reconciliation scan failed", zap.Error(err))
		return
	}

	for _, m := range mismatches {
		s.logger.Error("integrity fault: cached balance diverged from ledger",
			zap.Int64("accountID", m.AccountID),
			zap.Int64("cachedBalance", m.CachedBalance),
			zap.Int64("ledgerBalance", m.LedgerBalance))
	}
}
