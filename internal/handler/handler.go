// Package handler содержит HTTP-обработчики API сервиса баллов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/interact-app/points-ledger/internal/middleware"
	"github.com/interact-app/points-ledger/internal/model"
	"github.com/interact-app/points-ledger/internal/repository"
	"github.com/interact-app/points-ledger/internal/service"
	"github.com/interact-app/points-ledger/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetAccount(ctx context.Context, accountID int64) (*model.Account, error)
	LevelTitle(lifetimeEarned int64) string
	Award(ctx context.Context, accountID int64, reason model.ReasonCode, reference string, bonus int64) (*model.Account, error)
	AdminAdjust(ctx context.Context, accountID, amount int64, reference string) (*model.Account, error)
	TransferBonus(ctx context.Context, fromID, toID, amount int64, reference string) (*model.Account, error)
	GetLedger(ctx context.Context, accountID int64) ([]model.LedgerEntry, error)
	GetRewards(ctx context.Context) ([]model.RewardItem, error)
	CreateRewardItem(ctx context.Context, item *model.RewardItem) (int64, error)
	UpdateRewardItem(ctx context.Context, itemID int64, isAvailable *bool, stock *int64) (*model.RewardItem, error)
	Redeem(ctx context.Context, accountID, itemID int64) (*model.Redemption, *model.Account, error)
	GetRedemptions(ctx context.Context, accountID int64) ([]model.Redemption, error)
	SetRedemptionStatus(ctx context.Context, redemptionID int64, status model.RedemptionStatus) (*model.Redemption, error)
}

// Handler реализует HTTP-обработчики API сервиса баллов.
type Handler struct {
	service     Service
	logger      *zap.Logger
	auth        *middleware.AuthMiddleware
	serviceAuth *middleware.ServiceTokenMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, serviceAuth *middleware.ServiceTokenMiddleware) *Handler {
	return &Handler{
		service:     s,
		logger:      logger,
		auth:        auth,
		serviceAuth: serviceAuth,
	}
}

// operationResponse — итог мутирующей операции со счётом.
type operationResponse struct {
	Success    bool   `json:"success"`
	NewBalance int64  `json:"newBalance"`
	NewLevel   int    `json:"newLevel"`
	Error      string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOperationError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, operationResponse{Success: false, Error: msg})
}

// writeAccountError отображает ошибки операций со счётом на HTTP-статусы.
// Таксономия фиксирована: детерминированные отказы валидации возвращаются
// синхронно и не сопровождаются частичными изменениями.
func (h *Handler) writeAccountError(w http.ResponseWriter, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		writeOperationError(w, http.StatusPaymentRequired, "insufficient balance")
	case errors.Is(err, repository.ErrDuplicateAward):
		writeOperationError(w, http.StatusConflict, "duplicate award")
	case errors.Is(err, repository.ErrItemNotFound):
		writeOperationError(w, http.StatusNotFound, "reward item not found")
	case errors.Is(err, repository.ErrItemUnavailable):
		writeOperationError(w, http.StatusConflict, "reward item unavailable")
	case errors.Is(err, repository.ErrItemExpired):
		writeOperationError(w, http.StatusGone, "reward item expired")
	case errors.Is(err, repository.ErrOutOfStock):
		writeOperationError(w, http.StatusConflict, "reward item out of stock")
	case errors.Is(err, repository.ErrRedemptionNotFound):
		writeOperationError(w, http.StatusNotFound, "redemption not found")
	case errors.Is(err, repository.ErrInvalidStatusChange):
		writeOperationError(w, http.StatusConflict, "invalid status change")
	case errors.Is(err, repository.ErrUserNotFound):
		writeOperationError(w, http.StatusNotFound, "recipient not found")
	case errors.Is(err, service.ErrInvalidReason),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrNothingToAward):
		writeOperationError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("account operation error", append(fields, zap.Error(err))...)
		writeOperationError(w, http.StatusInternalServerError, "internal error")
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidLogin(req.Login) || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.auth.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.auth.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type balanceResponse struct {
	Balance        int64  `json:"balance"`
	LifetimeEarned int64  `json:"lifetime_earned"`
	Level          int    `json:"level"`
	Title          string `json:"title"`
	Streak         int    `json:"streak"`
}

// GetBalance возвращает состояние счёта текущего пользователя.
// Читающий запрос не создаёт счёт: до первого начисления возвращается 404.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	acc, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Balance:        acc.Balance,
		LifetimeEarned: acc.LifetimeEarned,
		Level:          acc.Level,
		Title:          h.service.LevelTitle(acc.LifetimeEarned),
		Streak:         acc.StreakCount,
	})
}

type ledgerEntryResponse struct {
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
	CreatedAt string `json:"created_at"`
}

// GetLedger возвращает журнал операций текущего пользователя.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	entries, err := h.service.GetLedger(r.Context(), userID)
	if err != nil {
		h.logger.Error("get ledger error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			Amount:    e.Amount,
			Reason:    string(e.Reason),
			Reference: e.Reference,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type transferRequest struct {
	ToLogin   string `json:"to_login"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// Transfer переводит подаренные баллы признания другому пользователю.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidReference(req.Reference) {
		writeOperationError(w, http.StatusBadRequest, "invalid reference")
		return
	}

	recipient, err := h.service.GetUserByLogin(r.Context(), req.ToLogin)
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("userID", userID))
		return
	}

	acc, err := h.service.TransferBonus(r.Context(), userID, recipient.ID, req.Amount, req.Reference)
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("userID", userID), zap.String("reference", req.Reference))
		return
	}

	writeJSON(w, http.StatusOK, operationResponse{
		Success:    true,
		NewBalance: acc.Balance,
		NewLevel:   acc.Level,
	})
}

type rewardItemResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PointsCost  int64  `json:"points_cost"`
	Stock       *int64 `json:"stock,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// GetRewards возвращает доступные позиции каталога вознаграждений.
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetRewards(r.Context())
	if err != nil {
		h.logger.Error("get rewards error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]rewardItemResponse, 0, len(items))
	for _, it := range items {
		ir := rewardItemResponse{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			PointsCost:  it.PointsCost,
			Stock:       it.Stock,
		}
		if it.ExpiresAt != nil {
			ir.ExpiresAt = it.ExpiresAt.Format(time.RFC3339)
		}
		resp = append(resp, ir)
	}

	writeJSON(w, http.StatusOK, resp)
}

type redemptionResponse struct {
	ID          int64  `json:"id"`
	ItemID      int64  `json:"item_id"`
	PointsSpent int64  `json:"points_spent"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type redeemResponse struct {
	operationResponse
	Redemption redemptionResponse `json:"redemption"`
}

// Redeem обменивает баллы текущего пользователя на позицию каталога.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	red, acc, err := h.service.Redeem(r.Context(), userID, itemID)
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("userID", userID), zap.Int64("itemID", itemID))
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		operationResponse: operationResponse{
			Success:    true,
			NewBalance: acc.Balance,
			NewLevel:   acc.Level,
		},
		Redemption: redemptionResponse{
			ID:          red.ID,
			ItemID:      red.ItemID,
			PointsSpent: red.PointsSpent,
			Status:      string(red.Status),
			CreatedAt:   red.CreatedAt.Format(time.RFC3339),
		},
	})
}

// GetRedemptions возвращает историю обменов текущего пользователя.
func (h *Handler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	reds, err := h.service.GetRedemptions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get redemptions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(reds) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]redemptionResponse, 0, len(reds))
	for _, rd := range reds {
		resp = append(resp, redemptionResponse{
			ID:          rd.ID,
			ItemID:      rd.ItemID,
			PointsSpent: rd.PointsSpent,
			Status:      string(rd.Status),
			CreatedAt:   rd.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type awardRequest struct {
	AccountID int64  `json:"account_id"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
	Bonus     int64  `json:"bonus,omitempty"`
}

// InternalAward начисляет баллы за действие пользователя.
// Вызывается автоматизацией платформы по факту участия, признания и т.п.
func (h *Handler) InternalAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.AccountID <= 0 || !validation.IsValidReference(req.Reference) {
		writeOperationError(w, http.StatusBadRequest, "invalid account or reference")
		return
	}

	acc, err := h.service.Award(r.Context(), req.AccountID, model.ReasonCode(req.Reason), req.Reference, req.Bonus)
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("accountID", req.AccountID), zap.String("reason", req.Reason))
		return
	}

	writeJSON(w, http.StatusOK, operationResponse{
		Success:    true,
		NewBalance: acc.Balance,
		NewLevel:   acc.Level,
	})
}

type adjustRequest struct {
	AccountID int64  `json:"account_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// InternalAdjust применяет ручную корректировку баланса.
func (h *Handler) InternalAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.AccountID <= 0 {
		writeOperationError(w, http.StatusBadRequest, "invalid account")
		return
	}
	if req.Reference != "" && !validation.IsValidReference(req.Reference) {
		writeOperationError(w, http.StatusBadRequest, "invalid reference")
		return
	}

	acc, err := h.service.AdminAdjust(r.Context(), req.AccountID, req.Amount, req.Reference)
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("accountID", req.AccountID))
		return
	}

	writeJSON(w, http.StatusOK, operationResponse{
		Success:    true,
		NewBalance: acc.Balance,
		NewLevel:   acc.Level,
	})
}

type createRewardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PointsCost  int64  `json:"points_cost"`
	Stock       *int64 `json:"stock,omitempty"`
	IsAvailable *bool  `json:"is_available,omitempty"`
	AutoFulfill bool   `json:"auto_fulfill,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// CreateReward добавляет позицию каталога вознаграждений.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item := &model.RewardItem{
		Name:        req.Name,
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Stock:       req.Stock,
		IsAvailable: true,
		AutoFulfill: req.AutoFulfill,
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			writeOperationError(w, http.StatusBadRequest, "invalid expires_at")
			return
		}
		item.ExpiresAt = &t
	}

	id, err := h.service.CreateRewardItem(r.Context(), item)
	if err != nil {
		h.writeAccountError(w, err, zap.String("name", req.Name))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type updateRewardRequest struct {
	IsAvailable *bool  `json:"is_available,omitempty"`
	Stock       *int64 `json:"stock,omitempty"`
}

// UpdateReward изменяет доступность и запас позиции каталога.
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item, err := h.service.UpdateRewardItem(r.Context(), itemID, req.IsAvailable, req.Stock)
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("itemID", itemID))
		return
	}

	resp := rewardItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		PointsCost:  item.PointsCost,
		Stock:       item.Stock,
	}
	if item.ExpiresAt != nil {
		resp.ExpiresAt = item.ExpiresAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateRedemptionStatus переводит обмен в новый статус.
func (h *Handler) UpdateRedemptionStatus(w http.ResponseWriter, r *http.Request) {
	redemptionID, err := strconv.ParseInt(chi.URLParam(r, "redemptionID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	red, err := h.service.SetRedemptionStatus(r.Context(), redemptionID, model.RedemptionStatus(req.Status))
	if err != nil {
		h.writeAccountError(w, err, zap.Int64("redemptionID", redemptionID))
		return
	}

	writeJSON(w, http.StatusOK, redemptionResponse{
		ID:          red.ID,
		ItemID:      red.ItemID,
		PointsSpent: red.PointsSpent,
		Status:      string(red.Status),
		CreatedAt:   red.CreatedAt.Format(time.RFC3339),
	})
}
