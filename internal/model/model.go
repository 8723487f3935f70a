// Package model содержит доменные сущности сервиса баллов INTeract.
package model

import "time"

// User представляет зарегистрированного сотрудника.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	IsAdmin      bool
	CreatedAt    time.Time
}

// ReasonCode описывает причину изменения баланса баллов.
type ReasonCode string

const (
	ReasonAttendance          ReasonCode = "attendance"
	ReasonActivityCompletion  ReasonCode = "activity_completion"
	ReasonFeedback            ReasonCode = "feedback"
	ReasonRecognitionGiven    ReasonCode = "recognition_given"
	ReasonRecognitionReceived ReasonCode = "recognition_received"
	ReasonBonusGift           ReasonCode = "bonus_gift"
	ReasonStreakBonus         ReasonCode = "streak_bonus"
	ReasonPurchase            ReasonCode = "purchase"
	ReasonAdminAdjustment     ReasonCode = "admin_adjustment"
)

// AwardReasons перечисляет причины, допустимые для операции начисления.
var AwardReasons = map[ReasonCode]bool{
	ReasonAttendance:          true,
	ReasonActivityCompletion:  true,
	ReasonFeedback:            true,
	ReasonRecognitionGiven:    true,
	ReasonRecognitionReceived: true,
}

// Account содержит счёт баллов сотрудника.
// Поле Balance — кэшированная проекция журнала; источником истины является журнал операций.
type Account struct {
	UserID           int64
	Balance          int64
	LifetimeEarned   int64
	Level            int
	StreakCount      int
	LastActivityDate *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LedgerEntry описывает неизменяемую запись журнала операций с баллами.
// Положительная сумма — начисление, отрицательная — списание.
type LedgerEntry struct {
	ID        int64
	AccountID int64
	Amount    int64
	Reason    ReasonCode
	Reference string
	CreatedAt time.Time
}

// RewardItem описывает позицию каталога вознаграждений.
// Stock равный nil означает неограниченный запас.
type RewardItem struct {
	ID          int64
	Name        string
	Description string
	PointsCost  int64
	Stock       *int64
	IsAvailable bool
	AutoFulfill bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// RedemptionStatus описывает статус обработки обмена баллов.
type RedemptionStatus string

const (
	RedemptionStatusPending   RedemptionStatus = "pending"
	RedemptionStatusApproved  RedemptionStatus = "approved"
	RedemptionStatusRejected  RedemptionStatus = "rejected"
	RedemptionStatusDelivered RedemptionStatus = "delivered"
)

// Redemption описывает факт обмена баллов на вознаграждение.
type Redemption struct {
	ID          int64
	AccountID   int64
	ItemID      int64
	PointsSpent int64
	Status      RedemptionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
