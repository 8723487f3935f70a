// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/interact-app/points-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountNotFound возвращается при чтении счёта, который ещё не создан.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateAward возвращается при повторном начислении с тем же ключом идемпотентности.
	ErrDuplicateAward = errors.New("duplicate award")
	// ErrItemNotFound возвращается, если позиция каталога не существует.
	ErrItemNotFound = errors.New("reward item not found")
	// ErrItemUnavailable возвращается для снятых с публикации позиций каталога.
	ErrItemUnavailable = errors.New("reward item unavailable")
	// ErrItemExpired возвращается для позиций каталога с истёкшим сроком действия.
	ErrItemExpired = errors.New("reward item expired")
	// ErrOutOfStock возвращается при исчерпанном запасе позиции каталога.
	ErrOutOfStock = errors.New("reward item out of stock")
	// ErrRedemptionNotFound возвращается, если запись об обмене не существует.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrInvalidStatusChange возвращается при недопустимом переходе статуса обмена.
	ErrInvalidStatusChange = errors.New("invalid redemption status change")
)

// BalanceMismatch описывает расхождение кэшированного баланса с журналом операций.
type BalanceMismatch struct {
	AccountID     int64
	CachedBalance int64
	LedgerBalance int64
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
// Уровень счёта пересчитывается внутри транзакций через levelFor,
// чтобы кэшированный уровень не расходился с накопленными баллами.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	levelFor func(lifetimeEarned int64) int
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string, levelFor func(int64) int) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, levelFor: levelFor}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию с экспоненциальной задержкой при временных сбоях:
// сериализационных конфликтах, дедлоках и сетевых ошибках.
// Ошибки бизнес-логики не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, is_admin, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetAccount возвращает счёт без его создания. Для читающих запросов
// отсутствие счёта — это ошибка, а не повод завести новый.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, balance, lifetime_earned, level, streak_count, last_activity_date, created_at, updated_at
		 FROM accounts
		 WHERE user_id = $1`,
		accountID,
	)

	var a model.Account
	err := row.Scan(&a.UserID, &a.Balance, &a.LifetimeEarned, &a.Level, &a.StreakCount, &a.LastActivityDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &a, nil
}

// lockAccount лениво создаёт счёт и блокирует его строку до конца транзакции.
// Блокировка сериализует конкурентные изменения одного счёта.
func (r *PostgresRepository) lockAccount(ctx context.Context, tx pgx.Tx, accountID int64) (*model.Account, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (user_id, level) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		accountID, r.levelFor(0),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT user_id, balance, lifetime_earned, level, streak_count, last_activity_date, created_at, updated_at
		 FROM accounts
		 WHERE user_id = $1
		 FOR UPDATE`,
		accountID,
	)

	var a model.Account
	err = row.Scan(&a.UserID, &a.Balance, &a.LifetimeEarned, &a.Level, &a.StreakCount, &a.LastActivityDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	return &a, nil
}

// applyDeltaLocked изменяет заблокированный счёт и добавляет запись журнала.
// Отрицательный итоговый баланс отклоняется, накопленная сумма растёт только
// на положительных начислениях. При streak != nil обновляется серия активности.
func (r *PostgresRepository) applyDeltaLocked(ctx context.Context, tx pgx.Tx, acc *model.Account, amount int64, reason model.ReasonCode, reference string, streak *int) (*model.Account, error) {
	newBalance := acc.Balance + amount
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	lifetime := acc.LifetimeEarned
	if amount > 0 {
		lifetime += amount
	}
	level := r.levelFor(lifetime)

	updated := *acc
	updated.Balance = newBalance
	updated.LifetimeEarned = lifetime
	updated.Level = level

	if streak != nil {
		now := time.Now()
		updated.StreakCount = *streak
		updated.LastActivityDate = &now

		_, err := tx.Exec(ctx,
			`UPDATE accounts
			 SET balance = $2, lifetime_earned = $3, level = $4, streak_count = $5, last_activity_date = $6, updated_at = now()
			 WHERE user_id = $1`,
			acc.UserID, newBalance, lifetime, level, *streak, now,
		)
		if err != nil {
			return nil, fmt.Errorf("update account: %w", err)
		}
	} else {
		_, err := tx.Exec(ctx,
			`UPDATE accounts
			 SET balance = $2, lifetime_earned = $3, level = $4, updated_at = now()
			 WHERE user_id = $1`,
			acc.UserID, newBalance, lifetime, level,
		)
		if err != nil {
			return nil, fmt.Errorf("update account: %w", err)
		}
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (account_id, amount, reason_code, reference) VALUES ($1, $2, $3, $4)`,
		acc.UserID, amount, string(reason), reference,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateAward, reason, reference)
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return &updated, nil
}

// ApplyDelta атомарно изменяет баланс счёта и добавляет запись журнала.
// Счёт создаётся лениво при первом изменении.
func (r *PostgresRepository) ApplyDelta(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string) (*model.Account, error) {
	var result *model.Account
	err := r.withRetry(ctx, func() error {
		acc, err := r.applyDeltaTx(ctx, accountID, amount, reason, reference, nil)
		if err != nil {
			return err
		}
		result = acc
		return nil
	})
	return result, err
}

// ApplyAward атомарно начисляет баллы и продвигает серию активности.
// nextStreak вычисляет новую длину серии по состоянию счёта под блокировкой.
func (r *PostgresRepository) ApplyAward(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string, nextStreak func(*model.Account) int) (*model.Account, error) {
	var result *model.Account
	err := r.withRetry(ctx, func() error {
		acc, err := r.applyDeltaTx(ctx, accountID, amount, reason, reference, nextStreak)
		if err != nil {
			return err
		}
		result = acc
		return nil
	})
	return result, err
}

func (r *PostgresRepository) applyDeltaTx(ctx context.Context, accountID, amount int64, reason model.ReasonCode, reference string, nextStreak func(*model.Account) int) (*model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	acc, err := r.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	var streak *int
	if nextStreak != nil {
		s := nextStreak(acc)
		streak = &s
	}

	updated, err := r.applyDeltaLocked(ctx, tx, acc, amount, reason, reference, streak)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return updated, nil
}

// TransferBonus атомарно переводит баллы между двумя счетами: списание у отправителя
// и зачисление получателю либо применяются вместе, либо не применяются вовсе.
// Строки блокируются в порядке возрастания идентификаторов во избежание дедлоков.
func (r *PostgresRepository) TransferBonus(ctx context.Context, fromID, toID, amount int64, reference string) (*model.Account, error) {
	var result *model.Account
	err := r.withRetry(ctx, func() error {
		acc, err := r.transferBonusTx(ctx, fromID, toID, amount, reference)
		if err != nil {
			return err
		}
		result = acc
		return nil
	})
	return result, err
}

func (r *PostgresRepository) transferBonusTx(ctx context.Context, fromID, toID, amount int64, reference string) (*model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	locked := make(map[int64]*model.Account, 2)
	for _, id := range []int64{first, second} {
		acc, err := r.lockAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = acc
	}

	sender, err := r.applyDeltaLocked(ctx, tx, locked[fromID], -amount, model.ReasonBonusGift, reference, nil)
	if err != nil {
		return nil, err
	}

	if _, err := r.applyDeltaLocked(ctx, tx, locked[toID], amount, model.ReasonBonusGift, reference, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return sender, nil
}

// Redeem атомарно обменивает баллы на позицию каталога: проверки позиции,
// уменьшение запаса, списание баллов и запись об обмене выполняются одной транзакцией.
// Порядок проверок фиксирован, срабатывает первая неуспешная.
func (r *PostgresRepository) Redeem(ctx context.Context, accountID, itemID int64, reference string) (*model.Redemption, *model.Account, error) {
	var (
		red *model.Redemption
		acc *model.Account
	)
	err := r.withRetry(ctx, func() error {
		rd, a, err := r.redeemTx(ctx, accountID, itemID, reference)
		if err != nil {
			return err
		}
		red, acc = rd, a
		return nil
	})
	return red, acc, err
}

func (r *PostgresRepository) redeemTx(ctx context.Context, accountID, itemID int64, reference string) (*model.Redemption, *model.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, points_cost, stock, is_available, auto_fulfill, expires_at
		 FROM reward_items
		 WHERE id = $1
		 FOR UPDATE`,
		itemID,
	)

	var item model.RewardItem
	err = row.Scan(&item.ID, &item.PointsCost, &item.Stock, &item.IsAvailable, &item.AutoFulfill, &item.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrItemNotFound
		}
		return nil, nil, fmt.Errorf("lock reward item: %w", err)
	}

	if !item.IsAvailable {
		return nil, nil, ErrItemUnavailable
	}
	if item.ExpiresAt != nil && !item.ExpiresAt.After(time.Now()) {
		return nil, nil, ErrItemExpired
	}
	if item.Stock != nil && *item.Stock <= 0 {
		return nil, nil, ErrOutOfStock
	}

	acc, err := r.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, nil, err
	}

	updated, err := r.applyDeltaLocked(ctx, tx, acc, -item.PointsCost, model.ReasonPurchase, reference, nil)
	if err != nil {
		return nil, nil, err
	}

	if item.Stock != nil {
		_, err := tx.Exec(ctx,
			`UPDATE reward_items SET stock = stock - 1 WHERE id = $1`,
			item.ID,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("decrement stock: %w", err)
		}
	}

	status := model.RedemptionStatusPending
	if item.AutoFulfill {
		status = model.RedemptionStatusApproved
	}

	var red model.Redemption
	err = tx.QueryRow(ctx,
		`INSERT INTO redemptions (account_id, item_id, points_spent, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, account_id, item_id, points_spent, status, created_at, updated_at`,
		accountID, item.ID, item.PointsCost, string(status),
	).Scan(&red.ID, &red.AccountID, &red.ItemID, &red.PointsSpent, &red.Status, &red.CreatedAt, &red.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	return &red, updated, nil
}

// SetRedemptionStatus переводит запись об обмене в новый статус.
// Допустимые переходы: pending -> approved | rejected, approved -> delivered.
func (r *PostgresRepository) SetRedemptionStatus(ctx context.Context, redemptionID int64, status model.RedemptionStatus) (*model.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.RedemptionStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM redemptions WHERE id = $1 FOR UPDATE`,
		redemptionID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("lock redemption: %w", err)
	}

	if !statusChangeAllowed(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, current, status)
	}

	var red model.Redemption
	err = tx.QueryRow(ctx,
		`UPDATE redemptions SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING id, account_id, item_id, points_spent, status, created_at, updated_at`,
		redemptionID, string(status),
	).Scan(&red.ID, &red.AccountID, &red.ItemID, &red.PointsSpent, &red.Status, &red.CreatedAt, &red.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &red, nil
}

func statusChangeAllowed(from, to model.RedemptionStatus) bool {
	switch from {
	case model.RedemptionStatusPending:
		return to == model.RedemptionStatusApproved || to == model.RedemptionStatusRejected
	case model.RedemptionStatusApproved:
		return to == model.RedemptionStatusDelivered
	default:
		return false
	}
}

// LedgerByAccount возвращает журнал операций счёта, новые записи первыми.
func (r *PostgresRepository) LedgerByAccount(ctx context.Context, accountID int64) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, amount, reason_code, reference, created_at
		 FROM ledger_entries
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReconstructBalance восстанавливает баланс счёта суммированием журнала операций.
func (r *PostgresRepository) ReconstructBalance(ctx context.Context, accountID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

// FindBalanceMismatches возвращает счета, у которых кэшированный баланс
// расходится с суммой записей журнала.
func (r *PostgresRepository) FindBalanceMismatches(ctx context.Context) ([]BalanceMismatch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.user_id, a.balance, COALESCE(SUM(l.amount), 0) AS ledger_balance
		 FROM accounts a
		 LEFT JOIN ledger_entries l ON l.account_id = a.user_id
		 GROUP BY a.user_id, a.balance
		 HAVING a.balance <> COALESCE(SUM(l.amount), 0)`,
	)
	if err != nil {
		return nil, fmt.Errorf("select balance mismatches: %w", err)
	}
	defer rows.Close()

	var res []BalanceMismatch
	for rows.Next() {
		var m BalanceMismatch
		if err := rows.Scan(&m.AccountID, &m.CachedBalance, &m.LedgerBalance); err != nil {
			return nil, fmt.Errorf("scan mismatch: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateRewardItem добавляет позицию каталога вознаграждений.
func (r *PostgresRepository) CreateRewardItem(ctx context.Context, item *model.RewardItem) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reward_items (name, description, points_cost, stock, is_available, auto_fulfill, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		item.Name, item.Description, item.PointsCost, item.Stock, item.IsAvailable, item.AutoFulfill, item.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reward item: %w", err)
	}
	return id, nil
}

// UpdateRewardItem изменяет доступность и запас позиции каталога.
// nil-поля остаются без изменений.
func (r *PostgresRepository) UpdateRewardItem(ctx context.Context, itemID int64, isAvailable *bool, stock *int64) (*model.RewardItem, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE reward_items
		 SET is_available = COALESCE($2, is_available), stock = COALESCE($3, stock)
		 WHERE id = $1
		 RETURNING id, name, description, points_cost, stock, is_available, auto_fulfill, expires_at, created_at`,
		itemID, isAvailable, stock,
	)

	var it model.RewardItem
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.PointsCost, &it.Stock, &it.IsAvailable, &it.AutoFulfill, &it.ExpiresAt, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("update reward item: %w", err)
	}

	return &it, nil
}

// ListRewardItems возвращает позиции каталога. При onlyAvailable скрываются
// снятые с публикации, просроченные и исчерпанные позиции.
func (r *PostgresRepository) ListRewardItems(ctx context.Context, onlyAvailable bool) ([]model.RewardItem, error) {
	query := `SELECT id, name, description, points_cost, stock, is_available, auto_fulfill, expires_at, created_at
		 FROM reward_items`
	if onlyAvailable {
		query += ` WHERE is_available
		 AND (expires_at IS NULL OR expires_at > now())
		 AND (stock IS NULL OR stock > 0)`
	}
	query += ` ORDER BY points_cost, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select reward items: %w", err)
	}
	defer rows.Close()

	var res []model.RewardItem
	for rows.Next() {
		var it model.RewardItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.PointsCost, &it.Stock, &it.IsAvailable, &it.AutoFulfill, &it.ExpiresAt, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reward item: %w", err)
		}
		res = append(res, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// RedemptionsByAccount возвращает историю обменов счёта, новые записи первыми.
func (r *PostgresRepository) RedemptionsByAccount(ctx context.Context, accountID int64) ([]model.Redemption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, item_id, points_spent, status, created_at, updated_at
		 FROM redemptions
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	var res []model.Redemption
	for rows.Next() {
		var rd model.Redemption
		if err := rows.Scan(&rd.ID, &rd.AccountID, &rd.ItemID, &rd.PointsSpent, &rd.Status, &rd.CreatedAt, &rd.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		res = append(res, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
