// Package rules содержит правила начисления баллов и уровней.
// Пакет не выполняет ввод-вывод: значения загружаются один раз при старте,
// все функции детерминированы.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/interact-app/points-ledger/internal/model"
)

// LevelThreshold задаёт нижнюю границу накопленных баллов для уровня.
type LevelThreshold struct {
	Level  int    `json:"level"`
	Points int64  `json:"points"`
	Title  string `json:"title"`
}

// Rules содержит конфигурацию начислений: стоимость действий,
// пороги уровней и бонусы за серии активности.
type Rules struct {
	PointValues   map[model.ReasonCode]int64 `json:"point_values"`
	Levels        []LevelThreshold           `json:"levels"`
	StreakBonuses map[int]int64              `json:"streak_bonuses"`
}

// Default возвращает правила со значениями продукта по умолчанию.
func Default() *Rules {
	return &Rules{
		PointValues: map[model.ReasonCode]int64{
			model.ReasonAttendance:          10,
			model.ReasonActivityCompletion:  15,
			model.ReasonFeedback:            5,
			model.ReasonRecognitionGiven:    5,
			model.ReasonRecognitionReceived: 10,
		},
		Levels: []LevelThreshold{
			{Level: 1, Points: 0, Title: "Newcomer"},
			{Level: 2, Points: 100, Title: "Explorer"},
			{Level: 3, Points: 250, Title: "Contributor"},
			{Level: 4, Points: 500, Title: "Enthusiast"},
			{Level: 5, Points: 1000, Title: "Champion"},
			{Level: 6, Points: 1500, Title: "Expert"},
			{Level: 7, Points: 2500, Title: "Master"},
			{Level: 8, Points: 4000, Title: "Legend"},
			{Level: 9, Points: 6000, Title: "Hero"},
			{Level: 10, Points: 10000, Title: "Elite"},
		},
		StreakBonuses: map[int]int64{
			3:  10,
			7:  25,
			30: 100,
		},
	}
}

// Load читает правила из JSON-файла. Пустой путь возвращает правила по умолчанию.
// Отсутствующие в файле секции заполняются значениями по умолчанию.
func Load(path string) (*Rules, error) {
	r := Default()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var loaded Rules
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	if len(loaded.PointValues) > 0 {
		r.PointValues = loaded.PointValues
	}
	if len(loaded.Levels) > 0 {
		r.Levels = loaded.Levels
	}
	if len(loaded.StreakBonuses) > 0 {
		r.StreakBonuses = loaded.StreakBonuses
	}

	if err := r.validate(); err != nil {
		return nil, err
	}

	sort.Slice(r.Levels, func(i, j int) bool {
		return r.Levels[i].Points < r.Levels[j].Points
	})

	return r, nil
}

func (r *Rules) validate() error {
	if len(r.Levels) == 0 {
		return fmt.Errorf("rules: at least one level threshold required")
	}
	for reason, v := range r.PointValues {
		if v < 0 {
			return fmt.Errorf("rules: negative point value for %q", reason)
		}
	}
	for days, v := range r.StreakBonuses {
		if days <= 0 || v <= 0 {
			return fmt.Errorf("rules: invalid streak bonus %d -> %d", days, v)
		}
	}
	return nil
}

// PointsFor возвращает количество баллов за действие с указанной причиной.
// Неизвестная причина даёт ноль баллов.
func (r *Rules) PointsFor(reason model.ReasonCode) int64 {
	return r.PointValues[reason]
}

// LevelFor возвращает уровень для накопленной суммы баллов.
// Достижение порога ровно означает немедленное повышение.
func (r *Rules) LevelFor(lifetimeEarned int64) int {
	level := r.Levels[0].Level
	for _, t := range r.Levels {
		if lifetimeEarned >= t.Points {
			level = t.Level
		}
	}
	return level
}

// TitleFor возвращает название уровня для накопленной суммы баллов.
func (r *Rules) TitleFor(lifetimeEarned int64) string {
	title := r.Levels[0].Title
	for _, t := range r.Levels {
		if lifetimeEarned >= t.Points {
			title = t.Title
		}
	}
	return title
}

// StreakBonus возвращает бонус за достижение серией ровно указанной длины.
// Ноль означает, что длина не является контрольной отметкой.
func (r *Rules) StreakBonus(days int) int64 {
	return r.StreakBonuses[days]
}

// NextStreak вычисляет новую длину серии активности по дате предыдущей активности.
// Сравнение ведётся с точностью до календарного дня: тот же день не меняет серию,
// предыдущий день продлевает её, больший разрыв начинает серию заново.
func NextStreak(current int, lastActivity *time.Time, now time.Time) int {
	if lastActivity == nil {
		return 1
	}

	last := truncateDay(*lastActivity)
	today := truncateDay(now)

	switch {
	case last.Equal(today):
		return current
	case last.AddDate(0, 0, 1).Equal(today):
		return current + 1
	default:
		return 1
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
