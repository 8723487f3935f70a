package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/interact-app/points-ledger/internal/model"
)

func TestLevelFor_Thresholds(t *testing.T) {
	r := Default()

	tests := []struct {
		lifetime int64
		want     int
	}{
		{0, 1},
		{99, 1},
		{100, 2}, // достижение порога ровно повышает уровень
		{101, 2},
		{249, 2},
		{250, 3},
		{999, 4},
		{1000, 5},
		{10000, 10},
		{1000000, 10},
	}

	for _, tt := range tests {
		if got := r.LevelFor(tt.lifetime); got != tt.want {
			t.Fatalf("LevelFor(%d) = %d, want %d", tt.lifetime, got, tt.want)
		}
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	r := Default()

	prev := 0
	for lifetime := int64(0); lifetime <= 12000; lifetime += 50 {
		level := r.LevelFor(lifetime)
		if level < prev {
			t.Fatalf("LevelFor(%d) = %d is below previous level %d", lifetime, level, prev)
		}
		prev = level
	}
}

func TestTitleFor(t *testing.T) {
	r := Default()

	if got := r.TitleFor(0); got != "Newcomer" {
		t.Fatalf("TitleFor(0) = %q, want Newcomer", got)
	}
	if got := r.TitleFor(100); got != "Explorer" {
		t.Fatalf("TitleFor(100) = %q, want Explorer", got)
	}
	if got := r.TitleFor(99999); got != "Elite" {
		t.Fatalf("TitleFor(99999) = %q, want Elite", got)
	}
}

func TestPointsFor_Defaults(t *testing.T) {
	r := Default()

	tests := []struct {
		reason model.ReasonCode
		want   int64
	}{
		{model.ReasonAttendance, 10},
		{model.ReasonActivityCompletion, 15},
		{model.ReasonFeedback, 5},
		{model.ReasonRecognitionReceived, 10},
		{model.ReasonRecognitionGiven, 5},
		{model.ReasonCode("unknown"), 0},
	}

	for _, tt := range tests {
		if got := r.PointsFor(tt.reason); got != tt.want {
			t.Fatalf("PointsFor(%s) = %d, want %d", tt.reason, got, tt.want)
		}
	}
}

func TestStreakBonus(t *testing.T) {
	r := Default()

	if got := r.StreakBonus(3); got != 10 {
		t.Fatalf("StreakBonus(3) = %d, want 10", got)
	}
	if got := r.StreakBonus(7); got != 25 {
		t.Fatalf("StreakBonus(7) = %d, want 25", got)
	}
	if got := r.StreakBonus(30); got != 100 {
		t.Fatalf("StreakBonus(30) = %d, want 100", got)
	}
	if got := r.StreakBonus(5); got != 0 {
		t.Fatalf("StreakBonus(5) = %d, want 0", got)
	}
}

func TestNextStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	sameDay := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	lastWeek := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current int
		last    *time.Time
		want    int
	}{
		{"first activity", 0, nil, 1},
		{"same day keeps streak", 4, &sameDay, 4},
		{"next day extends streak", 4, &yesterday, 5},
		{"gap resets streak", 10, &lastWeek, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStreak(tt.current, tt.last, now); got != tt.want {
				t.Fatalf("NextStreak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if r.PointsFor(model.ReasonAttendance) != 10 {
		t.Fatalf("defaults not applied")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"point_values": {"attendance": 25},
		"levels": [
			{"level": 1, "points": 0, "title": "Rookie"},
			{"level": 2, "points": 50, "title": "Pro"}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if got := r.PointsFor(model.ReasonAttendance); got != 25 {
		t.Fatalf("PointsFor(attendance) = %d, want 25", got)
	}
	if got := r.LevelFor(50); got != 2 {
		t.Fatalf("LevelFor(50) = %d, want 2", got)
	}
	// Секция streak_bonuses не переопределена и должна остаться по умолчанию
	if got := r.StreakBonus(7); got != 25 {
		t.Fatalf("StreakBonus(7) = %d, want 25", got)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid rules file")
	}
}

func TestLoad_NegativePointValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(`{"point_values": {"attendance": -5}}`), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative point value")
	}
}
