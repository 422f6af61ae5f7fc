package model

import (
	"testing"
	"time"
)

// TestComputeStatus は大会状態の導出ルールを検証する。
func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name   string
		league League
		want   LeagueStatus
	}{
		{
			"cancelledは吸収状態",
			League{Status: LeagueStatusCancelled, StartDate: now.Add(7 * day)},
			LeagueStatusCancelled,
		},
		{
			"開始前かつ登録受付中",
			League{StartDate: now.Add(7 * day), RegistrationDeadline: now.Add(3 * day), RegistrationEnabled: true},
			LeagueStatusRegistrationOpen,
		},
		{
			"開始前だが締切超過",
			League{StartDate: now.Add(7 * day), RegistrationDeadline: now.Add(-day), RegistrationEnabled: true},
			LeagueStatusUpcoming,
		},
		{
			"開始前だが受付無効",
			League{StartDate: now.Add(7 * day), RegistrationDeadline: now.Add(3 * day), RegistrationEnabled: false},
			LeagueStatusUpcoming,
		},
		{
			"開始日当日かつ終了日なしはin_progress",
			League{StartDate: now.Add(-time.Hour)},
			LeagueStatusInProgress,
		},
		{
			"終了日超過はcompleted",
			League{StartDate: now.Add(-7 * day), EndDate: timePtr(now.Add(-day))},
			LeagueStatusCompleted,
		},
		{
			"開催期間中はin_progress",
			League{StartDate: now.Add(-day), EndDate: timePtr(now.Add(day))},
			LeagueStatusInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(&tt.league, now)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestLeague_IsFull は定員判定を検証する。定員なしの大会は常にfalseとなる。
func TestLeague_IsFull(t *testing.T) {
	unlimited := League{ParticipantCount: 1000}
	if unlimited.IsFull() {
		t.Error("league without max participants must never be full")
	}

	max := 16
	limited := League{MaxParticipants: &max, ParticipantCount: 16}
	if !limited.IsFull() {
		t.Error("expected league at capacity to be full")
	}
}

// TestLeague_AcceptsRegistration は受付中かつ定員未満の場合のみ
// 参加登録を受け付けることを検証する。
func TestLeague_AcceptsRegistration(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	max := 2

	l := League{
		StartDate:            now.AddDate(0, 0, 7),
		RegistrationDeadline: now.AddDate(0, 0, 3),
		RegistrationEnabled:  true,
		MaxParticipants:      &max,
		ParticipantCount:     1,
	}
	if !l.AcceptsRegistration(now) {
		t.Error("expected registration to be accepted")
	}

	l.ParticipantCount = 2
	if l.AcceptsRegistration(now) {
		t.Error("expected full league to reject registration")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
