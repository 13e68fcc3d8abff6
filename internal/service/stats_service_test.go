package service

import (
	"errors"
	"testing"
	"time"

	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/db"
)

func TestStatsServiceChatStatsScenario(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	mustAddRun(t, runs, "A", 5.0, day(2024, 3, 1), "100")
	mustAddRun(t, runs, "B", 3.0, day(2024, 3, 2), "100")

	got, err := stats.ChatStats("100", 2024, 0)
	if err != nil {
		t.Fatalf("ChatStats returned error: %v", err)
	}
	want := ChatStats{RunsCount: 2, TotalKm: 8, AvgKm: 4, BestRun: 5, UsersCount: 2}
	if got != want {
		t.Fatalf("unexpected chat stats: got %+v, want %+v", got, want)
	}

	viaPrefix, err := stats.ChatStats("-100100", 2024, 0)
	if err != nil {
		t.Fatalf("ChatStats returned error: %v", err)
	}
	if viaPrefix != want {
		t.Fatalf("expected prefixed chat id to resolve to the same chat, got %+v", viaPrefix)
	}
}

func TestStatsServiceChatStatsInfersMembership(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	mustAddRun(t, runs, "direct", 4, day(2024, 2, 1), "42")
	mustAddRun(t, runs, "mixed", 6, day(2024, 2, 2), "42")
	mustAddRun(t, runs, "mixed", 10, day(2024, 2, 3), "7")
	mustAddRun(t, runs, "mixed", 2, day(2024, 2, 4), "")
	mustAddRun(t, runs, "outsider", 20, day(2024, 2, 5), "7")

	got, err := stats.ChatStats("42", 2024, 0)
	if err != nil {
		t.Fatalf("ChatStats returned error: %v", err)
	}
	if got.UsersCount != 2 {
		t.Fatalf("expected 2 inferred members, got %d", got.UsersCount)
	}
	if got.RunsCount != 4 || got.TotalKm != 22 || got.BestRun != 10 {
		t.Fatalf("expected member runs from any chat to be included, got %+v", got)
	}

	february, err := stats.ChatStats("42", 2024, 2)
	if err != nil {
		t.Fatalf("ChatStats returned error: %v", err)
	}
	if february != got {
		t.Fatalf("expected month filter to match whole-year data, got %+v", february)
	}

	march, err := stats.ChatStats("42", 2024, 3)
	if err != nil {
		t.Fatalf("ChatStats returned error: %v", err)
	}
	if march != (ChatStats{}) {
		t.Fatalf("expected empty month to aggregate to zeros, got %+v", march)
	}

	top, err := stats.ChatTopUsers("42", 2024, 10)
	if err != nil {
		t.Fatalf("ChatTopUsers returned error: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "mixed" || top[0].TotalKm != 18 {
		t.Fatalf("unexpected chat top users: %+v", top)
	}
}

func TestStatsServiceValidatesInput(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	stats := NewStatsService(gdb, nil)

	if _, err := stats.ChatStats("  ", 2024, 0); !errors.Is(err, ErrInvalidChatID) {
		t.Fatalf("expected ErrInvalidChatID, got %v", err)
	}
	if _, err := stats.ChatStats("1", 2024, 13); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := stats.UserStats("", 2024, 0); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := stats.GlobalRank("", 2024); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestStatsServiceUserAndBestStats(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	mustAddRun(t, runs, "u1", 10, day(2023, 12, 31), "")
	mustAddRun(t, runs, "u1", 5, day(2024, 1, 1), "")
	mustAddRun(t, runs, "u1", 7.5, day(2024, 3, 15), "")

	year, err := stats.UserStats("u1", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if year != (UserStats{RunsCount: 2, TotalKm: 12.5, AvgKm: 6.25}) {
		t.Fatalf("unexpected year stats: %+v", year)
	}

	march, err := stats.UserStats("u1", 2024, 3)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if march != (UserStats{RunsCount: 1, TotalKm: 7.5, AvgKm: 7.5}) {
		t.Fatalf("unexpected month stats: %+v", march)
	}

	best, err := stats.BestStats("u1")
	if err != nil {
		t.Fatalf("BestStats returned error: %v", err)
	}
	if best != (BestStats{BestRun: 10, TotalRuns: 3, TotalKm: 22.5}) {
		t.Fatalf("unexpected best stats: %+v", best)
	}

	empty, err := stats.BestStats("nobody")
	if err != nil {
		t.Fatalf("BestStats returned error: %v", err)
	}
	if empty != (BestStats{}) {
		t.Fatalf("expected zeroed best stats, got %+v", empty)
	}
}

func TestStatsServiceUserStatsUsesCache(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	store := cache.NewMemory(time.Minute)
	runs := NewRunService(gdb, store)
	stats := NewStatsService(gdb, store)

	mustAddRun(t, runs, "u1", 5, day(2024, 1, 5), "")
	if _, err := stats.UserStats("u1", 2024, 0); err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if _, ok := store.Get("u1", "user_stats:2024-00"); !ok {
		t.Fatal("expected user stats to be cached after first read")
	}

	// 绕过服务直接写库，缓存命中时不应看到这条记录
	if err := gdb.Create(&db.RunningLog{UserID: "u1", Km: 3, Date: day(2024, 1, 6)}).Error; err != nil {
		t.Fatalf("insert run: %v", err)
	}
	cached, err := stats.UserStats("u1", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if cached.TotalKm != 5 {
		t.Fatalf("expected cached total 5, got %.2f", cached.TotalKm)
	}

	mustAddRun(t, runs, "u1", 2, day(2024, 1, 7), "")
	fresh, err := stats.UserStats("u1", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if fresh.TotalKm != 10 || fresh.RunsCount != 3 {
		t.Fatalf("expected write to invalidate cache, got %+v", fresh)
	}
}

func TestStatsServiceTopRunnersAndGlobalRank(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	users := NewUserService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	if _, err := users.GetOrCreate("b", "Bea", ""); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	mustAddRun(t, runs, "b", 10, day(2024, 6, 1), "1")
	mustAddRun(t, runs, "a", 4, day(2024, 6, 1), "2")
	mustAddRun(t, runs, "a", 6, day(2024, 6, 2), "")
	mustAddRun(t, runs, "c", 12, day(2024, 6, 3), "")
	mustAddRun(t, runs, "d", 50, day(2023, 6, 3), "")

	top, err := stats.TopRunners(2024, 10)
	if err != nil {
		t.Fatalf("TopRunners returned error: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 runners active in 2024, got %d", len(top))
	}
	order := []string{top[0].UserID, top[1].UserID, top[2].UserID}
	if order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Fatalf("expected order c, a, b (tie broken by user id), got %v", order)
	}
	if top[1].RunsCount != 2 || top[1].AvgKm != 5 || top[1].BestRun != 6 {
		t.Fatalf("unexpected aggregate for a: %+v", top[1])
	}
	if top[2].Username != "Bea" {
		t.Fatalf("expected username to be joined, got %q", top[2].Username)
	}

	limited, err := stats.TopRunners(2024, 1)
	if err != nil {
		t.Fatalf("TopRunners returned error: %v", err)
	}
	if len(limited) != 1 || limited[0].UserID != "c" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}

	rank, err := stats.GlobalRank("b", 2024)
	if err != nil {
		t.Fatalf("GlobalRank returned error: %v", err)
	}
	if rank != (GlobalRank{Rank: 3, TotalUsers: 3, TotalKm: 10}) {
		t.Fatalf("unexpected rank for b: %+v", rank)
	}

	unranked, err := stats.GlobalRank("d", 2024)
	if err != nil {
		t.Fatalf("GlobalRank returned error: %v", err)
	}
	if unranked != (GlobalRank{Rank: 0, TotalUsers: 3, TotalKm: 0}) {
		t.Fatalf("expected unranked sentinel, got %+v", unranked)
	}
}

func TestStatsServicePersonalStats(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	users := NewUserService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	if _, err := users.GetOrCreate("u1", "Runner", "private"); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	if _, err := users.SetGoal("u1", 100); err != nil {
		t.Fatalf("SetGoal returned error: %v", err)
	}

	mustAddRun(t, runs, "u1", 3, day(2024, 1, 10), "")
	mustAddRun(t, runs, "u1", 12, day(2024, 1, 10), "")
	mustAddRun(t, runs, "u1", 10, day(2024, 4, 2), "")

	got, err := stats.PersonalStats("u1", 2024)
	if err != nil {
		t.Fatalf("PersonalStats returned error: %v", err)
	}
	if got.RunsCount != 3 || got.TotalKm != 25 || got.LongestRun != 12 || got.ShortestRun != 3 {
		t.Fatalf("unexpected personal stats: %+v", got)
	}
	if got.ActiveDays != 2 {
		t.Fatalf("expected 2 active days, got %d", got.ActiveDays)
	}
	if got.Percentage != 25 {
		t.Fatalf("expected 25%% of goal, got %.2f", got.Percentage)
	}
	if len(got.Monthly) != 2 || got.Monthly[0].Month != 1 || got.Monthly[0].TotalKm != 15 || got.Monthly[1].Month != 4 {
		t.Fatalf("unexpected monthly breakdown: %+v", got.Monthly)
	}
}

func TestStatsServiceChatsRankingAndTotals(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	mustAddRun(t, runs, "a", 5, day(2024, 5, 1), "10")
	mustAddRun(t, runs, "b", 5, day(2024, 5, 1), "10")
	mustAddRun(t, runs, "c", 20, day(2024, 5, 2), "20")
	mustAddRun(t, runs, "c", 1, day(2024, 5, 3), "")
	mustAddRun(t, runs, "a", 8, day(2024, 6, 3), "")

	ranking, err := stats.ChatsRanking(2024)
	if err != nil {
		t.Fatalf("ChatsRanking returned error: %v", err)
	}
	if len(ranking) != 2 || ranking[0].ChatID != "20" || ranking[1].UsersCount != 2 {
		t.Fatalf("unexpected chats ranking: %+v", ranking)
	}

	total, err := stats.TotalStats(2024, 5)
	if err != nil {
		t.Fatalf("TotalStats returned error: %v", err)
	}
	if total != (TotalStats{RunsCount: 4, UsersCount: 3, TotalKm: 31, AvgKm: 7.75}) {
		t.Fatalf("unexpected total stats: %+v", total)
	}

	until, err := stats.ChatStatsUntil("10", day(2024, 5, 31))
	if err != nil {
		t.Fatalf("ChatStatsUntil returned error: %v", err)
	}
	if until.RunsCount != 2 || until.TotalKm != 10 || until.Until != "2024-05-31" {
		t.Fatalf("unexpected chat stats until May: %+v", until)
	}
	untilJune, err := stats.ChatStatsUntil("10", day(2024, 6, 3))
	if err != nil {
		t.Fatalf("ChatStatsUntil returned error: %v", err)
	}
	if untilJune.TotalKm != 18 {
		t.Fatalf("expected the end date to be inclusive, got %+v", untilJune)
	}
}

func TestStatsServiceGoalLeaderboard(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	runs := NewRunService(gdb, nil)
	users := NewUserService(gdb, nil)
	stats := NewStatsService(gdb, nil)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := users.GetOrCreate(id, id, ""); err != nil {
			t.Fatalf("GetOrCreate returned error: %v", err)
		}
	}
	if _, err := users.SetGoal("a", 100); err != nil {
		t.Fatalf("SetGoal returned error: %v", err)
	}
	if _, err := users.SetGoal("b", 50); err != nil {
		t.Fatalf("SetGoal returned error: %v", err)
	}

	mustAddRun(t, runs, "a", 20, day(2024, 2, 1), "")
	mustAddRun(t, runs, "c", 40, day(2024, 2, 1), "")

	board, err := stats.GoalLeaderboard(2024)
	if err != nil {
		t.Fatalf("GoalLeaderboard returned error: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected only users with goals, got %+v", board)
	}
	if board[0].UserID != "a" || board[0].Percentage != 20 {
		t.Fatalf("unexpected first row: %+v", board[0])
	}
	if board[1].UserID != "b" || board[1].TotalKm != 0 || board[1].Percentage != 0 {
		t.Fatalf("unexpected second row: %+v", board[1])
	}
}

// racingStore 在第一次回填前执行 beforeSet，模拟读方查库之后、回填之前提交的写入。
type racingStore struct {
	*cache.Memory
	beforeSet func()
}

func (s *racingStore) Set(userID, field string, gen uint64, value []byte) bool {
	if hook := s.beforeSet; hook != nil {
		s.beforeSet = nil
		hook()
	}
	return s.Memory.Set(userID, field, gen, value)
}

func TestStatsServiceUserStatsDropsBackfillAfterConcurrentWrite(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	store := &racingStore{Memory: cache.NewMemory(time.Minute)}
	runs := NewRunService(gdb, store)
	stats := NewStatsService(gdb, store)

	mustAddRun(t, runs, "u", 5, day(2024, 2, 1), "")
	store.beforeSet = func() {
		mustAddRun(t, runs, "u", 7, day(2024, 2, 2), "")
	}

	first, err := stats.UserStats("u", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if first.TotalKm != 5 {
		t.Fatalf("expected the read racing the write to see 5, got %.2f", first.TotalKm)
	}
	if _, ok := store.Get("u", "user_stats:2024-00"); ok {
		t.Fatal("expected backfill computed before the write to be dropped")
	}

	second, err := stats.UserStats("u", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if second.RunsCount != 2 || second.TotalKm != 12 {
		t.Fatalf("stale read after committed write: got %+v", second)
	}
	if _, ok := store.Get("u", "user_stats:2024-00"); !ok {
		t.Fatal("expected the fresh result to be cached")
	}
}
