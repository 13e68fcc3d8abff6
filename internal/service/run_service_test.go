package service

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return gdb
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func mustAddRun(t *testing.T, svc *RunService, userID string, km float64, date time.Time, chatID string) *db.RunningLog {
	t.Helper()
	run, err := svc.AddEntry(RunInput{UserID: userID, DistanceKm: km, Date: date, ChatID: chatID})
	if err != nil {
		t.Fatalf("AddEntry(%s, %.2f) returned error: %v", userID, km, err)
	}
	return run
}

type failingInvalidateStore struct {
	cache.Disabled
}

func (failingInvalidateStore) Invalidate(string) error {
	return errors.New("cache unavailable")
}

func TestRunServiceAddEntryRejectsInvalidDistance(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := NewRunService(gdb, nil)

	for _, km := range []float64{0, -1, 100.01, 0.004, math.NaN(), math.Inf(1)} {
		_, err := svc.AddEntry(RunInput{UserID: "u1", DistanceKm: km, Date: day(2024, 3, 1)})
		if !errors.Is(err, ErrInvalidDistance) {
			t.Fatalf("expected ErrInvalidDistance for %v, got %v", km, err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected invalid distance to be a validation error, got %v", err)
		}
	}

	var count int64
	if err := gdb.Model(&db.RunningLog{}).Count(&count).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rejected runs to leave no rows, got %d", count)
	}

	run := mustAddRun(t, svc, "u1", 100, day(2024, 3, 1), "")
	if run.Km != 100 {
		t.Fatalf("expected 100 km boundary to be accepted, got %.2f", run.Km)
	}
}

func TestRunServiceAddEntryNormalizesInput(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := NewRunService(gdb, nil)

	run, err := svc.AddEntry(RunInput{
		UserID:     " u1 ",
		DistanceKm: 5.126,
		Date:       time.Date(2024, 3, 1, 18, 45, 0, 0, time.UTC),
		Notes:      "<b>evening</b> run",
		ChatID:     "-100123",
		ChatType:   "supergroup",
	})
	if err != nil {
		t.Fatalf("AddEntry returned error: %v", err)
	}

	stored, err := svc.Get(run.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.UserID != "u1" {
		t.Fatalf("expected trimmed user id, got %q", stored.UserID)
	}
	if stored.Km != 5.13 {
		t.Fatalf("expected km rounded to 5.13, got %v", stored.Km)
	}
	if stored.ChatID == nil || *stored.ChatID != "123" {
		t.Fatalf("expected normalized chat id 123, got %v", stored.ChatID)
	}
	if stored.ChatType != db.ChatTypeSupergroup {
		t.Fatalf("unexpected chat type: %s", stored.ChatType)
	}
	if stored.Notes != "evening run" {
		t.Fatalf("expected sanitized notes, got %q", stored.Notes)
	}
	if !stored.Date.Equal(day(2024, 3, 1)) {
		t.Fatalf("expected date truncated to day, got %v", stored.Date)
	}

	private := mustAddRun(t, svc, "u1", 3, day(2024, 3, 2), "")
	if private.ChatID != nil || private.ChatType != db.ChatTypePrivate {
		t.Fatalf("expected private run without chat id, got %+v", private)
	}
}

func TestRunServiceEditEntryRoundTrip(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	store := cache.NewMemory(time.Minute)
	runs := NewRunService(gdb, store)
	stats := NewStatsService(gdb, store)

	run := mustAddRun(t, runs, "u1", 5, day(2024, 4, 10), "")

	before, err := stats.UserStats("u1", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if before.TotalKm != 5 {
		t.Fatalf("expected total 5, got %.2f", before.TotalKm)
	}

	if _, err := runs.EditEntry(run.ID, 7, "u1"); err != nil {
		t.Fatalf("EditEntry returned error: %v", err)
	}
	edited, err := stats.UserStats("u1", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if edited.TotalKm != 7 || edited.RunsCount != 1 {
		t.Fatalf("expected stats to reflect edit immediately, got %+v", edited)
	}

	if _, err := runs.EditEntry(run.ID, 5, "u1"); err != nil {
		t.Fatalf("EditEntry returned error: %v", err)
	}
	restored, err := stats.UserStats("u1", 2024, 0)
	if err != nil {
		t.Fatalf("UserStats returned error: %v", err)
	}
	if restored != before {
		t.Fatalf("expected stats to return to %+v, got %+v", before, restored)
	}
}

func TestRunServiceEditEntryChecksOwnershipAndDistance(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := NewRunService(gdb, nil)

	run := mustAddRun(t, svc, "owner", 5, day(2024, 4, 10), "")

	if _, err := svc.EditEntry(run.ID, 6, "intruder"); !errors.Is(err, ErrNotRunOwner) {
		t.Fatalf("expected ErrNotRunOwner, got %v", err)
	}
	if _, err := svc.EditEntry(run.ID, 150, "owner"); !errors.Is(err, ErrInvalidDistance) {
		t.Fatalf("expected ErrInvalidDistance, got %v", err)
	}
	if _, err := svc.EditEntry(run.ID+100, 6, "owner"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	stored, err := svc.Get(run.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Km != 5 {
		t.Fatalf("expected rejected edits to keep 5 km, got %.2f", stored.Km)
	}
}

func TestRunServiceDeleteEntry(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := NewRunService(gdb, nil)

	run := mustAddRun(t, svc, "owner", 5, day(2024, 4, 10), "")

	if err := svc.DeleteEntry(run.ID, "someone"); !errors.Is(err, ErrNotRunOwner) {
		t.Fatalf("expected ErrNotRunOwner, got %v", err)
	}
	if err := svc.DeleteEntry(run.ID, "owner"); err != nil {
		t.Fatalf("DeleteEntry returned error: %v", err)
	}
	if _, err := svc.Get(run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected deleted run to be gone, got %v", err)
	}
	if err := svc.DeleteEntry(run.ID, "owner"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on second delete, got %v", err)
	}
}

func TestRunServiceListRecent(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := NewRunService(gdb, nil)

	for i := 1; i <= 6; i++ {
		mustAddRun(t, svc, "u1", float64(i), day(2024, 5, i), "")
	}
	sameDay := mustAddRun(t, svc, "u1", 9, day(2024, 5, 6), "")
	mustAddRun(t, svc, "u2", 4, day(2024, 6, 1), "")

	runs, err := svc.ListRecent("u1", 0)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(runs) != defaultRecentRunsLimit {
		t.Fatalf("expected default limit of %d, got %d", defaultRecentRunsLimit, len(runs))
	}
	if runs[0].ID != sameDay.ID {
		t.Fatalf("expected latest insert on the newest day first, got %+v", runs[0])
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].Date.After(runs[i-1].Date) {
			t.Fatalf("expected runs ordered by date desc, got %v before %v", runs[i-1].Date, runs[i].Date)
		}
		if runs[i].UserID != "u1" {
			t.Fatalf("unexpected run from another user: %+v", runs[i])
		}
	}

	if _, err := svc.ListRecent("", 5); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestRunServiceInvalidateFailureRollsBackWrite(t *testing.T) {
	gdb := setupLedgerTestDB(t)
	svc := NewRunService(gdb, failingInvalidateStore{})

	if _, err := svc.AddEntry(RunInput{UserID: "u1", DistanceKm: 5, Date: day(2024, 1, 2)}); err == nil {
		t.Fatal("expected error when cache invalidation fails")
	}

	var count int64
	if err := gdb.Model(&db.RunningLog{}).Count(&count).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected write to be rolled back, got %d rows", count)
	}
}
