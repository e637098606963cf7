package db

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

// TestNewOpener はドライバ名から Opener を選択できることを検証します。
func TestNewOpener(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"sqlite", "SQLite", "", "postgres"} {
		if _, err := NewOpener(driver); err != nil {
			t.Errorf("driver %q: unexpected error: %v", driver, err)
		}
	}
	if _, err := NewOpener("mysql"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

// TestConnectWithRetry_SuccessOnFirstTry は初回接続成功時にリトライせずDBを返すことを検証します。
func TestConnectWithRetry_SuccessOnFirstTry(t *testing.T) {
	t.Parallel()

	mockDB := &gorm.DB{}
	attempts := 0
	opener := func(dsn string) (*gorm.DB, error) {
		attempts++
		return mockDB, nil
	}

	db, err := ConnectWithRetry("test-dsn", 5*time.Second, opener)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db != mockDB {
		t.Error("expected mock DB to be returned")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

// TestConnectWithRetry_RetriesOnFailure は接続失敗時にリトライして最終的に成功することを検証します。
func TestConnectWithRetry_RetriesOnFailure(t *testing.T) {
	mockDB := &gorm.DB{}
	attempts := 0
	opener := func(dsn string) (*gorm.DB, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return mockDB, nil
	}

	db, err := ConnectWithRetry("test-dsn", 10*time.Second, opener)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db != mockDB {
		t.Error("expected mock DB to be returned")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// TestConnectWithRetry_TimeoutAfterRetries はタイムアウト後にエラーが返されることを検証します。
func TestConnectWithRetry_TimeoutAfterRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	opener := func(dsn string) (*gorm.DB, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	_, err := ConnectWithRetry("test-dsn", 100*time.Millisecond, opener)
	if err == nil {
		t.Fatal("expected error after timeout, got nil")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if attempts == 0 {
		t.Error("expected at least one connection attempt")
	}
}

// TestOpen_SQLiteMigrates はインメモリ sqlite に接続しマイグレーションできることを検証します。
func TestOpen_SQLiteMigrates(t *testing.T) {
	t.Parallel()

	db, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:", ConnectTimeout: time.Second, RunMigrations: true}, &widget{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !db.Migrator().HasTable(&widget{}) {
		t.Fatal("expected widget table to exist")
	}
	if err := db.Create(&widget{Name: "x"}).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("expected MaxOpenConnections 1, got %d", got)
	}
}

// TestOpen_SkipsMigrations は RunMigrations=false のときテーブルを作らないことを検証します。
func TestOpen_SkipsMigrations(t *testing.T) {
	t.Parallel()

	db, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:", ConnectTimeout: time.Second}, &widget{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Migrator().HasTable(&widget{}) {
		t.Error("expected no table without migrations")
	}
}

// TestOpen_UnsupportedDriver は未対応ドライバでエラーになることを検証します。
func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
