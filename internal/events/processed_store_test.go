package events

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("twilio", "SM1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "twilio", "SM1")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("twilio", "SM-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "twilio", "SM-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("whatsapp", "wamid.new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "whatsapp", " wamid.new ")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("whatsapp", "wamid.new").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.MarkProcessed(context.Background(), "whatsapp", "wamid.new")
	if err != nil || ok {
		t.Fatalf("expected duplicate to report false, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessedStoreErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	if _, err := store.MarkProcessed(context.Background(), "", "id"); !errors.Is(err, errMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("telnyx", "evt").WillReturnError(errors.New("conn reset"))
	if _, err := store.MarkProcessed(context.Background(), "telnyx", "evt"); err == nil {
		t.Fatalf("expected exec error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessedStorePurge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM processed_events").WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	n, err := store.Purge(context.Background(), cutoff)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 purged rows, got %d %v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
