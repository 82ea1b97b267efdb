package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/grimlore/loremaster/internal/core/domain"
)

func newCampaignRepoWithMock(t *testing.T) (*CampaignRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewCampaignRepository(db, nil), mock, func() { _ = db.Close() }
}

func recordColumns() []string {
	return []string{"id", "campaign_id", "data_type", "name", "content", "version", "tags", "deleted", "created_at", "updated_at"}
}

func TestCampaignRepositoryGetNotFound(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, campaign_id, data_type").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing", false)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryGetScansRecord(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, campaign_id, data_type").
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("rec-1", "camp-1", "npc", "Strahd", []byte(`{"hp":144}`), 3, []byte(`["villain"]`), false, now, now))

	record, err := repo.Get(context.Background(), "rec-1", false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record.DataType != domain.DataTypeNPC || record.Version != 3 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Content["hp"] != float64(144) {
		t.Fatalf("expected content decoded, got %v", record.Content)
	}
	if len(record.Tags) != 1 || record.Tags[0] != "villain" {
		t.Fatalf("expected tags decoded, got %v", record.Tags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryUpdateStaleBaseConflicts(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE campaign_records").
		WithArgs("rec-1", 2, "Strahd", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT version, deleted FROM campaign_records").
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "deleted"}).AddRow(5, false))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "rec-1", 2, "Strahd", nil, nil)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryUpdateMissingRecordNotFound(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE campaign_records").
		WithArgs("missing", 1, "Strahd", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT version, deleted FROM campaign_records").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "missing", 1, "Strahd", nil, nil)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryUpdateAppendsVersionEntry(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE campaign_records").
		WithArgs("rec-1", 3, "Strahd", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("rec-1", "camp-1", "npc", "Strahd", []byte(`{}`), 4, []byte(`[]`), false, now, now))
	mock.ExpectExec("INSERT INTO campaign_record_versions").
		WithArgs("rec-1", 4, "Strahd", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := repo.Update(context.Background(), "rec-1", 3, "Strahd", nil, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if record.Version != 4 {
		t.Fatalf("expected version 4, got %d", record.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositorySoftDeleteNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE campaign_records").
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryHistoryOrdersByVersion(t *testing.T) {
	repo, mock, done := newCampaignRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT record_id, version, name, content, created_at").
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "version", "name", "content", "created_at"}).
			AddRow("rec-1", 1, "Strahd", []byte(`{}`), now).
			AddRow("rec-1", 2, "Strahd", []byte(`{"hp":100}`), now))

	history, err := repo.History(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[1].Version != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
