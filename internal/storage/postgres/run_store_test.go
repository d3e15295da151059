package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

func sampleRun() leads.RunResult {
	now := time.Unix(1700000000, 0).UTC()
	usage := leads.NewUsageStats()
	usage.Spent = leads.USD(0.25)
	usage.StopReason = leads.StopBudgetExhausted
	return leads.RunResult{
		ID:         "run-1",
		StartedAt:  now,
		FinishedAt: now.Add(time.Minute),
		Domains:    []string{"acme.io"},
		Leads:      []leads.LeadRecord{leads.NewLeadRecord(leads.RawContactCandidate{Domain: "acme.io", Email: "ceo@acme.io", Source: "hunter"})},
		Usage:      usage,
	}
}

func TestSaveRunUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	run := sampleRun()
	payload, err := json.Marshal(run)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO lead_runs").
		WithArgs(run.ID, run.StartedAt, run.FinishedAt, "budget_exhausted", 1, int64(250_000), payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "runs")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO runs").WillReturnError(boom)

	err = store.SaveRun(context.Background(), sampleRun())
	require.ErrorIs(t, err, boom)
	require.Error(t, store.SaveRun(context.Background(), leads.RunResult{}))
}

func TestGetRunDecodesPayload(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	run := sampleRun()
	payload, err := json.Marshal(run)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM lead_runs").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))
	mock.ExpectQuery("SELECT payload FROM lead_runs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, "ceo@acme.io", got.Leads[0].Email)
	require.Equal(t, leads.USD(0.25), got.Usage.Spent)

	_, err = store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, leads.ErrRunNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaAndTableValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "bad;table")
	require.Error(t, err)
	_, err = NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lead_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), Config{})
	require.Error(t, err)
}
