package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, common.DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })

	a := NewArchive(db, nil)
	require.NoError(t, a.Migrate(ctx))
	// idempotent
	require.NoError(t, a.Migrate(ctx))
	return a
}

func completedRequest(t *testing.T, id string, created time.Time) entity.ProcessingRequest {
	t.Helper()
	gross, err := entity.Money("$5,000.00")
	require.NoError(t, err)
	doc := &entity.ExtractedDocument{
		GrossPay:          &entity.ExtractedField{Value: gross, Confidence: 0.95, Source: constants.SourcePDFText},
		PayFrequency:      constants.PayBiweekly,
		TaxDeductions:     []entity.Deduction{{Name: "Medicare", Amount: 72.5, Category: constants.DeductionTax, Confidence: 0.8, Source: constants.SourcePDFText}},
		BenefitDeductions: []entity.Deduction{},
		OtherDeductions:   []entity.Deduction{},
		Provider:          "ADP",
		OverallConfidence: 0.9,
	}
	req := entity.NewProcessingRequest(entity.Job{
		ID:          id,
		Payload:     []byte("payload"),
		ContentType: "application/pdf",
		Metadata:    map[string]any{"employee": "jdoe"},
		SubmittedAt: created,
	}, created)
	require.NoError(t, req.Advance(constants.JobStatusProcessing, created))
	require.NoError(t, req.Complete(doc, created.Add(time.Second)))
	return req
}

func TestCreateTableQuery(t *testing.T) {
	q := createTableQuery(dialect.Postgres)
	assert.True(t, strings.HasPrefix(q, `CREATE TABLE IF NOT EXISTS "processing_request" ("id" VARCHAR(64) NOT NULL, "status"`), q)
	assert.True(t, strings.HasSuffix(q, `"error" TEXT, PRIMARY KEY ("id"))`), q)

	// every selected column is created
	for _, c := range requestColumns {
		assert.Contains(t, createTableQuery(dialect.SQLite), "`"+c+"`")
	}
}

func TestArchiveRecordAndGet(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 19, 9, 30, 0, 0, time.UTC)

	req := completedRequest(t, "job-1", created)
	require.NoError(t, a.Record(ctx, req))

	got, err := a.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	assert.Equal(t, "application/pdf", got.FileType)
	assert.Equal(t, int64(7), got.FileSize)
	assert.Equal(t, "jdoe", got.Metadata["employee"])
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, created.Add(time.Second).Equal(*got.CompletedAt))

	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.GrossPay)
	amt, ok := got.Result.GrossPay.Value.Amount()
	require.True(t, ok)
	assert.Equal(t, 5000.00, amt)
	assert.Equal(t, "ADP", got.Result.Provider)
	require.Len(t, got.Result.TaxDeductions, 1)
	assert.Equal(t, "Medicare", got.Result.TaxDeductions[0].Name)
	assert.Empty(t, got.Error)
}

func TestArchiveUpsert(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	req := entity.NewProcessingRequest(entity.Job{ID: "job-2", Payload: []byte("x"), ContentType: "text/plain", SubmittedAt: created}, created)
	require.NoError(t, req.Advance(constants.JobStatusProcessing, created))
	require.NoError(t, a.Record(ctx, req))

	require.NoError(t, req.Fail("NO_FIELDS: no pay amounts found", created.Add(time.Minute)))
	require.NoError(t, a.Record(ctx, req))

	got, err := a.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "NO_FIELDS: no pay amounts found", got.Error)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.Metadata)

	all, err := a.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestArchiveGetMissing(t *testing.T) {
	a := newTestArchive(t)
	_, err := a.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestArchiveList(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order; sub-second offsets check the ordering of the text column
	for _, off := range []time.Duration{2 * time.Second, 500 * time.Millisecond, 0} {
		id := "job-" + off.String()
		require.NoError(t, a.Record(ctx, completedRequest(t, id, base.Add(off))))
	}
	failed := entity.NewProcessingRequest(entity.Job{ID: "job-failed", Payload: []byte("x"), ContentType: "text/plain", SubmittedAt: base.Add(time.Hour)}, base)
	require.NoError(t, failed.Advance(constants.JobStatusProcessing, base))
	require.NoError(t, failed.Fail("boom", base))
	require.NoError(t, a.Record(ctx, failed))

	all, err := a.List(ctx, "", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"job-0s", "job-500ms", "job-2s", "job-failed"}, ids)

	done, err := a.List(ctx, constants.JobStatusCompleted, 2)
	require.NoError(t, err)
	require.Len(t, done, 2)
	assert.Equal(t, "job-0s", done[0].ID)
	assert.Equal(t, "job-500ms", done[1].ID)

	onlyFailed, err := a.List(ctx, constants.JobStatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "boom", onlyFailed[0].Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{Driver: "oracle"}, nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestHealthCheck(t *testing.T) {
	db, err := Open(context.Background(), common.DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	defer db.Close(nil)
	assert.NoError(t, db.HealthCheck(context.Background(), time.Second))
}
