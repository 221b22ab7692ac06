package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

const (
	requestTable = "processing_request"
	// fixed width so text ordering matches time ordering
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var requestColumns = []string{
	"id", "status", "file_type", "file_size", "metadata",
	"created_at", "updated_at", "completed_at", "result", "error",
}

// ArchiveRepository persists terminal processing records.
type ArchiveRepository interface {
	Migrate(ctx context.Context) error
	Record(ctx context.Context, req entity.ProcessingRequest) error
	Get(ctx context.Context, id string) (entity.ProcessingRequest, error)
	List(ctx context.Context, status constants.JobStatus, limit int) ([]entity.ProcessingRequest, error)
}

// Archive stores processing records in the processing_request table.
// Timestamps are kept as RFC 3339 text so both dialects sort them the same way.
type Archive struct {
	drv     *entsql.Driver
	dialect string
	log     *slog.Logger
}

func NewArchive(db *DB, log *slog.Logger) *Archive {
	if log == nil {
		log = slog.Default()
	}
	return &Archive{drv: db.Driver, dialect: db.Dialect(), log: log}
}

type columnDef struct{ name, typ string }

var requestSchema = []columnDef{
	{"id", "VARCHAR(64) NOT NULL"},
	{"status", "VARCHAR(16) NOT NULL"},
	{"file_type", "VARCHAR(128) NOT NULL"},
	{"file_size", "BIGINT NOT NULL"},
	{"metadata", "TEXT"},
	{"created_at", "VARCHAR(40) NOT NULL"},
	{"updated_at", "VARCHAR(40) NOT NULL"},
	{"completed_at", "VARCHAR(40)"},
	{"result", "TEXT"},
	{"error", "TEXT"},
}

// createTableQuery renders the table DDL with the dialect's identifier quoting.
func createTableQuery(d string) string {
	return entsql.Dialect(d).String(func(b *entsql.Builder) {
		b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(requestTable).Pad().Wrap(func(b *entsql.Builder) {
			for i, c := range requestSchema {
				if i > 0 {
					b.Comma()
				}
				b.Ident(c.name).Pad().WriteString(c.typ)
			}
			b.Comma().WriteString("PRIMARY KEY ").Wrap(func(b *entsql.Builder) { b.Ident("id") })
		})
	})
}

// Migrate creates the table when it is missing.
func (a *Archive) Migrate(ctx context.Context) error {
	if err := a.drv.Exec(ctx, createTableQuery(a.dialect), []any{}, nil); err != nil {
		a.log.Error("archive migrate failed", "err", err)
		return errors.Wrap(err, "create processing_request table")
	}
	a.log.Info("archive schema ready", "table", requestTable)
	return nil
}

// Record upserts req. It implements async.ResultSink.
func (a *Archive) Record(ctx context.Context, req entity.ProcessingRequest) error {
	metadata, err := marshalNullable(req.Metadata, len(req.Metadata) == 0)
	if err != nil {
		return errors.Wrap(err, "encode metadata")
	}
	result, err := marshalNullable(req.Result, req.Result == nil)
	if err != nil {
		return errors.Wrap(err, "encode result")
	}
	var completed any
	if req.CompletedAt != nil {
		completed = formatTime(*req.CompletedAt)
	}
	var errMsg any
	if req.Error != "" {
		errMsg = req.Error
	}

	q, args := entsql.Dialect(a.dialect).
		Insert(requestTable).
		Columns(requestColumns...).
		Values(
			req.ID, string(req.Status), req.FileType, req.FileSize, metadata,
			formatTime(req.CreatedAt), formatTime(req.UpdatedAt), completed, result, errMsg,
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := a.drv.Exec(ctx, q, args, nil); err != nil {
		a.log.Error("archive record failed", "job_id", req.ID, "err", err)
		return errors.Wrapf(err, "archive job %s", req.ID)
	}
	a.log.Debug("archived processing request", "job_id", req.ID, "status", req.Status)
	return nil
}

// Get returns the archived record, or common.ErrNotFound.
func (a *Archive) Get(ctx context.Context, id string) (entity.ProcessingRequest, error) {
	b := entsql.Dialect(a.dialect)
	t := b.Table(requestTable)
	q, args := b.Select(requestColumns...).From(t).Where(entsql.EQ(t.C("id"), id)).Query()

	reqs, err := a.query(ctx, q, args)
	if err != nil {
		return entity.ProcessingRequest{}, errors.Wrapf(err, "get job %s", id)
	}
	if len(reqs) == 0 {
		return entity.ProcessingRequest{}, errors.Wrapf(common.ErrNotFound, "job %s", id)
	}
	return reqs[0], nil
}

// List returns archived records oldest first. An empty status matches all;
// limit <= 0 means no limit.
func (a *Archive) List(ctx context.Context, status constants.JobStatus, limit int) ([]entity.ProcessingRequest, error) {
	b := entsql.Dialect(a.dialect)
	t := b.Table(requestTable)
	sel := b.Select(requestColumns...).From(t).OrderBy(t.C("created_at"), t.C("id"))
	if status != "" {
		sel = sel.Where(entsql.EQ(t.C("status"), string(status)))
	}
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	q, args := sel.Query()
	reqs, err := a.query(ctx, q, args)
	return reqs, errors.Wrap(err, "list jobs")
}

func (a *Archive) query(ctx context.Context, q string, args []any) ([]entity.ProcessingRequest, error) {
	var rows entsql.Rows
	if err := a.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ProcessingRequest
	for rows.Next() {
		var (
			req                         entity.ProcessingRequest
			status, created, updated    string
			metadata, completed, result sql.NullString
			errMsg                      sql.NullString
		)
		if err := rows.Scan(&req.ID, &status, &req.FileType, &req.FileSize, &metadata,
			&created, &updated, &completed, &result, &errMsg); err != nil {
			return nil, errors.Wrap(err, "scan processing_request")
		}
		req.Status = constants.JobStatus(status)
		req.Error = errMsg.String

		var err error
		if req.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if req.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if completed.Valid {
			ts, err := parseTime(completed.String)
			if err != nil {
				return nil, err
			}
			req.CompletedAt = &ts
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &req.Metadata); err != nil {
				return nil, errors.Wrapf(err, "decode metadata of %s", req.ID)
			}
		}
		if result.Valid {
			req.Result = &entity.ExtractedDocument{}
			if err := json.Unmarshal([]byte(result.String), req.Result); err != nil {
				return nil, errors.Wrapf(err, "decode result of %s", req.ID)
			}
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func marshalNullable(v any, isNull bool) (any, error) {
	if isNull {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, errors.Wrapf(err, "parse timestamp %q", s)
}
