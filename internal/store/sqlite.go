// Package store persists analysis jobs and collected articles in SQLite.
// It is the single source of truth for job status: the create-or-fetch and
// status-transition operations are transactional so concurrent submitters
// can never both start work for the same fingerprint.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Ensure SQLiteStore satisfies both store contracts.
var (
	_ model.JobStore     = (*SQLiteStore)(nil)
	_ model.ArticleStore = (*SQLiteStore)(nil)
)

// SQLiteStore backs the job and article stores with a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id              TEXT PRIMARY KEY,
	fingerprint     TEXT NOT NULL,
	content_text    TEXT NOT NULL DEFAULT '',
	content_url     TEXT NOT NULL DEFAULT '',
	kinds           TEXT NOT NULL,
	status          TEXT NOT NULL,
	result          TEXT,
	error_message   TEXT,
	error_retriable INTEGER,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint ON analysis_jobs(fingerprint);

CREATE TABLE IF NOT EXISTS collected_articles (
	id              TEXT PRIMARY KEY,
	source_feed     TEXT NOT NULL,
	url             TEXT NOT NULL UNIQUE,
	normalized_url  TEXT NOT NULL UNIQUE,
	content_hash    TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	published_at    DATETIME,
	collected_at    DATETIME NOT NULL,
	analysis_job_id TEXT NOT NULL DEFAULT ''
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows one writer; serialize access through a single conn so
	// concurrent transactions queue instead of returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJobIfAbsent inserts job unless a non-failed job with the same
// fingerprint exists. The check-and-insert runs in one transaction, which is
// what makes concurrent duplicate submissions coalesce onto a single job.
func (s *SQLiteStore) CreateJobIfAbsent(ctx context.Context, job *model.AnalysisJob) (*model.AnalysisJob, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create-job tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanJob(tx.QueryRowContext(ctx,
		selectJobColumns+` FROM analysis_jobs WHERE fingerprint = ? AND status != ? LIMIT 1`,
		job.Fingerprint, string(model.StatusFailed),
	))
	switch {
	case err == nil:
		// Coalesce: hand back the existing non-failed job.
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("lookup job by fingerprint: %w", err)
	}

	kinds, err := json.Marshal(job.Kinds)
	if err != nil {
		return nil, false, fmt.Errorf("marshal kinds: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analysis_jobs
			(id, fingerprint, content_text, content_url, kinds, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Fingerprint, job.Content.Text, job.Content.URL,
		string(kinds), string(job.Status), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job %s: %w", job.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create-job tx: %w", err)
	}
	return job, true, nil
}

// UpdateStatus transitions a job and persists its terminal payload. Terminal
// jobs are never modified: the UPDATE is conditioned on a non-terminal
// current status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status model.JobStatus, result *model.AnalysisResult, jobErr *model.JobError) error {
	var resultJSON sql.NullString
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	var errMsg sql.NullString
	var errRetriable sql.NullBool
	if jobErr != nil {
		errMsg = sql.NullString{String: jobErr.Message, Valid: true}
		errRetriable = sql.NullBool{Bool: jobErr.Retriable, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs
		SET status = ?, result = ?, error_message = ?, error_retriable = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(status), resultJSON, errMsg, errRetriable, time.Now().UTC(),
		id, string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("update job %s to %s: %w", id, status, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: rows affected: %w", id, err)
	}
	if rows == 0 {
		// Either the job does not exist or it is already terminal.
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return model.ErrTerminalStatus
	}
	return nil
}

// GetJob returns the current snapshot of a job.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.AnalysisJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		selectJobColumns+` FROM analysis_jobs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// FindJobByFingerprint returns the most recent job for a fingerprint, or
// ErrNotFound.
func (s *SQLiteStore) FindJobByFingerprint(ctx context.Context, fingerprint string) (*model.AnalysisJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		selectJobColumns+` FROM analysis_jobs WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`,
		fingerprint,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by fingerprint: %w", err)
	}
	return job, nil
}

const selectJobColumns = `SELECT id, fingerprint, content_text, content_url, kinds, status,
	result, error_message, error_retriable, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.AnalysisJob, error) {
	var (
		job          model.AnalysisJob
		kindsJSON    string
		status       string
		resultJSON   sql.NullString
		errMsg       sql.NullString
		errRetriable sql.NullBool
	)
	err := row.Scan(
		&job.ID, &job.Fingerprint, &job.Content.Text, &job.Content.URL,
		&kindsJSON, &status, &resultJSON, &errMsg, &errRetriable,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(kindsJSON), &job.Kinds); err != nil {
		return nil, fmt.Errorf("unmarshal kinds for job %s: %w", job.ID, err)
	}
	job.Status = model.JobStatus(status)

	if resultJSON.Valid {
		var result model.AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result for job %s: %w", job.ID, err)
		}
		job.Result = &result
	}
	if errMsg.Valid {
		job.Error = &model.JobError{
			Message:   errMsg.String,
			Retriable: errRetriable.Bool,
		}
	}
	return &job, nil
}

// CreateArticleIfAbsent inserts the article unless its canonical URL,
// normalized URL, or content hash clashes with an existing row. Duplicates
// are detected by the unique constraints and silently skipped.
func (s *SQLiteStore) CreateArticleIfAbsent(ctx context.Context, article *model.CollectedArticle) (bool, error) {
	var publishedAt sql.NullTime
	if article.PublishedAt != nil {
		publishedAt = sql.NullTime{Time: *article.PublishedAt, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collected_articles
			(id, source_feed, url, normalized_url, content_hash, title, summary, body,
			 published_at, collected_at, analysis_job_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')`,
		article.ID, article.SourceFeed, article.URL, article.NormalizedURL,
		article.ContentHash, article.Title, article.Summary, article.Body,
		publishedAt, article.CollectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", article.URL, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article: rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetArticle returns one collected article by ID.
func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*model.CollectedArticle, error) {
	article, err := scanArticle(s.db.QueryRowContext(ctx,
		selectArticleColumns+` FROM collected_articles WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return article, nil
}

// ListArticles returns collected articles newest-first.
func (s *SQLiteStore) ListArticles(ctx context.Context, limit, offset int) ([]model.CollectedArticle, error) {
	rows, err := s.db.QueryContext(ctx,
		selectArticleColumns+` FROM collected_articles ORDER BY collected_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []model.CollectedArticle
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

// LinkArticleToJob sets the article's job back-reference.
func (s *SQLiteStore) LinkArticleToJob(ctx context.Context, articleID, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collected_articles SET analysis_job_id = ? WHERE id = ?`,
		jobID, articleID,
	)
	if err != nil {
		return fmt.Errorf("link article %s to job %s: %w", articleID, jobID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link article: rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFound
	}
	return nil
}

// CleanupArticles deletes articles collected before the retention window.
func (s *SQLiteStore) CleanupArticles(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM collected_articles WHERE collected_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup articles older than %v: %w", olderThan, err)
	}
	return res.RowsAffected()
}

const selectArticleColumns = `SELECT id, source_feed, url, normalized_url, content_hash,
	title, summary, body, published_at, collected_at, analysis_job_id`

func scanArticle(row rowScanner) (*model.CollectedArticle, error) {
	var (
		article     model.CollectedArticle
		publishedAt sql.NullTime
	)
	err := row.Scan(
		&article.ID, &article.SourceFeed, &article.URL, &article.NormalizedURL,
		&article.ContentHash, &article.Title, &article.Summary, &article.Body,
		&publishedAt, &article.CollectedAt, &article.AnalysisJobID,
	)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		article.PublishedAt = &t
	}
	return &article, nil
}
