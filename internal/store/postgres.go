package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/aggregator-service/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store on a pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-verified pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the jobs, saved_jobs and job_applications tables when
// they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// xmax = 0 only holds for a freshly inserted row, which tells inserts and
// updates apart in one round trip.
const upsertJobSQL = `
	INSERT INTO jobs (
		id, external_id, source, title, company, company_logo, company_url,
		location, location_type, description, description_html, requirements, benefits,
		category, tags, experience_level, employment_type,
		salary_min, salary_max, salary_currency, salary_period,
		apply_url, application_email, published_at, expires_at, fetched_at,
		sync_status, is_active, view_count, last_synced_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17,
		$18, $19, $20, $21,
		$22, $23, $24, $25, $26,
		'active', true, 0, NOW(), NOW(), NOW()
	)
	ON CONFLICT (source, external_id) DO UPDATE SET
		title             = EXCLUDED.title,
		company           = EXCLUDED.company,
		company_logo      = EXCLUDED.company_logo,
		company_url       = EXCLUDED.company_url,
		location          = EXCLUDED.location,
		location_type     = EXCLUDED.location_type,
		description       = EXCLUDED.description,
		description_html  = EXCLUDED.description_html,
		requirements      = EXCLUDED.requirements,
		benefits          = EXCLUDED.benefits,
		category          = EXCLUDED.category,
		tags              = EXCLUDED.tags,
		experience_level  = EXCLUDED.experience_level,
		employment_type   = EXCLUDED.employment_type,
		salary_min        = EXCLUDED.salary_min,
		salary_max        = EXCLUDED.salary_max,
		salary_currency   = EXCLUDED.salary_currency,
		salary_period     = EXCLUDED.salary_period,
		apply_url         = EXCLUDED.apply_url,
		application_email = EXCLUDED.application_email,
		published_at      = EXCLUDED.published_at,
		expires_at        = EXCLUDED.expires_at,
		fetched_at        = EXCLUDED.fetched_at,
		last_synced_at    = NOW(),
		sync_status       = 'active',
		updated_at        = NOW()
	RETURNING (xmax = 0) AS inserted`

// UpsertJobs sends all jobs as one pgx.Batch. The batch runs in a single
// implicit transaction, so one failing row rolls back the whole call and
// the counts are reported as zero.
func (s *PostgresStore) UpsertJobs(ctx context.Context, jobs []model.Job) (created, updated int, err error) {
	if len(jobs) == 0 {
		return 0, 0, nil
	}

	b := &pgx.Batch{}
	for _, j := range jobs {
		b.Queue(upsertJobSQL,
			j.ID, j.ExternalID, string(j.Source), j.Title, j.Company,
			nullable(j.CompanyLogo), nullable(j.CompanyURL),
			j.Location, string(j.LocationType), j.Description,
			nullable(j.DescriptionHTML), nullable(j.Requirements), nullable(j.Benefits),
			j.Category, tagsOrEmpty(j.Tags), nullable(string(j.ExperienceLevel)), string(j.EmploymentType),
			j.SalaryMin, j.SalaryMax, nullable(j.SalaryCurrency), nullable(j.SalaryPeriod),
			j.ApplyURL, nullable(j.ApplicationEmail), j.PublishedAt, j.ExpiresAt, j.FetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for _, j := range jobs {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			return 0, 0, fmt.Errorf("upsert %s: %w", j.ID, err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}
	if err := br.Close(); err != nil {
		return 0, 0, fmt.Errorf("upsert batch: %w", err)
	}
	return created, updated, nil
}

// MarkStale flags active jobs published before cutoff.
func (s *PostgresStore) MarkStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET sync_status = 'stale', updated_at = NOW()
		 WHERE sync_status = 'active'
		   AND published_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired never removes a job that is saved or applied to.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs j
		 WHERE j.sync_status = 'stale'
		   AND j.published_at < $1
		   AND NOT EXISTS (SELECT 1 FROM saved_jobs s WHERE s.job_id = j.id)
		   AND NOT EXISTS (SELECT 1 FROM job_applications a WHERE a.job_id = j.id)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
