// Package model defines shared data structures for the aggregator service.
package model

import (
	"context"
	"time"
)

// Source identifies an external job-listing provider.
type Source string

const (
	SourceRemotive   Source = "remotive"
	SourceRemoteOK   Source = "remoteok"
	SourceArbeitnow  Source = "arbeitnow"
	SourceHimalayas  Source = "himalayas"
	SourceTheMuse    Source = "themuse"
	SourceJobicy     Source = "jobicy"
	SourceUSAJobs    Source = "usajobs"
	SourceFindWork   Source = "findwork"
	SourceLinkedIn   Source = "linkedin"
	SourceGreenhouse Source = "greenhouse"
	SourceIndeed     Source = "indeed"
)

// LocationType values mirror the location_type column.
type LocationType string

const (
	LocationRemote LocationType = "remote"
	LocationHybrid LocationType = "hybrid"
	LocationOnsite LocationType = "onsite"
)

// ExperienceLevel is empty when the source gives no usable signal.
type ExperienceLevel string

const (
	ExperienceUnknown   ExperienceLevel = ""
	ExperienceEntry     ExperienceLevel = "entry"
	ExperienceMid       ExperienceLevel = "mid"
	ExperienceSenior    ExperienceLevel = "senior"
	ExperienceExecutive ExperienceLevel = "executive"
)

// EmploymentType values mirror the employment_type column.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full-time"
	EmploymentPartTime   EmploymentType = "part-time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
	EmploymentFreelance  EmploymentType = "freelance"
	EmploymentTemporary  EmploymentType = "temporary"
)

// SyncStatus tracks a stored job through its staleness lifecycle.
type SyncStatus string

const (
	SyncStatusActive SyncStatus = "active"
	SyncStatusStale  SyncStatus = "stale"
)

// NoApplyURL is stored when a source offers no usable apply destination.
const NoApplyURL = "#"

// Job is the unified record every normalizer produces.
// (Source, ExternalID) is its durable identity and the upsert key.
type Job struct {
	ID               string          `json:"id"`
	ExternalID       string          `json:"externalId"`
	Source           Source          `json:"source"`
	Title            string          `json:"title"`
	Company          string          `json:"company"`
	CompanyLogo      string          `json:"companyLogo,omitempty"`
	CompanyURL       string          `json:"companyUrl,omitempty"`
	Location         string          `json:"location"`
	LocationType     LocationType    `json:"locationType"`
	Description      string          `json:"description"`
	DescriptionHTML  string          `json:"descriptionHtml,omitempty"`
	Requirements     string          `json:"requirements,omitempty"`
	Benefits         string          `json:"benefits,omitempty"`
	Category         string          `json:"category"`
	Tags             []string        `json:"tags"`
	ExperienceLevel  ExperienceLevel `json:"experienceLevel,omitempty"`
	EmploymentType   EmploymentType  `json:"employmentType"`
	SalaryMin        *int            `json:"salaryMin,omitempty"`
	SalaryMax        *int            `json:"salaryMax,omitempty"`
	SalaryCurrency   string          `json:"salaryCurrency,omitempty"`
	SalaryPeriod     string          `json:"salaryPeriod,omitempty"`
	ApplyURL         string          `json:"applyUrl"`
	ApplicationEmail string          `json:"applicationEmail,omitempty"`
	PublishedAt      *time.Time      `json:"publishedAt,omitempty"`
	ExpiresAt        *time.Time      `json:"expiresAt,omitempty"`
	FetchedAt        time.Time       `json:"fetchedAt"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// JobID derives the stored id from the upsert key.
func JobID(source Source, externalID string) string {
	return string(source) + "-" + externalID
}

// JobFingerprint identifies the same logical posting across sources.
// It is never persisted.
type JobFingerprint struct {
	NormalizedTitle   string
	NormalizedCompany string
	Hash              string
}

// FetchParams is the page window a fetcher is asked for. Page starts at 1.
type FetchParams struct {
	Page  int
	Limit int
	// Wait blocks until the source's rate limit admits another request.
	// The caller has already waited for the first request of a Fetch; a
	// fetcher that needs more than one request calls Throttle before each
	// further one. Nil means unthrottled.
	Wait func(ctx context.Context) error
}

// Throttle calls Wait when one is set.
func (p FetchParams) Throttle(ctx context.Context) error {
	if p.Wait == nil {
		return nil
	}
	return p.Wait(ctx)
}

// SyncResult is the per-source outcome of one sync invocation.
type SyncResult struct {
	Source      Source   `json:"source"`
	RunID       string   `json:"runId"`
	Success     bool     `json:"success"`
	JobsFetched int      `json:"jobsFetched"`
	JobsCreated int      `json:"jobsCreated"`
	JobsUpdated int      `json:"jobsUpdated"`
	JobsSkipped int      `json:"jobsSkipped"`
	DurationMS  int64    `json:"durationMs"`
	Errors      []string `json:"errors"`
}
