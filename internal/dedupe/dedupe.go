// Package dedupe collapses near-identical postings that several sources (or
// repeated scrapes of one source) return for the same logical job.
package dedupe

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"jobmate/aggregator-service/internal/model"
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

func normalizeText(s string) string {
	s = nonWord.ReplaceAllString(strings.ToLower(s), "")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// CreateJobFingerprint is invariant to case, punctuation and spacing of the
// title and company. Source and external id play no part.
func CreateJobFingerprint(j model.Job) model.JobFingerprint {
	title := normalizeText(j.Title)
	company := normalizeText(j.Company)
	return model.JobFingerprint{
		NormalizedTitle:   title,
		NormalizedCompany: company,
		Hash:              title + "-" + company,
	}
}

// Quality score weights.
const (
	scoreIdentity       = 10
	scoreLongDesc       = 15
	scoreHTMLDesc       = 5
	scoreAnySalary      = 10
	scoreFullSalary     = 5
	scoreRequirements   = 8
	scoreBenefits       = 7
	scoreOptional       = 5
	scoreApplyEmail     = 3
	longDescriptionSize = 100
)

// CalculateQualityScore measures how complete a record is. It only breaks
// ties between duplicates.
func CalculateQualityScore(j model.Job) int {
	score := 0
	if j.Title != "" && j.Company != "" {
		score += scoreIdentity
	}
	if utf8.RuneCountInString(j.Description) > longDescriptionSize {
		score += scoreLongDesc
	}
	if j.DescriptionHTML != "" {
		score += scoreHTMLDesc
	}
	if j.SalaryMin != nil || j.SalaryMax != nil {
		score += scoreAnySalary
		if j.SalaryMin != nil && j.SalaryMax != nil {
			score += scoreFullSalary
		}
	}
	if j.Requirements != "" {
		score += scoreRequirements
	}
	if j.Benefits != "" {
		score += scoreBenefits
	}

	optional := []bool{
		j.CompanyLogo != "",
		j.CompanyURL != "",
		j.Category != "",
		len(j.Tags) > 0,
		j.ExperienceLevel != model.ExperienceUnknown,
		j.EmploymentType != "",
		j.Location != "",
		j.ApplyURL != "" && j.ApplyURL != model.NoApplyURL,
		j.PublishedAt != nil,
	}
	for _, present := range optional {
		if present {
			score += scoreOptional
		}
	}

	if j.ApplicationEmail != "" {
		score += scoreApplyEmail
	}
	return score
}

// SelectBetterJob prefers the higher score, then the more recent publish
// date. A missing date counts as the earliest possible. On a full tie a wins.
func SelectBetterJob(a, b model.Job) model.Job {
	sa, sb := CalculateQualityScore(a), CalculateQualityScore(b)
	if sa != sb {
		if sb > sa {
			return b
		}
		return a
	}
	switch {
	case b.PublishedAt == nil:
		return a
	case a.PublishedAt == nil:
		return b
	case b.PublishedAt.After(*a.PublishedAt):
		return b
	default:
		return a
	}
}

// DeduplicateJobs keeps the best record per fingerprint. Output order follows
// the first appearance of each fingerprint.
func DeduplicateJobs(jobs []model.Job) []model.Job {
	best := make(map[string]int, len(jobs))
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		hash := CreateJobFingerprint(j).Hash
		if i, seen := best[hash]; seen {
			out[i] = SelectBetterJob(out[i], j)
			continue
		}
		best[hash] = len(out)
		out = append(out, j)
	}
	return out
}
