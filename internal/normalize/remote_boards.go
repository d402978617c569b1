package normalize

import (
	"encoding/json"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// ─── Remotive ────────────────────────────────────────────────────────────────

type remotiveItem struct {
	ID                        flexString `json:"id"`
	URL                       string     `json:"url"`
	Title                     string     `json:"title"`
	CompanyName               string     `json:"company_name"`
	CompanyLogo               string     `json:"company_logo"`
	Category                  string     `json:"category"`
	Tags                      []string   `json:"tags"`
	JobType                   string     `json:"job_type"`
	PublicationDate           string     `json:"publication_date"`
	CandidateRequiredLocation string     `json:"candidate_required_location"`
	Salary                    string     `json:"salary"`
	Description               string     `json:"description"`
}

// Remotive normalizes one item of remotive.com/api/remote-jobs.
func Remotive(raw json.RawMessage) *model.Job {
	var it remotiveItem
	if !decode(model.SourceRemotive, raw, &it) {
		return nil
	}
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceRemotive,
		Title:           it.Title,
		Company:         it.CompanyName,
		CompanyLogo:     it.CompanyLogo,
		Location:        firstNonEmpty(it.CandidateRequiredLocation, "Remote"),
		LocationType:    model.LocationRemote,
		Description:     StripHTML(it.Description),
		DescriptionHTML: it.Description,
		Category:        InferCategory(firstNonEmpty(it.Category, it.Title)),
		Tags:            Tags(it.Tags),
		ExperienceLevel: InferExperienceLevel(it.Title),
		EmploymentType:  InferEmploymentType(it.JobType),
		ApplyURL:        it.URL,
		PublishedAt:     parseTime(it.PublicationDate),
	}
	ParseSalary(it.Salary).apply(j, "year")
	return finish(j)
}

// ─── RemoteOK ────────────────────────────────────────────────────────────────

type remoteOKItem struct {
	ID          flexString `json:"id"`
	Slug        string     `json:"slug"`
	Epoch       int64      `json:"epoch"`
	Date        string     `json:"date"`
	Company     string     `json:"company"`
	CompanyLogo string     `json:"company_logo"`
	Logo        string     `json:"logo"`
	Position    string     `json:"position"`
	Tags        []string   `json:"tags"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	SalaryMin   flexFloat  `json:"salary_min"`
	SalaryMax   flexFloat  `json:"salary_max"`
	ApplyURL    string     `json:"apply_url"`
	URL         string     `json:"url"`
}

// RemoteOK normalizes one item of remoteok.com/api. The feed's leading
// legal-notice element has no position and is dropped by finish.
func RemoteOK(raw json.RawMessage) *model.Job {
	var it remoteOKItem
	if !decode(model.SourceRemoteOK, raw, &it) {
		return nil
	}
	published := parseTime(it.Date)
	if published == nil {
		published = unixTime(it.Epoch)
	}
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceRemoteOK,
		Title:           it.Position,
		Company:         it.Company,
		CompanyLogo:     firstNonEmpty(it.CompanyLogo, it.Logo),
		Location:        firstNonEmpty(it.Location, "Remote"),
		LocationType:    model.LocationRemote,
		Description:     StripHTML(it.Description),
		DescriptionHTML: it.Description,
		Category:        InferCategory(it.Position + " " + strings.Join(it.Tags, " ")),
		Tags:            Tags(it.Tags),
		ExperienceLevel: InferExperienceLevel(it.Position),
		EmploymentType:  model.EmploymentFullTime,
		ApplyURL:        firstNonEmpty(it.ApplyURL, it.URL),
		PublishedAt:     published,
	}
	SalaryFromBounds(float64(it.SalaryMin), float64(it.SalaryMax), "USD").apply(j, "year")
	return finish(j)
}

// ─── Arbeitnow ───────────────────────────────────────────────────────────────

type arbeitnowItem struct {
	Slug        string   `json:"slug"`
	CompanyName string   `json:"company_name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Remote      bool     `json:"remote"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	JobTypes    []string `json:"job_types"`
	Location    string   `json:"location"`
	CreatedAt   int64    `json:"created_at"`
}

// Arbeitnow normalizes one item of arbeitnow.com/api/job-board-api.
func Arbeitnow(raw json.RawMessage) *model.Job {
	var it arbeitnowItem
	if !decode(model.SourceArbeitnow, raw, &it) {
		return nil
	}
	j := &model.Job{
		ExternalID:      it.Slug,
		Source:          model.SourceArbeitnow,
		Title:           it.Title,
		Company:         it.CompanyName,
		Location:        it.Location,
		LocationType:    InferLocationType(it.Location, it.Remote),
		Description:     StripHTML(it.Description),
		DescriptionHTML: it.Description,
		Category:        InferCategory(it.Title),
		Tags:            Tags(it.Tags),
		ExperienceLevel: InferExperienceLevel(it.Title),
		EmploymentType:  InferEmploymentType(strings.Join(it.JobTypes, " ")),
		ApplyURL:        it.URL,
		PublishedAt:     unixTime(it.CreatedAt),
	}
	return finish(j)
}

// ─── Himalayas ───────────────────────────────────────────────────────────────

type himalayasItem struct {
	GUID                 string     `json:"guid"`
	Title                string     `json:"title"`
	Excerpt              string     `json:"excerpt"`
	CompanyName          string     `json:"companyName"`
	CompanyLogo          string     `json:"companyLogo"`
	CompanySlug          string     `json:"companySlug"`
	EmploymentType       string     `json:"employmentType"`
	MinSalary            flexFloat  `json:"minSalary"`
	MaxSalary            flexFloat  `json:"maxSalary"`
	Currency             string     `json:"currency"`
	Seniority            []string   `json:"seniority"`
	LocationRestrictions []string   `json:"locationRestrictions"`
	Categories           []string   `json:"categories"`
	Description          string     `json:"description"`
	PubDate              flexString `json:"pubDate"`
	ExpiryDate           flexString `json:"expiryDate"`
	ApplicationLink      string     `json:"applicationLink"`
}

// Himalayas normalizes one item of himalayas.app/jobs/api.
func Himalayas(raw json.RawMessage) *model.Job {
	var it himalayasItem
	if !decode(model.SourceHimalayas, raw, &it) {
		return nil
	}
	location := "Remote"
	if len(it.LocationRestrictions) > 0 {
		location = "Remote (" + strings.Join(it.LocationRestrictions, ", ") + ")"
	}
	companyURL := ""
	if it.CompanySlug != "" {
		companyURL = "https://himalayas.app/companies/" + it.CompanySlug
	}
	j := &model.Job{
		ExternalID:      firstNonEmpty(it.GUID, it.ApplicationLink),
		Source:          model.SourceHimalayas,
		Title:           it.Title,
		Company:         it.CompanyName,
		CompanyLogo:     it.CompanyLogo,
		CompanyURL:      companyURL,
		Location:        location,
		LocationType:    model.LocationRemote,
		Description:     StripHTML(firstNonEmpty(it.Description, it.Excerpt)),
		DescriptionHTML: it.Description,
		Category:        InferCategory(firstNonEmpty(strings.Join(it.Categories, " "), it.Title)),
		Tags:            Tags(it.Categories),
		ExperienceLevel: InferExperienceLevel(strings.Join(it.Seniority, " ")),
		EmploymentType:  InferEmploymentType(it.EmploymentType),
		ApplyURL:        it.ApplicationLink,
		PublishedAt:     parseTime(it.PubDate.String()),
		ExpiresAt:       parseTime(it.ExpiryDate.String()),
	}
	SalaryFromBounds(float64(it.MinSalary), float64(it.MaxSalary), it.Currency).apply(j, "year")
	return finish(j)
}

// ─── Jobicy ──────────────────────────────────────────────────────────────────

type jobicyItem struct {
	ID              flexString `json:"id"`
	URL             string     `json:"url"`
	JobTitle        string     `json:"jobTitle"`
	CompanyName     string     `json:"companyName"`
	CompanyLogo     string     `json:"companyLogo"`
	JobIndustry     []string   `json:"jobIndustry"`
	JobType         []string   `json:"jobType"`
	JobGeo          string     `json:"jobGeo"`
	JobLevel        string     `json:"jobLevel"`
	JobExcerpt      string     `json:"jobExcerpt"`
	JobDescription  string     `json:"jobDescription"`
	PubDate         string     `json:"pubDate"`
	AnnualSalaryMin flexFloat  `json:"annualSalaryMin"`
	AnnualSalaryMax flexFloat  `json:"annualSalaryMax"`
	SalaryCurrency  string     `json:"salaryCurrency"`
}

// Jobicy normalizes one item of jobicy.com/api/v2/remote-jobs.
func Jobicy(raw json.RawMessage) *model.Job {
	var it jobicyItem
	if !decode(model.SourceJobicy, raw, &it) {
		return nil
	}
	industries := make([]string, 0, len(it.JobIndustry))
	for _, ind := range it.JobIndustry {
		industries = append(industries, StripHTML(ind))
	}
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceJobicy,
		Title:           StripHTML(it.JobTitle),
		Company:         it.CompanyName,
		CompanyLogo:     it.CompanyLogo,
		Location:        firstNonEmpty(it.JobGeo, "Remote"),
		LocationType:    model.LocationRemote,
		Description:     StripHTML(firstNonEmpty(it.JobDescription, it.JobExcerpt)),
		DescriptionHTML: it.JobDescription,
		Category:        InferCategory(it.JobTitle + " " + strings.Join(industries, " ")),
		Tags:            Tags(industries),
		ExperienceLevel: InferExperienceLevel(it.JobLevel),
		EmploymentType:  InferEmploymentType(strings.Join(it.JobType, " ")),
		ApplyURL:        it.URL,
		PublishedAt:     parseTime(it.PubDate),
	}
	SalaryFromBounds(float64(it.AnnualSalaryMin), float64(it.AnnualSalaryMax), it.SalaryCurrency).apply(j, "year")
	return finish(j)
}
