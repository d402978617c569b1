package normalize

import (
	"encoding/json"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// ─── The Muse ────────────────────────────────────────────────────────────────

type museName struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

type museItem struct {
	ID              flexString `json:"id"`
	Name            string     `json:"name"`
	Contents        string     `json:"contents"`
	PublicationDate string     `json:"publication_date"`
	Type            string     `json:"type"`
	Locations       []museName `json:"locations"`
	Categories      []museName `json:"categories"`
	Levels          []museName `json:"levels"`
	Company         museName   `json:"company"`
	Refs            struct {
		LandingPage string `json:"landing_page"`
	} `json:"refs"`
}

// TheMuse normalizes one item of themuse.com/api/public/jobs.
func TheMuse(raw json.RawMessage) *model.Job {
	var it museItem
	if !decode(model.SourceTheMuse, raw, &it) {
		return nil
	}
	locations := names(it.Locations)
	categories := names(it.Categories)
	levels := names(it.Levels)

	location := strings.Join(locations, "; ")
	remote := false
	for _, l := range locations {
		if strings.Contains(strings.ToLower(l), "flexible / remote") {
			remote = true
		}
	}
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceTheMuse,
		Title:           it.Name,
		Company:         it.Company.Name,
		Location:        location,
		LocationType:    InferLocationType(location, remote),
		Description:     StripHTML(it.Contents),
		DescriptionHTML: it.Contents,
		Category:        InferCategory(firstNonEmpty(strings.Join(categories, " "), it.Name)),
		Tags:            Tags(categories),
		ExperienceLevel: InferExperienceLevel(strings.Join(levels, " ")),
		EmploymentType:  InferEmploymentType(it.Type),
		ApplyURL:        it.Refs.LandingPage,
		PublishedAt:     parseTime(it.PublicationDate),
	}
	return finish(j)
}

func names(in []museName) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

// ─── USAJobs ─────────────────────────────────────────────────────────────────

type usaJobsItem struct {
	MatchedObjectID         flexString `json:"MatchedObjectId"`
	MatchedObjectDescriptor struct {
		PositionID              string   `json:"PositionID"`
		PositionTitle           string   `json:"PositionTitle"`
		PositionURI             string   `json:"PositionURI"`
		ApplyURI                []string `json:"ApplyURI"`
		PositionLocationDisplay string   `json:"PositionLocationDisplay"`
		OrganizationName        string   `json:"OrganizationName"`
		DepartmentName          string   `json:"DepartmentName"`
		JobCategory             []struct {
			Name string `json:"Name"`
		} `json:"JobCategory"`
		JobGrade []struct {
			Code string `json:"Code"`
		} `json:"JobGrade"`
		PositionSchedule []struct {
			Name string `json:"Name"`
		} `json:"PositionSchedule"`
		PositionRemuneration []struct {
			MinimumRange     flexFloat `json:"MinimumRange"`
			MaximumRange     flexFloat `json:"MaximumRange"`
			RateIntervalCode string    `json:"RateIntervalCode"`
		} `json:"PositionRemuneration"`
		PublicationStartDate string `json:"PublicationStartDate"`
		ApplicationCloseDate string `json:"ApplicationCloseDate"`
		QualificationSummary string `json:"QualificationSummary"`
		UserArea             struct {
			Details struct {
				JobSummary       string   `json:"JobSummary"`
				MajorDuties      []string `json:"MajorDuties"`
				Benefits         string   `json:"Benefits"`
				TeleworkEligible bool     `json:"TeleworkEligible"`
				RemoteIndicator  bool     `json:"RemoteIndicator"`
				LowGrade         string   `json:"LowGrade"`
			} `json:"Details"`
		} `json:"UserArea"`
	} `json:"MatchedObjectDescriptor"`
}

// USAJobs normalizes one SearchResultItem of data.usajobs.gov/api/search.
func USAJobs(raw json.RawMessage) *model.Job {
	var it usaJobsItem
	if !decode(model.SourceUSAJobs, raw, &it) {
		return nil
	}
	d := it.MatchedObjectDescriptor
	details := d.UserArea.Details

	applyURL := d.PositionURI
	if len(d.ApplyURI) > 0 {
		applyURL = firstNonEmpty(d.ApplyURI[0], d.PositionURI)
	}
	categories := make([]string, 0, len(d.JobCategory))
	for _, c := range d.JobCategory {
		categories = append(categories, c.Name)
	}
	schedule := ""
	if len(d.PositionSchedule) > 0 {
		schedule = d.PositionSchedule[0].Name
	}

	location := d.PositionLocationDisplay
	locationType := InferLocationType(location, details.RemoteIndicator)
	if locationType == model.LocationOnsite && details.TeleworkEligible {
		locationType = model.LocationHybrid
	}

	j := &model.Job{
		ExternalID:      firstNonEmpty(it.MatchedObjectID.String(), d.PositionID),
		Source:          model.SourceUSAJobs,
		Title:           d.PositionTitle,
		Company:         firstNonEmpty(d.OrganizationName, d.DepartmentName),
		Location:        location,
		LocationType:    locationType,
		Description:     StripHTML(firstNonEmpty(details.JobSummary, d.QualificationSummary)),
		Requirements:    StripHTML(d.QualificationSummary),
		Benefits:        StripHTML(details.Benefits),
		Category:        InferCategory(d.PositionTitle + " " + strings.Join(categories, " ")),
		Tags:            Tags(categories),
		ExperienceLevel: InferExperienceLevel(d.PositionTitle),
		EmploymentType:  InferEmploymentType(schedule),
		ApplyURL:        applyURL,
		PublishedAt:     parseTime(d.PublicationStartDate),
		ExpiresAt:       parseTime(d.ApplicationCloseDate),
	}
	if len(d.PositionRemuneration) > 0 {
		pay := d.PositionRemuneration[0]
		SalaryFromBounds(float64(pay.MinimumRange), float64(pay.MaximumRange), "USD").
			apply(j, salaryPeriod(pay.RateIntervalCode))
	}
	return finish(j)
}

// ─── FindWork ────────────────────────────────────────────────────────────────

type findWorkItem struct {
	ID                  flexString `json:"id"`
	Role                string     `json:"role"`
	CompanyName         string     `json:"company_name"`
	CompanyNumEmployees flexString `json:"company_num_employees"`
	EmploymentType      string     `json:"employment_type"`
	Location            string     `json:"location"`
	Remote              bool       `json:"remote"`
	Logo                string     `json:"logo"`
	URL                 string     `json:"url"`
	Text                string     `json:"text"`
	DatePosted          string     `json:"date_posted"`
	Keywords            []string   `json:"keywords"`
	SourceName          string     `json:"source"`
}

// FindWork normalizes one item of findwork.dev/api/jobs.
func FindWork(raw json.RawMessage) *model.Job {
	var it findWorkItem
	if !decode(model.SourceFindWork, raw, &it) {
		return nil
	}
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceFindWork,
		Title:           it.Role,
		Company:         it.CompanyName,
		CompanyLogo:     it.Logo,
		Location:        firstNonEmpty(it.Location, remoteLabel(it.Remote)),
		LocationType:    InferLocationType(it.Location, it.Remote),
		Description:     StripHTML(it.Text),
		DescriptionHTML: it.Text,
		Category:        InferCategory(it.Role),
		Tags:            Tags(it.Keywords),
		ExperienceLevel: InferExperienceLevel(it.Role),
		EmploymentType:  InferEmploymentType(it.EmploymentType),
		ApplyURL:        it.URL,
		PublishedAt:     parseTime(it.DatePosted),
	}
	return finish(j)
}

func remoteLabel(remote bool) string {
	if remote {
		return "Remote"
	}
	return ""
}
