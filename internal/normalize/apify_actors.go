package normalize

import (
	"encoding/json"
	"html"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// Items in this file come from Apify actor datasets. Field names follow the
// actors' dataset schemas; alternates cover older actor versions.

// ─── LinkedIn ────────────────────────────────────────────────────────────────

type linkedInItem struct {
	ID              flexString `json:"id"`
	JobID           flexString `json:"jobId"`
	Title           string     `json:"title"`
	CompanyName     string     `json:"companyName"`
	CompanyURL      string     `json:"companyUrl"`
	CompanyLogo     string     `json:"companyLogo"`
	Location        string     `json:"location"`
	PublishedAt     string     `json:"publishedAt"`
	PostedAt        string     `json:"postedAt"`
	JobURL          string     `json:"jobUrl"`
	ApplyURL        string     `json:"applyUrl"`
	Description     string     `json:"description"`
	DescriptionHTML string     `json:"descriptionHtml"`
	ContractType    string     `json:"contractType"`
	EmploymentType  string     `json:"employmentType"`
	ExperienceLevel string     `json:"experienceLevel"`
	SeniorityLevel  string     `json:"seniorityLevel"`
	WorkType        string     `json:"workType"`
	Sector          string     `json:"sector"`
	Salary          string     `json:"salary"`
}

// LinkedIn normalizes one item of the LinkedIn jobs scraper actor.
func LinkedIn(raw json.RawMessage) *model.Job {
	var it linkedInItem
	if !decode(model.SourceLinkedIn, raw, &it) {
		return nil
	}
	descHTML := it.DescriptionHTML
	if descHTML == "" && strings.Contains(it.Description, "<") {
		descHTML = it.Description
	}
	j := &model.Job{
		ExternalID:      firstNonEmpty(it.ID.String(), it.JobID.String()),
		Source:          model.SourceLinkedIn,
		Title:           it.Title,
		Company:         it.CompanyName,
		CompanyLogo:     it.CompanyLogo,
		CompanyURL:      it.CompanyURL,
		Location:        it.Location,
		LocationType:    InferLocationType(it.Location+" "+it.WorkType, false),
		Description:     StripHTML(firstNonEmpty(it.Description, descHTML)),
		DescriptionHTML: descHTML,
		Category:        InferCategory(it.Title),
		Tags:            Tags(splitList(it.Sector)),
		ExperienceLevel: InferExperienceLevel(firstNonEmpty(it.ExperienceLevel, it.SeniorityLevel)),
		EmploymentType:  InferEmploymentType(firstNonEmpty(it.ContractType, it.EmploymentType)),
		ApplyURL:        firstNonEmpty(it.ApplyURL, it.JobURL),
		PublishedAt:     parseTime(firstNonEmpty(it.PublishedAt, it.PostedAt)),
	}
	ParseSalary(it.Salary).apply(j, "year")
	return finish(j)
}

// ─── Greenhouse ──────────────────────────────────────────────────────────────

type greenhouseItem struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	CompanyName string     `json:"company_name"`
	BoardToken  string     `json:"boardToken"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	LocationName string `json:"locationName"`
	AbsoluteURL  string `json:"absolute_url"`
	URL          string `json:"url"`
	Content      string `json:"content"`
	Description  string `json:"description"`
	UpdatedAt    string `json:"updated_at"`
	FirstPosted  string `json:"first_published"`
	Departments  []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

// Greenhouse normalizes one item of the Greenhouse boards scraper actor.
// Board content arrives HTML-escaped, so it is unescaped before stripping.
func Greenhouse(raw json.RawMessage) *model.Job {
	var it greenhouseItem
	if !decode(model.SourceGreenhouse, raw, &it) {
		return nil
	}
	descHTML := html.UnescapeString(firstNonEmpty(it.Content, it.Description))
	departments := make([]string, 0, len(it.Departments))
	for _, d := range it.Departments {
		departments = append(departments, d.Name)
	}
	location := firstNonEmpty(it.Location.Name, it.LocationName)
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceGreenhouse,
		Title:           it.Title,
		Company:         firstNonEmpty(it.Company, it.CompanyName, it.BoardToken),
		Location:        location,
		LocationType:    InferLocationType(location, false),
		Description:     StripHTML(descHTML),
		DescriptionHTML: descHTML,
		Category:        InferCategory(it.Title + " " + strings.Join(departments, " ")),
		Tags:            Tags(departments),
		ExperienceLevel: InferExperienceLevel(it.Title),
		EmploymentType:  model.EmploymentFullTime,
		ApplyURL:        firstNonEmpty(it.AbsoluteURL, it.URL),
		PublishedAt:     parseTime(firstNonEmpty(it.FirstPosted, it.UpdatedAt)),
	}
	return finish(j)
}

// ─── Indeed ──────────────────────────────────────────────────────────────────

type indeedItem struct {
	ID                flexString `json:"id"`
	PositionName      string     `json:"positionName"`
	Company           string     `json:"company"`
	Location          string     `json:"location"`
	URL               string     `json:"url"`
	ExternalApplyLink string     `json:"externalApplyLink"`
	Description       string     `json:"description"`
	DescriptionHTML   string     `json:"descriptionHTML"`
	Salary            string     `json:"salary"`
	JobType           []string   `json:"jobType"`
	PostingDateParsed string     `json:"postingDateParsed"`
	CompanyInfo       struct {
		CompanyLogo string `json:"companyLogo"`
		IndeedURL   string `json:"indeedUrl"`
	} `json:"companyInfo"`
}

// Indeed normalizes one item of the Indeed scraper actor.
func Indeed(raw json.RawMessage) *model.Job {
	var it indeedItem
	if !decode(model.SourceIndeed, raw, &it) {
		return nil
	}
	jobTypes := strings.Join(it.JobType, " ")
	j := &model.Job{
		ExternalID:      it.ID.String(),
		Source:          model.SourceIndeed,
		Title:           it.PositionName,
		Company:         it.Company,
		CompanyLogo:     it.CompanyInfo.CompanyLogo,
		CompanyURL:      it.CompanyInfo.IndeedURL,
		Location:        it.Location,
		LocationType:    InferLocationType(it.Location, false),
		Description:     StripHTML(firstNonEmpty(it.Description, it.DescriptionHTML)),
		DescriptionHTML: it.DescriptionHTML,
		Category:        InferCategory(it.PositionName),
		Tags:            Tags(it.JobType),
		ExperienceLevel: InferExperienceLevel(it.PositionName),
		EmploymentType:  InferEmploymentType(jobTypes),
		ApplyURL:        firstNonEmpty(it.ExternalApplyLink, it.URL),
		PublishedAt:     parseTime(it.PostingDateParsed),
	}
	ParseSalary(it.Salary).apply(j, salaryPeriod(it.Salary))
	return finish(j)
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
