package normalize

import (
	"regexp"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// CategoryOther is assigned when no keyword matches.
const CategoryOther = "other"

type categoryRule struct {
	name     string
	keywords []string
}

// categoryRules is ordered: the first rule with a matching keyword wins.
var categoryRules = []categoryRule{
	{"software-dev", []string{"software", "developer", "engineer", "programmer", "programming", "frontend", "front-end", "backend", "back-end", "full stack", "fullstack", "full-stack", "web dev", "mobile", "ios developer", "android"}},
	{"data", []string{"data", "analyst", "analytics", "machine learning", "scientist", "business intelligence"}},
	{"devops", []string{"devops", "sysadmin", "system administrator", "site reliability", "infrastructure", "cloud"}},
	{"design", []string{"design", "ux", "ui/", "illustrator", "creative"}},
	{"product", []string{"product"}},
	{"marketing", []string{"marketing", "seo", "growth", "social media", "brand"}},
	{"sales", []string{"sales", "account executive", "business development", "account manager"}},
	{"customer-support", []string{"customer", "support", "success", "help desk", "helpdesk"}},
	{"hr", []string{"human resources", "recruit", "talent", "people ops", "hr "}},
	{"finance", []string{"finance", "financial", "accountant", "accounting", "controller", "bookkeep"}},
	{"legal", []string{"legal", "counsel", "attorney", "lawyer", "paralegal", "compliance"}},
	{"operations", []string{"operations", "logistics", "supply chain", "office manager"}},
	{"writing", []string{"writer", "writing", "content", "editor", "copywrit", "journalist"}},
	{"qa", []string{"qa", "quality assurance", "tester", "testing"}},
	{"management", []string{"manager", "director", "head of", "project lead", "scrum master"}},
}

// InferCategory maps a title or source category string onto the taxonomy.
func InferCategory(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		if containsAny(lower, rule.keywords) {
			return rule.name
		}
	}
	return CategoryOther
}

// InferExperienceLevel returns ExperienceUnknown rather than guessing.
func InferExperienceLevel(text string) model.ExperienceLevel {
	lower := strings.ToLower(text)
	switch {
	case lower == "":
		return model.ExperienceUnknown
	case containsAny(lower, []string{"entry", "junior", "intern"}):
		return model.ExperienceEntry
	case containsAny(lower, []string{"mid", "intermediate"}):
		return model.ExperienceMid
	case containsAny(lower, []string{"senior", "sr", "lead"}):
		return model.ExperienceSenior
	case containsAny(lower, []string{"executive", "director", "vp", "chief"}):
		return model.ExperienceExecutive
	default:
		return model.ExperienceUnknown
	}
}

// InferEmploymentType defaults to full-time, the prior for most sources.
func InferEmploymentType(text string) model.EmploymentType {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, []string{"intern"}):
		return model.EmploymentInternship
	case containsAny(lower, []string{"part-time", "part_time", "part time", "parttime"}):
		return model.EmploymentPartTime
	case containsAny(lower, []string{"contract"}):
		return model.EmploymentContract
	case containsAny(lower, []string{"freelance"}):
		return model.EmploymentFreelance
	case containsAny(lower, []string{"temporary", "temp"}):
		return model.EmploymentTemporary
	default:
		return model.EmploymentFullTime
	}
}

// InferLocationType lets an explicit remote flag win over the location text.
func InferLocationType(location string, remote bool) model.LocationType {
	if remote {
		return model.LocationRemote
	}
	lower := strings.ToLower(location)
	switch {
	case strings.Contains(lower, "remote"):
		return model.LocationRemote
	case strings.Contains(lower, "hybrid"):
		return model.LocationHybrid
	default:
		return model.LocationOnsite
	}
}

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)

	htmlEntities = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// StripHTML removes tags, unescapes the common entities and collapses
// whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = htmlTag.ReplaceAllString(s, " ")
	s = htmlEntities.Replace(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// containsAny reports whether any term appears in the already-lowercased text.
func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
