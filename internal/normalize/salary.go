package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"jobmate/aggregator-service/internal/model"
)

// Salary is the parsed form of a free-text salary string. Min and Max are nil
// when the text carries no usable figure.
type Salary struct {
	Min      *int
	Max      *int
	Currency string
}

// minSalaryFigure filters out stray small numbers in salary text.
const minSalaryFigure = 100

var (
	salaryNoise = regexp.MustCompile(`[,$€£]`)
	integerRun  = regexp.MustCompile(`\d+`)
)

// ParseSalary extracts a salary range from text such as "$90,000 - $120,000".
// Only integer runs above 100 count, so "5 years" never becomes a salary.
func ParseSalary(text string) Salary {
	s := Salary{Currency: detectCurrency(text)}

	clean := salaryNoise.ReplaceAllString(text, "")
	var nums []int
	for _, run := range integerRun.FindAllString(clean, -1) {
		n, err := strconv.Atoi(run)
		if err != nil || n <= minSalaryFigure {
			continue
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return s
	}

	lo, hi := nums[0], nums[0]
	for _, n := range nums[1:] {
		lo = min(lo, n)
		hi = max(hi, n)
	}
	s.Min, s.Max = intPtr(lo), intPtr(hi)
	return s
}

func detectCurrency(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "EUR") || strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(upper, "GBP") || strings.Contains(text, "£"):
		return "GBP"
	default:
		return "USD"
	}
}

// SalaryFromBounds builds a Salary from numeric fields; zero means absent.
func SalaryFromBounds(lo, hi float64, currency string) Salary {
	s := Salary{Currency: strings.ToUpper(strings.TrimSpace(currency))}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if lo > 0 {
		s.Min = intPtr(int(lo))
	}
	if hi > 0 {
		s.Max = intPtr(int(hi))
	}
	switch {
	case s.Min == nil && s.Max != nil:
		s.Min = intPtr(*s.Max)
	case s.Max == nil && s.Min != nil:
		s.Max = intPtr(*s.Min)
	}
	return s
}

// Present reports whether either bound was found.
func (s Salary) Present() bool { return s.Min != nil || s.Max != nil }

// apply copies the salary onto j. Currency and period are only recorded
// alongside a real figure.
func (s Salary) apply(j *model.Job, period string) {
	if !s.Present() {
		return
	}
	j.SalaryMin, j.SalaryMax = s.Min, s.Max
	j.SalaryCurrency = s.Currency
	j.SalaryPeriod = period
}

// salaryPeriod maps a source's interval vocabulary onto year/month/week/day/hour.
func salaryPeriod(raw string) string {
	r := strings.ToLower(raw)
	switch {
	case strings.Contains(r, "hour"), r == "ph", r == "hr":
		return "hour"
	case strings.Contains(r, "day"), r == "pd":
		return "day"
	case strings.Contains(r, "week"), r == "bw":
		return "week"
	case strings.Contains(r, "month"), r == "pm":
		return "month"
	default:
		return "year"
	}
}
