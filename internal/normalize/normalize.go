// Package normalize maps raw items from each external job API onto the
// unified model.Job record.
//
// Every normalizer reads its input defensively: a malformed item is logged
// and dropped (nil), never surfaced as an error to the fetcher.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/model"
)

// Func converts one raw item into a Job, or nil when the item is unusable.
type Func func(raw json.RawMessage) *model.Job

var log logrus.FieldLogger = logrus.StandardLogger().WithField("component", "normalize")

// SetLogger replaces the logger used to report dropped items.
func SetLogger(l logrus.FieldLogger) {
	log = l.WithField("component", "normalize")
}

var registry = map[model.Source]Func{
	model.SourceRemotive:   Remotive,
	model.SourceRemoteOK:   RemoteOK,
	model.SourceArbeitnow:  Arbeitnow,
	model.SourceHimalayas:  Himalayas,
	model.SourceTheMuse:    TheMuse,
	model.SourceJobicy:     Jobicy,
	model.SourceUSAJobs:    USAJobs,
	model.SourceFindWork:   FindWork,
	model.SourceLinkedIn:   LinkedIn,
	model.SourceGreenhouse: Greenhouse,
	model.SourceIndeed:     Indeed,
}

// For returns the normalizer registered for source.
func For(source model.Source) (Func, bool) {
	fn, ok := registry[source]
	return fn, ok
}

// All applies fn to every raw item and drops the nils.
func All(fn Func, items []json.RawMessage) []model.Job {
	jobs := make([]model.Job, 0, len(items))
	for _, raw := range items {
		if j := fn(raw); j != nil {
			jobs = append(jobs, *j)
		}
	}
	return jobs
}

// decode unmarshals one raw item into the source's mirror struct.
func decode(source model.Source, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		log.WithFields(logrus.Fields{"source": source, "err": err}).Warn("dropping malformed item")
		return false
	}
	return true
}

// finish fills the fields every source shares and rejects items missing
// identity. It is the last step of every normalizer.
func finish(j *model.Job) *model.Job {
	j.ExternalID = strings.TrimSpace(j.ExternalID)
	j.Title = strings.TrimSpace(j.Title)
	j.Company = strings.TrimSpace(j.Company)
	if j.ExternalID == "" || j.Title == "" || j.Company == "" {
		log.WithFields(logrus.Fields{
			"source":     j.Source,
			"externalId": j.ExternalID,
		}).Warn("dropping item without id, title or company")
		return nil
	}

	j.ID = model.JobID(j.Source, j.ExternalID)
	j.Location = strings.TrimSpace(j.Location)
	if j.ApplyURL = strings.TrimSpace(j.ApplyURL); j.ApplyURL == "" {
		j.ApplyURL = model.NoApplyURL
	}
	if j.Category == "" {
		j.Category = CategoryOther
	}
	if j.EmploymentType == "" {
		j.EmploymentType = model.EmploymentFullTime
	}
	if j.LocationType == "" {
		j.LocationType = InferLocationType(j.Location, false)
	}
	if j.Tags == nil {
		j.Tags = []string{}
	}
	j.FetchedAt = time.Now().UTC()
	return j
}

// Tags merges tag lists, trimming blanks and dropping case-insensitive repeats.
func Tags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
