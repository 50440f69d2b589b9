// Package cveset aggregates fetched vulnerability items into a set
// deduplicated by CVE id.
package cveset

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/vulnfeed/nvd-cve-client/pkg/nvdapi"
)

// outputDateLayout renders the last-modified epoch as a UTC date-time.
const outputDateLayout = "2006-01-02T15:04:05"

// Set collects vulnerability records keyed by CVE id. Adding an id
// that is already present is a no-op; records are never overwritten.
type Set struct {
	cves         map[string]nvdapi.CveItem
	success      bool
	reason       string
	lastModified int64
}

// New creates an empty set. A fresh set reports success until
// MarkFailed is called.
func New() *Set {
	return &Set{
		cves:    make(map[string]nvdapi.CveItem),
		success: true,
	}
}

// Add folds a page of items into the set. Later occurrences of an
// already-seen id are ignored.
func (s *Set) Add(items []nvdapi.DefCveItem) {
	for _, item := range items {
		if item.Cve.ID == "" {
			continue
		}
		if _, seen := s.cves[item.Cve.ID]; seen {
			continue
		}
		s.cves[item.Cve.ID] = item.Cve
	}
}

// Len returns the number of distinct CVEs collected.
func (s *Set) Len() int {
	return len(s.cves)
}

// Contains reports whether the given CVE id has been collected.
func (s *Set) Contains(id string) bool {
	_, ok := s.cves[id]
	return ok
}

// SetLastModified records the dataset last-modified epoch for output.
func (s *Set) SetLastModified(epoch int64) {
	s.lastModified = epoch
}

// MarkFailed records that the fetch did not complete and why.
func (s *Set) MarkFailed(reason string) {
	s.success = false
	s.reason = reason
}

// Success reports whether the fetch completed without a recorded failure.
func (s *Set) Success() bool {
	return s.success
}

// output is the serialized shape of a completed fetch.
type output struct {
	Success          bool             `json:"success"`
	Reason           string           `json:"reason,omitempty"`
	LastModifiedDate string           `json:"lastModifiedDate,omitempty"`
	Count            int              `json:"count"`
	Cves             []nvdapi.CveItem `json:"cves"`
}

// MarshalJSON renders the set with CVEs sorted by id for deterministic
// output.
func (s *Set) MarshalJSON() ([]byte, error) {
	cves := make([]nvdapi.CveItem, 0, len(s.cves))
	for _, cve := range s.cves {
		cves = append(cves, cve)
	}
	sort.Slice(cves, func(i, j int) bool {
		return cves[i].ID < cves[j].ID
	})

	out := output{
		Success: s.success,
		Reason:  s.reason,
		Count:   len(cves),
		Cves:    cves,
	}
	if s.lastModified > 0 {
		out.LastModifiedDate = time.Unix(s.lastModified, 0).UTC().Format(outputDateLayout)
	}

	return json.Marshal(out)
}
