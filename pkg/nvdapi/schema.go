package nvdapi

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp layouts observed in NVD API 2.0 responses.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// CveResponse is one page of the NVD CVE API 2.0.
type CveResponse struct {
	ResultsPerPage  int          `json:"resultsPerPage"`
	StartIndex      int          `json:"startIndex"`
	TotalResults    int          `json:"totalResults"`
	Format          string       `json:"format"`
	Version         string       `json:"version"`
	Timestamp       string       `json:"timestamp"`
	Vulnerabilities []DefCveItem `json:"vulnerabilities"`
}

// TimestampEpoch converts the page timestamp (a zone-less date-time,
// interpreted as UTC) to epoch seconds.
func (r *CveResponse) TimestampEpoch() (int64, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, r.Timestamp); err == nil {
			return ts.UTC().Unix(), nil
		}
	}
	return 0, fmt.Errorf("parse timestamp %q", r.Timestamp)
}

// DefCveItem wraps a single vulnerability record.
type DefCveItem struct {
	Cve CveItem `json:"cve"`
}

// CveItem is one vulnerability record. Fields beyond those the client
// interprets are carried opaquely so records round-trip unchanged.
type CveItem struct {
	ID               string          `json:"id"`
	SourceIdentifier string          `json:"sourceIdentifier,omitempty"`
	Published        string          `json:"published,omitempty"`
	LastModified     string          `json:"lastModified,omitempty"`
	VulnStatus       string          `json:"vulnStatus,omitempty"`
	Descriptions     []LangString    `json:"descriptions,omitempty"`
	References       []Reference     `json:"references,omitempty"`
	Metrics          json.RawMessage `json:"metrics,omitempty"`
	Weaknesses       json.RawMessage `json:"weaknesses,omitempty"`
	Configurations   json.RawMessage `json:"configurations,omitempty"`
}

// LangString is a localized description.
type LangString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// Reference is an external reference for a vulnerability.
type Reference struct {
	URL    string   `json:"url"`
	Source string   `json:"source,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}
