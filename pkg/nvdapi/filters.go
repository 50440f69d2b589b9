package nvdapi

import (
	"strings"
	"time"
)

// Filter is one opaque query parameter applied to every page request.
// Filters are fixed at construction time; order is preserved on the wire.
type Filter struct {
	Name  string
	Value string
}

// nvdDateLayout is the date-time format the NVD API accepts in filter
// values, always expressed in UTC.
const nvdDateLayout = "2006-01-02T15:04:05"

// KeywordFilter searches CVE descriptions for the given keyword.
func KeywordFilter(keyword string) Filter {
	return Filter{Name: "keywordSearch", Value: keyword}
}

// CveIDFilter restricts results to a single CVE id.
func CveIDFilter(id string) Filter {
	return Filter{Name: "cveId", Value: id}
}

// CweFilter restricts results to CVEs associated with a CWE id
// (e.g. "CWE-79").
func CweFilter(cwe string) Filter {
	return Filter{Name: "cweId", Value: cwe}
}

// CvssV3SeverityFilter restricts results by CVSSv3 severity
// (LOW, MEDIUM, HIGH, CRITICAL).
func CvssV3SeverityFilter(severity string) Filter {
	return Filter{Name: "cvssV3Severity", Value: strings.ToUpper(severity)}
}

// NoRejectedFilter excludes rejected CVEs. The parameter is valueless
// on the wire.
func NoRejectedFilter() Filter {
	return Filter{Name: "noRejected"}
}

// LastModifiedFilter restricts results to CVEs modified in the given
// UTC range. Used with a persisted LastModified epoch to build
// incremental "changed since" sessions.
func LastModifiedFilter(start, end time.Time) []Filter {
	return []Filter{
		{Name: "lastModStartDate", Value: start.UTC().Format(nvdDateLayout)},
		{Name: "lastModEndDate", Value: end.UTC().Format(nvdDateLayout)},
	}
}
