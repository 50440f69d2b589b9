// Package testutil provides testing utilities for the NVD CVE client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTimestamp is the dataset timestamp served by default.
// time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC) in NVD wire format.
const DefaultTimestamp = "2024-01-15T10:30:45.000"

// MockNVD is a configurable mock NVD CVE API server. It serves
// deterministic pages for a catalog of a given size and can inject
// failures per request ordinal or per start index.
type MockNVD struct {
	server *httptest.Server

	mu           sync.RWMutex
	totalResults int
	timestamp    string
	rawBody      string
	delay        time.Duration
	failOrdinal  map[int]int
	failStart    map[int]int
	requestCount int
	startIndexes []int
	lastHeader   http.Header
	lastQuery    url.Values
}

// NewMockNVD creates a mock server for a catalog with the given number
// of results.
func NewMockNVD(totalResults int) *MockNVD {
	mock := &MockNVD{
		totalResults: totalResults,
		timestamp:    DefaultTimestamp,
		failOrdinal:  make(map[int]int),
		failStart:    make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the mock server URL.
func (m *MockNVD) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockNVD) Close() {
	m.server.Close()
}

// SetTimestamp overrides the dataset timestamp.
func (m *MockNVD) SetTimestamp(ts string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timestamp = ts
}

// SetRawBody makes every 200 response carry the given body verbatim.
// Useful for decode-failure tests.
func (m *MockNVD) SetRawBody(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawBody = body
}

// SetDelay makes every response wait before answering.
func (m *MockNVD) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailRequest makes the nth request (1-based ordinal) answer with the
// given status. Subsequent requests are unaffected.
func (m *MockNVD) FailRequest(ordinal, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOrdinal[ordinal] = status
}

// FailStartIndex makes every request for the given start index answer
// with the given status, including transport-level retries.
func (m *MockNVD) FailStartIndex(startIndex, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStart[startIndex] = status
}

// PassStartIndex removes a FailStartIndex injection.
func (m *MockNVD) PassStartIndex(startIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failStart, startIndex)
}

// RequestCount returns the number of requests served.
func (m *MockNVD) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// StartIndexes returns the startIndex of every request served, in order.
func (m *MockNVD) StartIndexes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.startIndexes))
	copy(out, m.startIndexes)
	return out
}

// LastHeader returns the headers of the most recent request.
func (m *MockNVD) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockNVD) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (m *MockNVD) handle(w http.ResponseWriter, r *http.Request) {
	startIndex, _ := strconv.Atoi(r.URL.Query().Get("startIndex"))
	resultsPerPage, _ := strconv.Atoi(r.URL.Query().Get("resultsPerPage"))
	if resultsPerPage <= 0 {
		resultsPerPage = 2000
	}

	m.mu.Lock()
	m.requestCount++
	ordinal := m.requestCount
	m.startIndexes = append(m.startIndexes, startIndex)
	m.lastHeader = r.Header.Clone()
	m.lastQuery = r.URL.Query()
	status, failed := m.failOrdinal[ordinal]
	if !failed {
		status, failed = m.failStart[startIndex]
	}
	timestamp := m.timestamp
	rawBody := m.rawBody
	delay := m.delay
	total := m.totalResults
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message": "request rejected"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if rawBody != "" {
		fmt.Fprint(w, rawBody)
		return
	}

	fmt.Fprint(w, PageBody(total, startIndex, resultsPerPage, timestamp))
}

// PageBody builds one NVD 2.0 page for a catalog of the given size.
// Item ids are deterministic: CVE-2024-<index>.
func PageBody(totalResults, startIndex, resultsPerPage int, timestamp string) string {
	count := totalResults - startIndex
	if count > resultsPerPage {
		count = resultsPerPage
	}
	if count < 0 {
		count = 0
	}

	var items strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			items.WriteByte(',')
		}
		fmt.Fprintf(&items,
			`{"cve": {"id": "CVE-2024-%04d", "vulnStatus": "Analyzed", "descriptions": [{"lang": "en", "value": "test vulnerability %d"}]}}`,
			startIndex+i, startIndex+i)
	}

	return fmt.Sprintf(
		`{"resultsPerPage": %d, "startIndex": %d, "totalResults": %d, "format": "NVD_CVE", "version": "2.0", "timestamp": %q, "vulnerabilities": [%s]}`,
		count, startIndex, totalResults, timestamp, items.String())
}
