package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulnfeed/nvd-cve-client/internal/testutil"
	"github.com/vulnfeed/nvd-cve-client/pkg/cveset"
	"github.com/vulnfeed/nvd-cve-client/pkg/nvdapi"
)

func newTestAPI(t *testing.T, mock *testutil.MockNVD) *nvdapi.Client {
	t.Helper()

	api, err := nvdapi.New(nvdapi.Config{
		Endpoint: mock.URL(),
		Delay:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { api.Close() })

	return api
}

func TestFetchAll_Success(t *testing.T) {
	mock := testutil.NewMockNVD(4500)
	defer mock.Close()

	api := newTestAPI(t, mock)
	out := cveset.New()

	if err := fetchAll(context.Background(), api, out, zerolog.Nop()); err != nil {
		t.Fatalf("fetchAll() error = %v", err)
	}

	if out.Len() != 4500 {
		t.Errorf("Len() = %d, want 4500", out.Len())
	}
}

func TestFetchAll_RecoversFromStall(t *testing.T) {
	t.Setenv("NVD_STALL_BACKOFF_MS", "1")

	mock := testutil.NewMockNVD(4500)
	defer mock.Close()
	// 403 is not a throttling status, so the transport hands it to the
	// engine and the iteration stalls once.
	mock.FailRequest(2, http.StatusForbidden)

	api := newTestAPI(t, mock)
	out := cveset.New()

	if err := fetchAll(context.Background(), api, out, zerolog.Nop()); err != nil {
		t.Fatalf("fetchAll() error = %v", err)
	}

	if out.Len() != 4500 {
		t.Errorf("Len() = %d, want 4500 after recovery", out.Len())
	}
}

func TestFetchAll_GivesUp(t *testing.T) {
	t.Setenv("NVD_STALL_BACKOFF_MS", "1")

	mock := testutil.NewMockNVD(4500)
	defer mock.Close()
	mock.FailStartIndex(0, http.StatusForbidden)

	api := newTestAPI(t, mock)
	out := cveset.New()

	err := fetchAll(context.Background(), api, out, zerolog.Nop())
	if err == nil {
		t.Fatal("fetchAll() error = nil, want give-up error")
	}
	if !strings.Contains(err.Error(), "giving up") {
		t.Errorf("error = %q, want give-up message", err)
	}
}

func TestWriteOutput_File(t *testing.T) {
	out := cveset.New()
	out.Add([]nvdapi.DefCveItem{{Cve: nvdapi.CveItem{ID: "CVE-2024-0001"}}})

	path := filepath.Join(t.TempDir(), "cves.json")
	if err := writeOutput(out, path); err != nil {
		t.Fatalf("writeOutput() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var decoded struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !decoded.Success || decoded.Count != 1 {
		t.Errorf("output = %+v, want success with count 1", decoded)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("NVD_FETCH_TEST_KEY", "set")

	if got := getEnv("NVD_FETCH_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("getEnv() = %q, want %q", got, "set")
	}
	if got := getEnv("NVD_FETCH_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv() = %q, want %q", got, "fallback")
	}
}
