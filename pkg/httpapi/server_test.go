package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/logstore"
	"github.com/mutagen-io/monitoring/pkg/record"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.NewRootLogger(logging.LevelError)
	store, err := logstore.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatal("unable to open store:", err)
	}
	if err := store.Write(record.LogRecord{Line: "l1", Metadata: record.Metadata{"foo": "bar"}}); err != nil {
		t.Fatal(err)
	}

	handler := newLogsHandler(store, logger)
	return httptest.NewServer(withMux(handler))
}

// withMux mirrors the route registration NewServer performs, without
// needing a real listen address.
func withMux(handler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(logsPathPrefix, handler)
	return mux
}

func TestLogsHandlerFoundReturns200(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/logs/foo/bar")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON content type, got %s", resp.Header.Get("Content-Type"))
	}

	var lines []string
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"l1"}, lines); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// TestLogsHandlerFoundEmptyLineReturnsJSONArrayNotNull covers the shard
// whose only record is the empty-string line: the on-disk data file is
// zero bytes, which must still encode as a JSON array, not "null".
func TestLogsHandlerFoundEmptyLineReturnsJSONArrayNotNull(t *testing.T) {
	logger := logging.NewRootLogger(logging.LevelError)
	store, err := logstore.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatal("unable to open store:", err)
	}
	if err := store.Write(record.LogRecord{Line: "", Metadata: record.Metadata{"empty": "yes"}}); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(withMux(newLogsHandler(store, logger)))
	defer server.Close()

	resp, err := http.Get(server.URL + "/logs/empty/yes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(body)); got == "null" {
		t.Fatalf("expected a JSON array, got %q", got)
	}
}

func TestLogsHandlerNotFoundReturns404(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/logs/foo/qux")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestLogsHandlerMalformedPathReturns404(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/logs/onlykey")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
