// Package httpapi implements the single HTTP read route exposed over a
// log store: GET /logs/{key}/{value}.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mutagen-io/monitoring/pkg/api"
	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/logstore"
)

// logsPathPrefix is the fixed prefix of the only route this API serves.
const logsPathPrefix = "/logs/"

// NewServer constructs an *http.Server exposing GET /logs/{key}/{value}
// over store, bound to addr. Every request is tagged with a correlation
// ID so a query that 500s can be traced back through the logs.
func NewServer(addr string, store *logstore.Store, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(logsPathPrefix, newLogsHandler(store, logger))

	return &http.Server{
		Addr:        addr,
		Handler:     api.AddSecurityHeaders(mux),
		ReadTimeout: api.ReadTimeout,
		IdleTimeout: api.IdleTimeout,
	}
}

// newLogsHandler returns the handler for GET /logs/{key}/{value}.
func newLogsHandler(store *logstore.Store, logger *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		requestLogger := logger.Sublogger(requestID)

		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		key, value, ok := parseLogsPath(r.URL.Path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		lines, found, err := store.Query(key, value)
		if err != nil {
			requestLogger.Errorf("query (%s, %s) failed: %v", key, value, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		api.SetContentTypeJSON(w)
		if err := json.NewEncoder(w).Encode(lines); err != nil {
			requestLogger.Errorf("unable to encode response: %v", err)
		}
	})
}

// parseLogsPath extracts {key} and {value} from a request path of the
// form /logs/{key}/{value}.
func parseLogsPath(path string) (key, value string, ok bool) {
	if !strings.HasPrefix(path, logsPathPrefix) {
		return "", "", false
	}
	remainder := strings.TrimPrefix(path, logsPathPrefix)
	parts := strings.SplitN(remainder, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Serve runs server until it is shut down, treating http.ErrServerClosed
// as a clean termination rather than a failure.
func Serve(server *http.Server) error {
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ShutdownTimeout bounds how long Shutdown waits for in-flight requests to
// complete before returning.
const ShutdownTimeout = 10 * time.Second
