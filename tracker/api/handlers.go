package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/bench-history/tracker/analysis"
	"github.com/bench-history/tracker/datafile"
	"github.com/bench-history/tracker/storage"
	"github.com/bench-history/tracker/types"
)

const maxEntryBodySize = 10 << 20

// AppendResponse is returned by a successful append
type AppendResponse struct {
	Result *storage.AppendResult `json:"result"`
	Report *types.AlertReport    `json:"report,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":            "ok",
		"timestamp":         time.Now(),
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
		"websocket_clients": s.hub.ClientCount(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(r.Context()); err == nil {
			health["memory_rss_bytes"] = mem.RSS
		}
	}

	groups, err := s.store.Groups(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Health check could not read history")
		health["status"] = "degraded"
		health["error"] = err.Error()
		s.writeJSONResponse(w, http.StatusServiceUnavailable, health)
		return
	}
	health["groups"] = len(groups)
	s.writeJSONResponse(w, http.StatusOK, health)
}

func (s *Server) handleDataFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Snapshot(r.Context())
	if err != nil {
		s.storageError(w, err, "Failed to read history")
		return
	}

	format, contentType := datafile.FormatScript, "application/javascript; charset=utf-8"
	if r.URL.Path == "/data.json" {
		format, contentType = datafile.FormatJSON, "application/json"
	}

	body, err := datafile.Marshal(data, format)
	if err != nil {
		s.log.WithError(err).Error("Failed to encode data file")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to encode history")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if err := s.exporter.Refresh(r.Context(), s.store); err != nil {
		s.log.WithError(err).Warn("Failed to refresh exported bench metrics")
	}
	s.exporter.Handler().ServeHTTP(w, r)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.Groups(r.Context())
	if err != nil {
		s.storageError(w, err, "Failed to list groups")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.writeErrorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.store.Entries(r.Context(), group, limit)
	if err != nil {
		s.storageError(w, err, "Failed to list entries")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"group":   group,
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entry, err := s.store.Entry(r.Context(), vars["group"], vars["commitId"])
	if err != nil {
		s.storageError(w, err, "Failed to get entry")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	points, err := s.store.Series(r.Context(), vars["group"], vars["bench"])
	if err != nil {
		s.storageError(w, err, "Failed to get series")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"group":  vars["group"],
		"bench":  vars["bench"],
		"points": points,
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	query := r.URL.Query()

	analyzer := *s.analyzer
	if v := query.Get("threshold"); v != "" {
		t, err := analysis.ParseThreshold(v)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid threshold: "+err.Error())
			return
		}
		analyzer.Threshold = t
	}
	if v := query.Get("fail_threshold"); v != "" {
		t, err := analysis.ParseThreshold(v)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid fail_threshold: "+err.Error())
			return
		}
		if t < analyzer.Threshold {
			s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf(
				"fail_threshold (%s) must not be lower than threshold (%s%%)",
				v, strconv.FormatFloat(analyzer.Threshold*100, 'f', -1, 64)))
			return
		}
		analyzer.FailThreshold = t
	} else if analyzer.FailThreshold < analyzer.Threshold {
		analyzer.FailThreshold = analyzer.Threshold
	}

	var (
		report *types.AlertReport
		err    error
	)
	if commit := query.Get("commit"); commit != "" {
		report, err = analyzer.Commit(r.Context(), s.store, group, commit)
	} else {
		report, err = analyzer.Latest(r.Context(), s.store, group)
	}
	if err != nil {
		s.storageError(w, err, "Failed to compare entries")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, report)
}

func (s *Server) handleAppendEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	group := mux.Vars(r)["group"]

	var entry types.Entry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEntryBodySize)).Decode(&entry); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid entry body: "+err.Error())
		return
	}

	result, err := s.store.Append(ctx, group, entry)
	if err != nil {
		s.exporter.AppendsTotal.WithLabelValues(group, "rejected").Inc()
		s.storageError(w, err, "Failed to append entry")
		return
	}
	s.exporter.AppendsTotal.WithLabelValues(group, "appended").Inc()

	report := s.analyzer.Report(group, result.Previous, result.Entry)
	for _, a := range report.Alerts {
		s.exporter.AlertsTotal.WithLabelValues(group, a.Severity).Inc()
	}

	if s.mirror != nil {
		if _, err := s.mirror.InsertEntry(ctx, group, result.Entry); err != nil {
			s.log.WithError(err).WithField("group", group).Warn("Failed to mirror appended entry")
		}
	}
	if s.notifier != nil && report.HasAlerts() {
		if err := s.notifier.NotifyAlerts(ctx, report); err != nil {
			s.log.WithError(err).WithField("group", group).Warn("Failed to send alert notification")
		}
	}

	s.hub.Broadcast(WSMessageTypeEntryAppended, map[string]interface{}{
		"group":     group,
		"commit_id": result.Entry.Commit.ID,
		"date":      result.Entry.Date,
		"count":     result.Count,
		"trimmed":   result.Trimmed,
		"alerts":    len(report.Alerts),
	})
	if report.HasAlerts() {
		s.hub.Broadcast(WSMessageTypeAlert, report.Alerts)
	}

	s.log.WithFields(logrus.Fields{
		"group":  group,
		"commit": result.Entry.Commit.ShortID(),
		"alerts": len(report.Alerts),
	}).Info("Entry appended via API")

	s.writeJSONResponse(w, http.StatusCreated, AppendResponse{Result: result, Report: report})
}

// storageError maps store errors to status codes
func (s *Server) storageError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidEntry):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrOutOfOrder), errors.Is(err, storage.ErrDuplicateCommit):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error(message)
		s.writeErrorResponse(w, status, message)
		return
	}
	s.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response with the given status code
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error body with the given status code
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"status":    statusCode,
		"timestamp": time.Now(),
	})
}
