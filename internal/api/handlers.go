package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/httputil"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.crawl.Sources())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeInvalidParams, "page must be a positive integer")
			return
		}
		page = n
	}

	if httputil.Truthy(r.URL.Query().Get("inline")) {
		res, err := s.crawl.Discover(r.Context(), source, page)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}
	if err := s.crawl.EnqueueDiscover(r.Context(), source, page); err != nil {
		s.respondErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Queued{Queued: true})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	externalID := chi.URLParam(r, "externalId")

	if httputil.Truthy(r.URL.Query().Get("inline")) {
		res, err := s.crawl.FetchDetail(r.Context(), source, externalID)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}
	if err := s.crawl.EnqueueDetail(r.Context(), source, externalID); err != nil {
		s.respondErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Queued{Queued: true})
}

// handleSync runs a sync inline and returns its result.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeInvalidParams, "invalid source item id")
		return
	}
	res, err := s.sync.SyncSourceItem(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if res == nil {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "source item not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeInvalidParams, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}
	logs, err := s.logs.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, logs)
}
