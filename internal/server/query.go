package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/query"
	"github.com/koustreak/dbconnector/internal/structure"
)

type executeRequest struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	Query        string `json:"query"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
}

type exportRequest struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	Query        string `json:"query"`
	Format       string `json:"format,omitempty"`
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	db, err := s.conns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	tree, err := s.inspector.Inspect(r.Context(), db)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tree == nil {
		tree = []structure.Object{}
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleTableRows pages through one table. Query parameters: page,
// page_size and order_by ("-col" for descending).
func (s *Server) handleTableRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), query.DefaultPage, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"), query.DefaultPageSize, "page_size")
	if err != nil {
		writeError(w, r, err)
		return
	}

	db, err := s.conns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.exec.Preview(r.Context(), db, chi.URLParam(r, "schema"), chi.URLParam(r, "table"), page, pageSize, q.Get("order_by"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req := executeRequest{Page: query.DefaultPage, PageSize: query.DefaultPageSize}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.exec.CheckStatement(req.Query); err != nil {
		writeError(w, r, err)
		return
	}

	db, err := s.conns.Get(r.Context(), req.ConnectionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.exec.Execute(r.Context(), db, req.Query, req.Page, req.PageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport streams the full result as a file download. Headers are only
// committed once the first byte is ready, so a failing statement still gets
// a JSON error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	format, err := query.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.exec.CheckStatement(req.Query); err != nil {
		writeError(w, r, err)
		return
	}

	db, err := s.conns.Get(r.Context(), req.ConnectionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	aw := &attachmentWriter{w: w, format: format}
	n, err := s.exec.Export(r.Context(), db, req.Query, aw, format)
	if err != nil {
		if !aw.started {
			writeError(w, r, err)
			return
		}
		// Too late for a status code; the client sees a truncated file.
		s.log.With().Str("connection_id", req.ConnectionID).Int("rows", n).Err(err).Logger().Error("export aborted mid-stream")
		return
	}
	aw.start()
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if s.archiver == nil {
		writeError(w, r, errs.New(errs.ErrKindUnsupported, "object storage is not configured"))
		return
	}
	format, err := query.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.exec.CheckStatement(req.Query); err != nil {
		writeError(w, r, err)
		return
	}

	db, err := s.conns.Get(r.Context(), req.ConnectionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.archiver.Archive(r.Context(), db, req.ConnectionID, req.Query, format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// attachmentWriter sets download headers on the first write.
type attachmentWriter struct {
	w       http.ResponseWriter
	format  query.Format
	started bool
}

func (a *attachmentWriter) start() {
	if a.started {
		return
	}
	a.started = true
	h := a.w.Header()
	h.Set("Content-Type", a.format.ContentType())
	h.Set("Content-Disposition", "attachment; filename=export."+a.format.Extension())
	a.w.WriteHeader(http.StatusOK)
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	a.start()
	return a.w.Write(p)
}

func intParam(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
