package http

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/core/exporters"
	"github.com/fbz-tec/pgxserve/core/validation"
	"github.com/fbz-tec/pgxserve/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// exportHeaders are the headers an export may have set before failing.
var exportHeaders = []string{
	exporters.HeaderContentType,
	exporters.HeaderContentDisposition,
	exporters.HeaderPragma,
	exporters.HeaderExpires,
	exporters.HeaderContentLength,
}

// ExportHandler serves configured and ad-hoc exports.
type ExportHandler struct {
	service    ExportService
	exports    []config.NamedExport
	checkAdhoc func(query string) error
	log        logger.Logger
}

// NewExportHandler returns a handler for exports. checkAdhoc, when not
// nil, vets every ad-hoc query before it runs.
func NewExportHandler(service ExportService, exports []config.NamedExport, checkAdhoc func(query string) error) *ExportHandler {
	return &ExportHandler{
		service:    service,
		exports:    exports,
		checkAdhoc: checkAdhoc,
		log:        logger.With("http.export"),
	}
}

// readOnlyCheck restricts ad-hoc queries to one read-only statement in
// the SQL dialect of driver.
func readOnlyCheck(driver string) func(string) error {
	dialect := validation.DialectPostgres
	if driver == config.DriverMySQL {
		dialect = validation.DialectMySQL
	}
	return func(query string) error {
		return validation.ValidateReadOnly(query, dialect)
	}
}

// ExportInfo describes a configured export without its query.
type ExportInfo struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Mode     string `json:"mode"`
}

// List handles GET /exports
func (h *ExportHandler) List(w http.ResponseWriter, r *http.Request) {
	list := make([]ExportInfo, 0, len(h.exports))
	for _, e := range h.exports {
		mode := e.Mode
		if mode == "" {
			mode = string(exporters.Buffered)
		}
		list = append(list, ExportInfo{Name: e.Name, Filename: namedFilename(e), Mode: mode})
	}
	render.JSON(w, r, list)
}

// Run handles GET /exports/{name}
func (h *ExportHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var named *config.NamedExport
	for i := range h.exports {
		if h.exports[i].Name == name {
			named = &h.exports[i]
			break
		}
	}
	if named == nil {
		renderError(w, r, http.StatusNotFound, errNotFound(name))
		return
	}

	req := exporters.Request{
		Query:       named.Query,
		Filename:    namedFilename(*named),
		Mode:        exporters.Mode(named.Mode),
		Compression: r.URL.Query().Get("compression"),
	}
	if m := r.URL.Query().Get("mode"); m != "" {
		req.Mode = exporters.Mode(m)
	}
	h.serve(w, r, req)
}

// AdhocRequest is the body of POST /export.
type AdhocRequest struct {
	Query       string `json:"query"`
	Filename    string `json:"filename"`
	Mode        string `json:"mode"`
	Compression string `json:"compression"`
}

// Adhoc handles POST /export
func (h *ExportHandler) Adhoc(w http.ResponseWriter, r *http.Request) {
	var body AdhocRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		renderError(w, r, http.StatusBadRequest, errBadBody(err))
		return
	}
	if h.checkAdhoc != nil {
		if err := h.checkAdhoc(body.Query); err != nil {
			h.log.Warn("[%s] Ad-hoc query rejected: %v", middleware.GetReqID(r.Context()), err)
			renderError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	h.serve(w, r, exporters.Request{
		Query:       body.Query,
		Filename:    SafeFilename(body.Filename),
		Mode:        exporters.Mode(body.Mode),
		Compression: body.Compression,
	})
}

// serve runs req and renders an error only while nothing has been sent.
func (h *ExportHandler) serve(w http.ResponseWriter, r *http.Request, req exporters.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	err := h.service.Export(r.Context(), ww, req)
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	if ww.Status() != 0 || ww.BytesWritten() > 0 {
		h.log.Error("[%s] Export failed after the response was committed: %v", reqID, err)
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("[%s] Export failed: %v", reqID, err)
	} else {
		h.log.Warn("[%s] Export rejected: %v", reqID, err)
	}
	for _, k := range exportHeaders {
		w.Header().Del(k)
	}
	renderError(w, r, status, err)
}

func namedFilename(e config.NamedExport) string {
	if e.Filename != "" {
		return SafeFilename(e.Filename)
	}
	return SafeFilename(e.Name + ".csv")
}

// SafeFilename reduces name to a header-safe base name. Characters
// other than letters, digits, '.', '-' and '_' become '_'. An empty
// result is returned unchanged so that validation can reject it.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
