package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/ingest"
	"github.com/sells-group/client-analyzer/internal/model"
	"github.com/sells-group/client-analyzer/internal/query"
	"github.com/sells-group/client-analyzer/internal/store"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}

	body := map[string]string{"status": "ok", "cache": "disabled"}
	if s.cache != nil {
		body["cache"] = "ok"
		if err := s.cache.Ping(r.Context()); err != nil {
			zap.L().Warn("api: cache ping failed", zap.Error(err))
			body["status"] = "degraded"
			body["cache"] = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// scoreResponse flattens the analysis next to the stored client.
type scoreResponse struct {
	ID string `json:"id"`
	model.AnalysisResult
	Client *model.ScoredClient `json:"client"`
}

// score accepts a JSON object whose values may be strings or numbers.
func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, apperrors.Validation("body", "", "must be a JSON object"))
		return
	}

	raw := make(map[string]string, len(body))
	for k, v := range body {
		switch val := v.(type) {
		case nil:
		case string:
			raw[k] = val
		case json.Number:
			raw[k] = val.String()
		case bool, []any, map[string]any:
			writeError(w, r, apperrors.Validation(k, fmt.Sprint(val), "must be a string or number"))
			return
		}
	}

	c, err := s.pipeline.ScoreRow(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{ID: c.ID, AnalysisResult: c.Analysis, Client: c})
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	clients, err := s.query.ListClients(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// ingestResponse is the body of a successful upload.
type ingestResponse struct {
	UploadID     string           `json:"upload_id"`
	TotalRows    int              `json:"total_rows"`
	RejectedRows int              `json:"rejected_rows"`
	Schema       ingest.Schema    `json:"schema"`
	RowErrors    []model.RowError `json:"row_errors"`
	Upload       *model.Upload    `json:"upload"`
}

// ingest accepts either a multipart form with a "file" part or a raw CSV
// body named by the filename query parameter.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	body, filename, err := uploadSource(r)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	if filename == "" {
		writeError(w, r, apperrors.Validation("filename", "", "is required"))
		return
	}
	if !strings.EqualFold(path.Ext(filename), ".csv") {
		writeError(w, r, apperrors.Validation("filename", filename, "must have a .csv extension"))
		return
	}

	res, err := s.pipeline.Ingest(r.Context(), body, filename)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		UploadID:     res.Upload.ID,
		TotalRows:    res.Upload.TotalRows,
		RejectedRows: res.Upload.RejectedRows,
		Schema:       res.Schema,
		RowErrors:    res.RowErrors,
		Upload:       res.Upload,
	})
}

func uploadSource(r *http.Request) (io.Reader, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, baseName(r.URL.Query().Get("filename")), nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", apperrors.Validation("file", "", "invalid multipart body")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", apperrors.Validation("file", "", "is required")
		}
		if err != nil {
			return nil, "", err
		}
		if part.FormName() == "file" {
			return part, baseName(part.FileName()), nil
		}
	}
}

// baseName strips any directory a client sent along with the file name.
func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	return path.Base(name)
}

// writeUploadError reports an over-limit body as 413.
func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	writeError(w, r, err)
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	filter := store.UploadFilter{}
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := model.ParseUploadStatus(v)
		if err != nil {
			writeError(w, r, apperrors.Validation("status", v, "must be pending, processing, completed or failed"))
			return
		}
		filter.Status = st
	}
	var err error
	if filter.Limit, err = intParam(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Offset, err = intParam(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}

	uploads, err := s.query.ListUploads(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

func (s *Server) getUpload(w http.ResponseWriter, r *http.Request) {
	u, err := s.query.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	set, err := s.query.GetResults(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) rowErrors(w http.ResponseWriter, r *http.Request) {
	errs, err := s.query.RowErrors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"row_errors": errs})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = query.FormatCSV
	}

	u, err := s.query.GetUpload(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := s.query.Export(r.Context(), id, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", query.ContentType(format))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": ExportFilename(u.OriginalFilename, format),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		zap.L().Warn("api: write export", zap.String("upload_id", id), zap.Error(err))
	}
}

// ExportFilename derives the download name from the uploaded file name.
func ExportFilename(original, format string) string {
	base := strings.TrimSuffix(path.Base(original), path.Ext(original))
	if base == "" || base == "." || base == "/" {
		base = "upload"
	}
	return base + "_results." + format
}

func (s *Server) deleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.pipeline.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.Validation(name, v, "must be a non-negative integer")
	}
	return n, nil
}
