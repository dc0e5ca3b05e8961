package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/casekit/evidence-extractor/constants"
	"github.com/casekit/evidence-extractor/internal/async"
	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/entity"
	"github.com/casekit/evidence-extractor/internal/llm"
)

const maxUploadBytes = 100 << 20 // 100 MiB

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file field is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		badRequest(w, "only PDF files are supported")
		return
	}

	fields, customPrompt, err := s.resolveUploadConfig(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id := uuid.New()
	path, size, err := s.saveUpload(file, id)
	if err != nil {
		writeError(w, err)
		return
	}

	c := &entity.Case{
		ID:               id,
		OriginalFilename: header.Filename,
		FilePath:         path,
		Status:           constants.CaseStatusUploaded,
		FileSize:         size,
		ExtractionFields: fields,
		CustomPrompt:     customPrompt,
		CreatedAt:        time.Now().UTC(),
	}

	// Page count is informational; a probe failure never blocks the upload.
	if info, probeErr := s.raster.Probe(r.Context(), path); probeErr == nil {
		c.PageCount = info.PageCount
	} else {
		s.logger.Warn("upload.probe.failed", "case_id", id.String(), "error", probeErr)
	}

	if err := s.cases.CreateCase(r.Context(), c); err != nil {
		_ = os.Remove(path)
		writeError(w, err)
		return
	}

	if err := s.queue.Enqueue(r.Context(), async.Job{CaseID: id, SubmittedAt: time.Now()}); err != nil {
		s.logger.Error("upload.enqueue.failed", "case_id", id.String(), "error", err)
	}

	s.logger.Info("upload.accepted",
		"case_id", id.String(),
		"filename", header.Filename,
		"file_size", size,
		"page_count", c.PageCount,
	)
	writeJSON(w, http.StatusOK, c)
}

// resolveUploadConfig merges the optional extraction configuration attached
// to an upload. Explicit form fields win over a referenced template.
func (s *Server) resolveUploadConfig(r *http.Request) (json.RawMessage, *string, error) {
	var fields json.RawMessage
	var customPrompt *string

	if tid := r.FormValue("template_id"); tid != "" {
		id, err := uuid.Parse(tid)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid template_id", common.ErrInvalidInput)
		}
		tpl, err := s.templates.GetTemplate(r.Context(), id)
		if err != nil {
			return nil, nil, err
		}
		fields = tpl.ExtractionFields
		customPrompt = tpl.CustomPrompt
	}

	if raw := r.FormValue("extraction_fields"); raw != "" {
		parsed, err := parseFieldSpecs(json.RawMessage(raw))
		if err != nil {
			return nil, nil, err
		}
		fields = parsed
	}
	if p := r.FormValue("custom_prompt"); p != "" {
		customPrompt = &p
	}
	return fields, customPrompt, nil
}

func (s *Server) saveUpload(src multipart.File, id uuid.UUID) (string, int64, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, id.String()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	return path, size, nil
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.cases.ListCases(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(cases),
		"cases": cases,
	})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type configRequest struct {
	ExtractionFields json.RawMessage `json:"extraction_fields"`
	CustomPrompt     *string         `json:"custom_prompt"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if len(req.ExtractionFields) > 0 {
		if req.ExtractionFields, err = parseFieldSpecs(req.ExtractionFields); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := s.cases.UpdateConfig(r.Context(), id, req.ExtractionFields, req.CustomPrompt); err != nil {
		writeError(w, err)
		return
	}

	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Optional body carries a config update that applies before the rerun.
	if r.ContentLength > 0 {
		var req configRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		if len(req.ExtractionFields) > 0 {
			if req.ExtractionFields, err = parseFieldSpecs(req.ExtractionFields); err != nil {
				writeError(w, err)
				return
			}
		}
		if len(req.ExtractionFields) > 0 || req.CustomPrompt != nil {
			if err := s.cases.UpdateConfig(r.Context(), id, req.ExtractionFields, req.CustomPrompt); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.queue.Enqueue(r.Context(), async.Job{CaseID: id, SubmittedAt: time.Now()}); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("case.reprocess.queued", "case_id", id.String(), "status", c.Status)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"case_id": id,
		"status":  "queued",
	})
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.cases.DeleteCase(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if c.FilePath != "" {
		if rmErr := os.Remove(c.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("case.delete.file", "case_id", id.String(), "error", rmErr)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"case_id": id, "deleted": true})
}

// pageSummary is the per-page view assembled from stored processing details.
type pageSummary struct {
	PageNum    int    `json:"page_num"`
	OCRMethod  string `json:"ocr_method,omitempty"`
	OCRSuccess bool   `json:"ocr_success"`
	TextLength int    `json:"text_length"`
	VLMSuccess bool   `json:"vlm_success"`
}

type pageDetail struct {
	pageSummary
	OCRText  string `json:"ocr_text,omitempty"`
	OCRError string `json:"ocr_error,omitempty"`
	VLMText  string `json:"vlm_text,omitempty"`
	VLMError string `json:"vlm_error,omitempty"`
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	details, err := s.loadDetails(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]pageSummary, 0, len(details.OCRPages))
	for _, p := range details.OCRPages {
		ps := pageSummary{
			PageNum:    p.PageNum,
			OCRMethod:  p.Method,
			OCRSuccess: p.Success,
			TextLength: p.TextLength,
		}
		for _, v := range details.VLMPages {
			if v.PageNum == p.PageNum {
				ps.VLMSuccess = v.Success
				break
			}
		}
		summaries = append(summaries, ps)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case_id":    id,
		"page_count": details.PageCount,
		"pages":      summaries,
	})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pageNum, err := strconv.Atoi(chi.URLParam(r, "pageNum"))
	if err != nil || pageNum < 1 {
		badRequest(w, "invalid page number")
		return
	}

	details, err := s.loadDetails(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	var detail pageDetail
	found := false
	for _, p := range details.OCRPages {
		if p.PageNum == pageNum {
			detail.pageSummary = pageSummary{
				PageNum:    p.PageNum,
				OCRMethod:  p.Method,
				OCRSuccess: p.Success,
				TextLength: p.TextLength,
			}
			detail.OCRText = p.Text
			detail.OCRError = p.Error
			found = true
			break
		}
	}
	for _, v := range details.VLMPages {
		if v.PageNum == pageNum {
			detail.VLMSuccess = v.Success
			detail.VLMText = v.Text
			detail.VLMError = v.Error
			found = true
			detail.PageNum = pageNum
		}
	}
	if !found {
		writeError(w, fmt.Errorf("%w: page %d has no processing record", common.ErrNotFound, pageNum))
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) loadDetails(r *http.Request, id uuid.UUID) (*entity.ProcessingDetails, error) {
	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if len(c.ProcessingDetails) == 0 {
		return nil, fmt.Errorf("%w: case %s has not been processed", common.ErrNotFound, id)
	}
	var details entity.ProcessingDetails
	if err := json.Unmarshal(c.ProcessingDetails, &details); err != nil {
		return nil, fmt.Errorf("decode processing details: %w", err)
	}
	return &details, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if c.Status != constants.CaseStatusCompleted {
		badRequest(w, "case is not completed")
		return
	}

	data, err := s.exporter.BuildCaseXLSX(c)
	if err != nil {
		writeError(w, err)
		return
	}

	name := strings.TrimSuffix(c.OriginalFilename, filepath.Ext(c.OriginalFilename))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_extracted.xlsx"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDefaultConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"extraction_fields": llm.DefaultExtractionFields(),
		"custom_prompt":     nil,
	})
}

func caseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid case id", common.ErrInvalidInput)
	}
	return id, nil
}

// parseFieldSpecs validates a raw field-spec list and returns it re-encoded
// in canonical form.
func parseFieldSpecs(raw json.RawMessage) (json.RawMessage, error) {
	var specs []llm.FieldSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("%w: extraction_fields must be a field list", common.ErrInvalidInput)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: extraction_fields must not be empty", common.ErrInvalidInput)
	}
	for i, spec := range specs {
		if spec.Key == "" {
			return nil, fmt.Errorf("%w: field %d has an empty key", common.ErrInvalidInput, i)
		}
	}
	out, err := json.Marshal(specs)
	if err != nil {
		return nil, err
	}
	return out, nil
}
