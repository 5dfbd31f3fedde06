package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atomgomba/orangebox/internal/blackbox"
	"github.com/atomgomba/orangebox/internal/common"
	"github.com/atomgomba/orangebox/internal/report"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDecode accepts a multipart-uploaded log file, decodes the selected
// session, and returns a JSON object whose "summary" field holds the
// report.Summary. When the "pdf" form field is truthy, a rendered PDF
// report is also stored as a downloadable artifact and referenced in the
// response's "artifact" field.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("log")
	if err != nil {
		http.Error(w, "missing file field \"log\"", http.StatusBadRequest)
		return
	}
	defer file.Close()

	logIndex := 1
	if v := strings.TrimSpace(r.FormValue("index")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
		logIndex = n
	}
	allowInvalid := s.allowInvalid
	if v := strings.TrimSpace(r.FormValue("allow_invalid_header")); v != "" {
		allowInvalid = truthy(v)
	}
	wantPDF := truthy(r.FormValue("pdf"))

	s.acquire()
	defer s.release()

	uploadPath, err := s.saveUploadedLog(file, header.Filename)
	if err != nil {
		http.Error(w, fmt.Sprintf("save upload: %v", err), http.StatusInternalServerError)
		return
	}

	p, err := blackbox.Load(uploadPath, logIndex, allowInvalid)
	if err != nil {
		http.Error(w, fmt.Sprintf("decode: %v", err), http.StatusUnprocessableEntity)
		return
	}
	metrics := common.NewMetrics()
	metrics.Start()
	p.Metrics = metrics
	defer metrics.Stop()

	summary, err := report.Summarize(p, uploadPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("summarize: %v", err), http.StatusInternalServerError)
		return
	}

	resp := struct {
		Summary  report.Summary `json:"summary"`
		Artifact *ArtifactRef   `json:"artifact,omitempty"`
	}{Summary: summary}

	if wantPDF {
		pdfPath, err := s.tempPath("report-*.pdf")
		if err != nil {
			http.Error(w, fmt.Sprintf("alloc report path: %v", err), http.StatusInternalServerError)
			return
		}
		if err := report.SaveSummaryPDF(summary, pdfPath); err != nil {
			http.Error(w, fmt.Sprintf("render pdf: %v", err), http.StatusInternalServerError)
			return
		}
		art, err := s.addArtifact(pdfPath, header.Filename+".summary.pdf", "application/pdf", "report-pdf")
		if err != nil {
			http.Error(w, fmt.Sprintf("store report: %v", err), http.StatusInternalServerError)
			return
		}
		ref := toRef(art)
		resp.Artifact = &ref
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveUploadedLog(src io.Reader, filename string) (string, error) {
	ext := filepath.Ext(filename)
	pattern := "upload-*"
	if ext != "" {
		pattern = fmt.Sprintf("upload-*%s", ext)
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return "", err
	}
	defer dest.Close()
	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(dest.Name())
		return "", err
	}
	return dest.Name(), nil
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		s.listArtifactsHandler(w, r)
		return
	}
	art, ok := s.artifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	http.ServeFile(w, r, art.Path)
}

func (s *Server) listArtifactsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Artifacts []ArtifactRef `json:"artifacts"`
	}{Artifacts: s.listArtifacts()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
