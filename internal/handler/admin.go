package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/apperr"
)

func (h *Handler) adminRoutes(r chi.Router) {
	r.Get("/stats", h.handleAdminStats)
	r.Post("/catalog", h.handleUploadCatalog)
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	questions, err := h.content.QuestionCount(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.events.EventCount(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"questions":       questions,
		"events":          events,
		"active_sessions": h.sessions.Active(),
	})
}

func (h *Handler) handleUploadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, r, apperr.Wrap(apperr.CodeValidation, "file too large", err))
		return
	}

	file, header, err := r.FormFile("catalog_file")
	if err != nil {
		writeError(w, r, apperr.New(apperr.CodeValidation, "no file uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.importer.ImportBytes(r.Context(), "upload:"+header.Filename, header.Filename, data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("uploaded catalog via admin",
		"filename", header.Filename,
		"questions", res.Questions,
		"skipped", res.Skipped,
	)
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
