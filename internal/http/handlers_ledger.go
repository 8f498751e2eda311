package http

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

// handleImport accepts a statement either as a multipart "file" field or as
// a raw CSV body named by the "source" query parameter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		body   io.Reader
		source string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			BadRequestError("missing statement file").Write(w)
			return
		}
		defer file.Close()
		body, source = file, filepath.Base(header.Filename)
	} else {
		body = r.Body
		source = sanitizeInput(r.URL.Query().Get("source"))
		if source == "" {
			source = "upload.csv"
		}
	}

	res, ok := s.ops.ImportReader(r.Context(), source, body)
	dto := toImportResultDTO(res, ok)
	if !ok {
		NewJSONResponse().Status(http.StatusUnprocessableEntity).Body(dto).Write(w)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Statement uploaded",
		log.FieldBatchID, res.BatchID,
		log.FieldSource, source,
		log.FieldRowsImported, res.Imported)
	NewJSONResponse().Body(dto).Write(w)
}

func (s *Server) handleUnprocessed(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(toTransactionDTOs(s.ops.QueryUnprocessed(r.Context()))).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	tx, ok := s.ops.Transaction(r.Context(), id)
	if !ok {
		NotFoundError("transaction not found").Write(w)
		return
	}
	NewJSONResponse().Body(toTransactionDTO(tx)).Write(w)
}

func (s *Server) handleCategorizeByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	MutationResponse(s.ops.UpdateCategoryByID(r.Context(), id, sanitizeInput(req.Category))).Write(w)
}

func (s *Server) handleProcessedByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req processedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	status, err := parseProcessed(req.Processed)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	MutationResponse(s.ops.SetProcessedByID(r.Context(), id, status)).Write(w)
}

func (s *Server) handleFlagByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req flagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	MutationResponse(s.ops.FlagByID(r.Context(), id, req.Flagged)).Write(w)
}

func (s *Server) handleCategorizeByKey(w http.ResponseWriter, r *http.Request) {
	var req categorizeByKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	MutationResponse(s.ops.UpdateCategory(r.Context(), sanitizeInput(req.NewCategory), req.key())).Write(w)
}

func (s *Server) handleProcessedByKey(w http.ResponseWriter, r *http.Request) {
	var req processedByKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	status, err := parseProcessed(req.Processed)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	key := req.key()
	if req.Flagged {
		key.Flagged = core.FlagFlagged
	}
	MutationResponse(s.ops.UpdateProcessingStatus(r.Context(), key, status)).Write(w)
}

func (s *Server) handleFlagByKey(w http.ResponseWriter, r *http.Request) {
	var req naturalKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	MutationResponse(s.ops.FlagTransaction(r.Context(), req.key())).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.ops.Categories(r.Context())).Write(w)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	processed, unprocessed := s.ops.Status(r.Context())
	NewJSONResponse().Body(map[string]int64{
		"processed":   processed,
		"unprocessed": unprocessed,
	}).Write(w)
}
