package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appAsset "github.com/agentchain/agentchain/internal/application/asset"
	"github.com/agentchain/agentchain/internal/domain/content"
	"github.com/agentchain/agentchain/internal/domain/registration"
)

type transactionRequest struct {
	S3Key        string `json:"s3_key"`
	RoyaltyBps   int    `json:"royalty_bps"`
	IsDerivative *bool  `json:"is_derivative,omitempty"`
}

type completeRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	RoyaltyBps   int    `json:"royalty_bps"`
	IsDerivative *bool  `json:"is_derivative,omitempty"`
	S3Key        string `json:"s3_key"`
	Signature    string `json:"signature"`
}

func (s *Server) uploadBundle(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid multipart body: "+err.Error())
		return
	}

	terms, err := termsFromForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	files := make([]content.File, 0, len(headers))
	for _, h := range headers {
		part, err := h.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "unreadable file part: "+h.Filename)
			return
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "unreadable file part: "+h.Filename)
			return
		}
		files = append(files, content.File{RelativePath: h.Filename, Data: data})
	}

	result, err := s.assetSvc.Upload(r.Context(), appAsset.UploadInput{
		Kind:        kind,
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Terms:       terms,
		Files:       files,
	})
	if err != nil {
		if errors.Is(err, appAsset.ErrTermsRejected) {
			respondError(w, http.StatusUnprocessableEntity, "TERMS_REJECTED", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"s3_key":        result.ContentRef,
		"uploadedCount": result.UploadedCount,
	})
}

func (s *Server) buildTransaction(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	encoded, err := s.assetSvc.BuildTransaction(r.Context(), appAsset.BuildInput{
		Kind:       kind,
		Owner:      walletFromContext(r.Context()),
		ContentRef: req.S3Key,
		Terms:      registration.Terms{RoyaltyBps: req.RoyaltyBps, IsDerivative: req.IsDerivative},
	})
	if err != nil {
		switch {
		case errors.Is(err, appAsset.ErrContentNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		case errors.Is(err, appAsset.ErrTermsRejected):
			respondError(w, http.StatusUnprocessableEntity, "TERMS_REJECTED", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"transaction": encoded})
}

func (s *Server) completeRegistration(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	var req completeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	record, err := s.assetSvc.Complete(r.Context(), appAsset.CompleteInput{
		Kind:        kind,
		Owner:       walletFromContext(r.Context()),
		Name:        req.Name,
		Description: req.Description,
		Terms:       registration.Terms{RoyaltyBps: req.RoyaltyBps, IsDerivative: req.IsDerivative},
		ContentRef:  req.S3Key,
		Signature:   req.Signature,
	})
	if err != nil {
		switch {
		case errors.Is(err, appAsset.ErrNotFinalized):
			respondError(w, http.StatusConflict, "NOT_FINALIZED", err.Error())
		case errors.Is(err, appAsset.ErrAlreadyRegistered):
			respondError(w, http.StatusConflict, "ALREADY_REGISTERED", err.Error())
		case errors.Is(err, appAsset.ErrContentNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	records, err := s.assetSvc.ListByOwner(r.Context(), walletFromContext(r.Context()), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	filtered := make([]*registration.Record, 0, len(records))
	for _, rec := range records {
		if rec.Kind == kind {
			filtered = append(filtered, rec)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"assets": filtered})
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	if _, err := kindFromRequest(r); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	signature := chi.URLParam(r, "signature")
	record, err := s.assetSvc.Get(r.Context(), signature)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no registration for signature")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func termsFromForm(r *http.Request) (registration.Terms, error) {
	terms := registration.Terms{}
	if v := r.FormValue("royalty_bps"); v != "" {
		bps, err := strconv.Atoi(v)
		if err != nil {
			return terms, errors.New("royalty_bps must be an integer")
		}
		terms.RoyaltyBps = bps
	}
	if v := r.FormValue("is_derivative"); v != "" {
		d, err := strconv.ParseBool(v)
		if err != nil {
			return terms, errors.New("is_derivative must be a boolean")
		}
		terms.IsDerivative = &d
	}
	return terms, nil
}
