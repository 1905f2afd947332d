package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/corneadesci/funding-service/internal/infrastructure/auth"
	"github.com/corneadesci/funding-service/internal/models"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

func (h *Handler) CreateFunding(w http.ResponseWriter, r *http.Request) {
	funderID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrInvalidCredentials)
		return
	}

	var req models.CreateFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	funding, err := h.funding.CreateFunding(r.Context(), funderID, req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, funding)
}

func (h *Handler) GetFunding(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	funding, err := h.funding.GetFunding(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, funding)
}

func (h *Handler) ListResearchFundings(w http.ResponseWriter, r *http.Request) {
	researchID, err := uuid.Parse(mux.Vars(r)["research_id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	list, err := h.funding.ListByResearch(r.Context(), researchID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ListMyFundings(w http.ResponseWriter, r *http.Request) {
	funderID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrInvalidCredentials)
		return
	}

	list, err := h.funding.ListByFunder(r.Context(), funderID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) UpdateFundingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	var req models.UpdateFundingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	funding, err := h.funding.UpdateStatus(r.Context(), id, req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, funding)
}

func (h *Handler) GetFundingStatistics(w http.ResponseWriter, r *http.Request) {
	researchID, err := uuid.Parse(mux.Vars(r)["research_id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	stats, err := h.funding.Statistics(r.Context(), researchID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrInvalidCredentials)
		return
	}

	var req models.CreateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	milestone, err := h.funding.CreateMilestone(r.Context(), callerID, req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, milestone)
}

func (h *Handler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	fundingID, err := uuid.Parse(mux.Vars(r)["funding_id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	list, err := h.funding.ListMilestones(r.Context(), fundingID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrInvalidCredentials)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	var req models.UpdateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	milestone, err := h.funding.UpdateMilestone(r.Context(), callerID, id, req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, milestone)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrInvalidCredentials)
		return
	}

	balance, err := h.funding.UserBalance(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}
