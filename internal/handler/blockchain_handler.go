package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/corneadesci/funding-service/internal/infrastructure/auth"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

func (h *Handler) RegisterResearchOnChain(w http.ResponseWriter, r *http.Request) {
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

	registration, err := h.research.RegisterOnBlockchain(r.Context(), callerID, id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, registration)
}

func (h *Handler) VerifyProofOfInvention(w http.ResponseWriter, r *http.Request) {
	poiID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	var req struct {
		IPFSHash string `json:"ipfs_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	verification, err := h.chain.VerifyProofOfInvention(r.Context(), poiID, req.IPFSHash)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, verification)
}

func (h *Handler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionHash string `json:"transaction_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	result, err := h.chain.VerifyTransaction(r.Context(), req.TransactionHash)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetTokenBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	balance, err := h.chain.TokenBalance(r.Context(), address)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"address": address, "balance": balance})
}

func (h *Handler) MintTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientAddress string `json:"recipient_address"`
		Amount           int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	result, err := h.chain.Mint(r.Context(), req.RecipientAddress, req.Amount)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
