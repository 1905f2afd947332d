package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	service "github.com/corneadesci/funding-service/internal/services"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

type Handler struct {
	users    service.UserService
	research service.ResearchService
	funding  service.FundingService
	chain    service.BlockchainService
}

func NewHandler(users service.UserService, research service.ResearchService, funding service.FundingService, chain service.BlockchainService) *Handler {
	return &Handler{users: users, research: research, funding: funding, chain: chain}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// handleError maps the service error taxonomy onto HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, pkgerrors.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrResearchNotFound),
		errors.Is(err, pkgerrors.ErrFundingNotFound),
		errors.Is(err, pkgerrors.ErrMilestoneNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, pkgerrors.ErrEmailExists),
		errors.Is(err, pkgerrors.ErrUsernameExists),
		errors.Is(err, pkgerrors.ErrInvalidStatusTransition),
		errors.Is(err, pkgerrors.ErrMilestoneAlreadyReleased):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidFundingStatus),
		errors.Is(err, pkgerrors.ErrInvalidFundingType),
		errors.Is(err, pkgerrors.ErrMilestoneExceedsFunding),
		errors.Is(err, pkgerrors.ErrNoWallet):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, pkgerrors.ErrBlockchain):
		h.writeError(w, http.StatusBadGateway, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/api/users/register", h.Register).Methods("POST")
	r.HandleFunc("/api/users/login", h.Login).Methods("POST")
}

// RegisterProtectedRoutes expects a subrouter already mounted under /api
// with the auth middleware attached.
func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/users", h.ListUsers).Methods("GET")
	r.HandleFunc("/users/me", h.GetCurrentUser).Methods("GET")
	r.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	r.HandleFunc("/users/{id}", h.UpdateUser).Methods("PUT")
	r.HandleFunc("/users/{id}", h.DeleteUser).Methods("DELETE")

	r.HandleFunc("/research", h.CreateResearch).Methods("POST")
	r.HandleFunc("/research", h.ListResearch).Methods("GET")
	r.HandleFunc("/research/my", h.ListMyResearch).Methods("GET")
	r.HandleFunc("/research/{id}", h.GetResearch).Methods("GET")
	r.HandleFunc("/research/{id}/status", h.UpdateResearchStatus).Methods("PUT")

	r.HandleFunc("/funding", h.CreateFunding).Methods("POST")
	r.HandleFunc("/funding/my", h.ListMyFundings).Methods("GET")
	r.HandleFunc("/funding/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/funding/research/{research_id}", h.ListResearchFundings).Methods("GET")
	r.HandleFunc("/funding/statistics/{research_id}", h.GetFundingStatistics).Methods("GET")
	r.HandleFunc("/funding/milestones", h.CreateMilestone).Methods("POST")
	r.HandleFunc("/funding/milestones/{funding_id}", h.ListMilestones).Methods("GET")
	r.HandleFunc("/funding/milestones/{id}", h.UpdateMilestone).Methods("PUT")
	r.HandleFunc("/funding/{id}", h.GetFunding).Methods("GET")
	r.HandleFunc("/funding/{id}/status", h.UpdateFundingStatus).Methods("PUT")

	r.HandleFunc("/blockchain/research/{id}", h.RegisterResearchOnChain).Methods("POST")
	r.HandleFunc("/blockchain/verify-poi/{id}", h.VerifyProofOfInvention).Methods("POST")
	r.HandleFunc("/blockchain/verify-transaction", h.VerifyTransaction).Methods("POST")
	r.HandleFunc("/blockchain/token-balance/{address}", h.GetTokenBalance).Methods("GET")
	r.HandleFunc("/blockchain/mint-tokens", h.MintTokens).Methods("POST")
}
