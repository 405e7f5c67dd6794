package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"autodrive/internal/domain"
	"autodrive/internal/repository"
)

// AccountHandler handles HTTP requests for rider and driver accounts.
type AccountHandler struct {
	accountRepo repository.AccountRepository
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountRepo repository.AccountRepository) *AccountHandler {
	return &AccountHandler{accountRepo: accountRepo}
}

// RegisterAccountRequest is the HTTP request body for account registration.
type RegisterAccountRequest struct {
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
}

// AccountResponse is the HTTP response for account data.
type AccountResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	WalletAddress    string `json:"wallet_address"`
	RidesAsPassenger int    `json:"rides_as_passenger"`
	RidesAsDriver    int    `json:"rides_as_driver"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// Register handles POST /v1/accounts
func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.Name == "" || req.WalletAddress == "" {
		respondBadRequest(c, "name and wallet_address are required")
		return
	}

	account := &domain.Account{
		ID:            uuid.New().String(),
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
	}

	if err := h.accountRepo.Create(c.Request.Context(), account); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, accountResponse(account))
}

// GetAccount handles GET /v1/accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.accountRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, accountResponse(account))
}

func accountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		Name:             a.Name,
		WalletAddress:    a.WalletAddress,
		RidesAsPassenger: a.RidesAsPassenger,
		RidesAsDriver:    a.RidesAsDriver,
		CreatedAt:        formatTime(a.CreatedAt),
	}
}
