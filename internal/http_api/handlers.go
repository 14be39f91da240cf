package http_api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sponsio/sponsio/internal/models"
)

// CreateStakeRequest represents the JSON body for opening a stake
type CreateStakeRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Type        string          `json:"type" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency" binding:"required"`
	Rail        string          `json:"rail"`
	Deadline    int64           `json:"deadline" binding:"required"` // Unix timestamp
}

// JoinStakeRequest represents the JSON body for joining a stake
type JoinStakeRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Role   string          `json:"role" binding:"required,oneof=SUPPORTER STAKEHOLDER"`
	Rail   string          `json:"rail"`
}

// CompletionRequest represents the JSON body for submitting completion proof
type CompletionRequest struct {
	Proof                string `json:"proof" binding:"required"`
	CompletionPercentage int    `json:"completion_percentage"`
}

// CreateRecoveryRequest represents the JSON body for opening a recovery stake
type CreateRecoveryRequest struct {
	OriginalStakeID string          `json:"original_stake_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Deadline        int64           `json:"deadline" binding:"required"`
}

// SettleRecoveryRequest represents the JSON body for resolving a recovery stake
type SettleRecoveryRequest struct {
	Succeeded bool `json:"succeeded"`
}

// userID extracts the authenticated user from the gateway-set identity
// header. An empty value means the request never passed authentication.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// requestContext rebuilds the verification snapshot the identity gateway
// attaches to each request.
func requestContext(c *gin.Context) models.RequestContext {
	return models.RequestContext{
		EmailVerified:      c.GetHeader("X-Email-Verified") == "true",
		NameVerified:       c.GetHeader("X-Name-Verified") == "true",
		IdentityVerified:   c.GetHeader("X-Identity-Verified") == "true",
		Country:            c.GetHeader("X-Country"),
		PaymentMethodValid: c.GetHeader("X-Payment-Method-Valid") == "true",
		ClientSignature:    c.GetHeader("X-Client-Signature"),
	}
}

// writeError maps the service error taxonomy onto HTTP statuses.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, models.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, models.ErrInsufficientFunds):
		status, code = http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, models.ErrPaymentDeclined):
		status, code = http.StatusPaymentRequired, "payment_declined"
	case errors.Is(err, models.ErrRiskBlocked):
		status, code = http.StatusForbidden, "risk_blocked"
	case errors.Is(err, models.ErrRiskReviewRequired):
		status, code = http.StatusForbidden, "review_required"
	case errors.Is(err, models.ErrNotStakeOwner):
		status, code = http.StatusForbidden, "not_owner"
	case errors.Is(err, models.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrDuplicateParticipant),
		errors.Is(err, models.ErrOwnerCannotJoin),
		errors.Is(err, models.ErrDuplicateEscrow),
		errors.Is(err, models.ErrStakeClosed),
		errors.Is(err, models.ErrStakeHasParticipants),
		errors.Is(err, models.ErrRecoveryChain),
		errors.Is(err, models.ErrRecoveryAttempts),
		errors.Is(err, models.ErrInvalidTransition):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrPaymentProvider):
		status, code = http.StatusBadGateway, "payment_provider"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"success": false, "code": code, "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "code": code, "error": err.Error()})
}

func (s *HTTPServer) requireUser(c *gin.Context) (string, bool) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing identity"})
		return "", false
	}
	return user, true
}

// health is a liveness probe.
func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createStake is a handler for the POST /api/v1/stakes endpoint.
func (s *HTTPServer) createStake(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req CreateStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body: " + err.Error()})
		return
	}

	stake, err := s.sponsio.CreateStake(models.CreateStakeInput{
		OwnerID:     user,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Rail:        req.Rail,
		Deadline:    req.Deadline,
		Context:     requestContext(c),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "stake": stake})
}

// getStake is a handler for the GET /api/v1/stakes/:id endpoint.
func (s *HTTPServer) getStake(c *gin.Context) {
	stake, err := s.sponsio.GetStake(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stake": stake})
}

// joinStake is a handler for the POST /api/v1/stakes/:id/join endpoint.
func (s *HTTPServer) joinStake(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req JoinStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body: " + err.Error()})
		return
	}

	stake, err := s.sponsio.JoinStake(models.JoinStakeInput{
		StakeID:       c.Param("id"),
		ParticipantID: user,
		Amount:        req.Amount,
		Role:          req.Role,
		Rail:          req.Rail,
		Context:       requestContext(c),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stake": stake})
}

// submitCompletion is a handler for the POST /api/v1/stakes/:id/complete endpoint.
func (s *HTTPServer) submitCompletion(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body: " + err.Error()})
		return
	}

	stake, err := s.sponsio.SubmitCompletion(models.CompletionInput{
		StakeID:              c.Param("id"),
		UserID:               user,
		Proof:                req.Proof,
		CompletionPercentage: req.CompletionPercentage,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stake": stake})
}

// cancelStake is a handler for the POST /api/v1/stakes/:id/cancel endpoint.
func (s *HTTPServer) cancelStake(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	stake, err := s.sponsio.CancelStake(c.Param("id"), user)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stake": stake})
}

// getWallet is a handler for the GET /api/v1/wallet endpoint.
func (s *HTTPServer) getWallet(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	wallet, err := s.sponsio.GetWallet(user)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "wallet": wallet})
}

// getWalletTransactions is a handler for the GET /api/v1/wallet/transactions endpoint.
func (s *HTTPServer) getWalletTransactions(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	transactions, err := s.sponsio.GetWalletTransactions(user, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transactions": transactions})
}

// createRecoveryStake is a handler for the POST /api/v1/recovery endpoint.
func (s *HTTPServer) createRecoveryStake(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req CreateRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body: " + err.Error()})
		return
	}

	recovery, err := s.sponsio.CreateRecoveryStake(models.CreateRecoveryInput{
		OriginalStakeID: req.OriginalStakeID,
		UserID:          user,
		Amount:          req.Amount,
		Deadline:        req.Deadline,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "recovery": recovery})
}

// settleRecoveryStake is a handler for the POST /api/v1/recovery/:id/settle endpoint.
func (s *HTTPServer) settleRecoveryStake(c *gin.Context) {
	user, ok := s.requireUser(c)
	if !ok {
		return
	}

	var req SettleRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body: " + err.Error()})
		return
	}

	recovery, err := s.sponsio.SettleRecoveryStake(models.SettleRecoveryInput{
		RecoveryID: c.Param("id"),
		UserID:     user,
		Succeeded:  req.Succeeded,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "recovery": recovery})
}
