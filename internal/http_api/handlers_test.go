package http_api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

// stubSponsio lets each test script the service behaviour per operation.
type stubSponsio struct {
	createStake func(models.CreateStakeInput) (*models.Stake, error)
	getStake    func(string) (*models.Stake, error)
	getWallet   func(string) (*models.Wallet, error)
}

func (s *stubSponsio) Start()    {}
func (s *stubSponsio) Shutdown() {}

func (s *stubSponsio) CreateStake(in models.CreateStakeInput) (*models.Stake, error) {
	return s.createStake(in)
}

func (s *stubSponsio) JoinStake(models.JoinStakeInput) (*models.Stake, error) { return nil, nil }
func (s *stubSponsio) SubmitCompletion(models.CompletionInput) (*models.Stake, error) {
	return nil, nil
}
func (s *stubSponsio) CancelStake(string, string) (*models.Stake, error) { return nil, nil }

func (s *stubSponsio) GetStake(id string) (*models.Stake, error) { return s.getStake(id) }

func (s *stubSponsio) GetWallet(userID string) (*models.Wallet, error) { return s.getWallet(userID) }
func (s *stubSponsio) GetWalletTransactions(string, int) ([]*models.WalletTransaction, error) {
	return nil, nil
}
func (s *stubSponsio) CreateRecoveryStake(models.CreateRecoveryInput) (*models.RecoveryStake, error) {
	return nil, nil
}
func (s *stubSponsio) SettleRecoveryStake(models.SettleRecoveryInput) (*models.RecoveryStake, error) {
	return nil, nil
}
func (s *stubSponsio) SweepDeadlines(int64) error { return nil }

func newTestServer(stub *stubSponsio) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	server := &HTTPServer{
		router:  router,
		sponsio: stub,
		logger:  logger.NewNop(),
	}
	server.routes()
	return router
}

const createBody = `{"title":"run a marathon","type":"SELF","amount":"100","currency":"USD","deadline":1750007200}`

func doCreate(router *gin.Engine, withUser bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stakes", strings.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	if withUser {
		req.Header.Set("X-User-ID", "alice")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateStakeRequiresIdentity(t *testing.T) {
	router := newTestServer(&stubSponsio{})
	w := doCreate(router, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateStakeSuccess(t *testing.T) {
	var got models.CreateStakeInput
	stub := &stubSponsio{createStake: func(in models.CreateStakeInput) (*models.Stake, error) {
		got = in
		return &models.Stake{ID: "stake-1", OwnerID: in.OwnerID, Status: models.StakeActive}, nil
	}}
	router := newTestServer(stub)

	w := doCreate(router, true)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, models.StakeTypeSelf, got.Type)
	assert.Equal(t, int64(1750007200), got.Deadline)
	assert.Contains(t, w.Body.String(), "stake-1")
}

func TestCreateStakeMalformedBody(t *testing.T) {
	router := newTestServer(&stubSponsio{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stakes", strings.NewReader(`{"title":`))
	req.Header.Set("X-User-ID", "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorTaxonomyMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.Invalid("amount", "too small"), http.StatusBadRequest},
		{models.ErrInsufficientFunds, http.StatusPaymentRequired},
		{models.ErrPaymentDeclined, http.StatusPaymentRequired},
		{models.ErrRiskBlocked, http.StatusForbidden},
		{models.ErrRiskReviewRequired, http.StatusForbidden},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrDuplicateParticipant, http.StatusConflict},
		{models.ErrStakeClosed, http.StatusConflict},
		{models.ErrRecoveryAttempts, http.StatusConflict},
		{models.ErrPaymentProvider, http.StatusBadGateway},
	}

	for _, tc := range cases {
		stub := &stubSponsio{createStake: func(models.CreateStakeInput) (*models.Stake, error) {
			return nil, tc.err
		}}
		router := newTestServer(stub)
		w := doCreate(router, true)
		assert.Equal(t, tc.code, w.Code, "error %v", tc.err)
	}
}

func TestGetStake(t *testing.T) {
	stub := &stubSponsio{getStake: func(id string) (*models.Stake, error) {
		require.Equal(t, "stake-1", id)
		return &models.Stake{ID: id, Status: models.StakeActive}, nil
	}}
	router := newTestServer(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stakes/stake-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.StakeActive)
}

func TestGetWallet(t *testing.T) {
	stub := &stubSponsio{getWallet: func(userID string) (*models.Wallet, error) {
		return &models.Wallet{ID: "w1", UserID: userID}, nil
	}}
	router := newTestServer(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("X-User-ID", "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alice"`)

	// No identity header, no wallet.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	router := newTestServer(&stubSponsio{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
