package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/stakes", s.createStake)
		v1.GET("/stakes/:id", s.getStake)
		v1.POST("/stakes/:id/join", s.joinStake)
		v1.POST("/stakes/:id/complete", s.submitCompletion)
		v1.POST("/stakes/:id/cancel", s.cancelStake)

		v1.GET("/wallet", s.getWallet)
		v1.GET("/wallet/transactions", s.getWalletTransactions)

		v1.POST("/recovery", s.createRecoveryStake)
		v1.POST("/recovery/:id/settle", s.settleRecoveryStake)
	}
}
