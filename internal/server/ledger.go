package server

import (
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/pkg/db/pagination"
)

func (s *Server) CreateAccount(c *gin.Context) {
	var req ledgerdomain.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.IdempotencyKey = idempotencyKeyFromHeader(c)

	account, err := s.ledgerSvc.CreateAccount(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, account)
}

func (s *Server) ListAccounts(c *gin.Context) {
	items, err := s.ledgerSvc.ListAccounts(c.Request.Context(), c.Query("affiliate_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, nil)
}

func (s *Server) GetAccount(c *gin.Context) {
	account, err := s.ledgerSvc.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, account)
}

func (s *Server) DeactivateAccount(c *gin.Context) {
	account, err := s.ledgerSvc.DeactivateAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, account)
}

func (s *Server) ListMovements(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, pageInfo, err := s.ledgerSvc.Movements(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, pageInfo)
}

func (s *Server) GetBalance(c *gin.Context) {
	balance, err := s.extractSvc.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"account_id": c.Param("id"), "balance_cents": balance})
}

func (s *Server) GetExtract(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		AbortWithError(c, &apiError{status: 400, code: "invalid_period", message: "from must be RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		AbortWithError(c, &apiError{status: 400, code: "invalid_period", message: "to must be RFC3339"})
		return
	}

	projection, err := s.extractSvc.ProjectPeriod(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, projection)
}

type reverseMovementRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ReverseMovement(c *gin.Context) {
	var req reverseMovementRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	movement, err := s.ledgerSvc.Reverse(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, movement)
}

func (s *Server) CreateAdjustment(c *gin.Context) {
	var req ledgerdomain.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	movement, err := s.ledgerSvc.ManualAdjustment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, movement)
}
