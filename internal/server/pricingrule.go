package server

import (
	"time"

	"github.com/gin-gonic/gin"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
)

type createFlatRuleRequest struct {
	PriceCents int64     `json:"price_cents"`
	ValidFrom  time.Time `json:"valid_from"`
}

func (s *Server) CreateFlatRule(c *gin.Context) {
	var req createFlatRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.ruleSvc.CreateFlat(c.Request.Context(), pricingruledomain.CreateFlatRequest{
		PriceCents:     req.PriceCents,
		ValidFrom:      req.ValidFrom,
		IdempotencyKey: idempotencyKeyFromHeader(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rule)
}

func (s *Server) ListFlatRules(c *gin.Context) {
	items, err := s.ruleSvc.ListFlat(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, nil)
}

type createTierRulesRequest struct {
	Tiers []pricingruledomain.CreateTierRequest `json:"tiers"`
}

// CreateTierRules accepts a batch; the whole submission is validated
// for mutual overlap before anything is stored.
func (s *Server) CreateTierRules(c *gin.Context) {
	var req createTierRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rules, err := s.ruleSvc.CreateTiers(c.Request.Context(), req.Tiers)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rules)
}

func (s *Server) ListTierRules(c *gin.Context) {
	items, err := s.ruleSvc.ListTiers(c.Request.Context(), c.Query("relationship_type_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, nil)
}

func (s *Server) UpdateTierRule(c *gin.Context) {
	var req pricingruledomain.UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.ruleSvc.UpdateTier(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rule)
}

func (s *Server) DeactivateTierRule(c *gin.Context) {
	rule, err := s.ruleSvc.DeactivateTier(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rule)
}
