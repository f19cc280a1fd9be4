package server

import (
	"github.com/gin-gonic/gin"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
)

type createRelationshipTypeRequest struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (s *Server) CreateRelationshipType(c *gin.Context) {
	var req createRelationshipTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rt, err := s.relationshipSvc.Create(c.Request.Context(), relationshipdomain.CreateRequest{
		Code:        req.Code,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rt)
}

func (s *Server) ListRelationshipTypes(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"
	items, err := s.relationshipSvc.List(c.Request.Context(), includeInactive)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, nil)
}

func (s *Server) GetRelationshipType(c *gin.Context) {
	rt, err := s.relationshipSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rt)
}

func (s *Server) DeactivateRelationshipType(c *gin.Context) {
	rt, err := s.relationshipSvc.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rt)
}
