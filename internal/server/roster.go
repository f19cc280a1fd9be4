package server

import (
	"github.com/gin-gonic/gin"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
)

func (s *Server) CreateDependent(c *gin.Context) {
	var req rosterdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dep, err := s.rosterSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, dep)
}

func (s *Server) ListDependents(c *gin.Context) {
	items, err := s.rosterSvc.List(c.Request.Context(), c.Query("affiliate_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, nil)
}

func (s *Server) UpdateDependent(c *gin.Context) {
	var req rosterdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dep, err := s.rosterSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, dep)
}

func (s *Server) DeactivateDependent(c *gin.Context) {
	dep, err := s.rosterSvc.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, dep)
}
