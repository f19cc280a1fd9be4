package server

import (
	"github.com/gin-gonic/gin"
	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
)

func (s *Server) GetAttribution(c *gin.Context) {
	attr, err := s.attributionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, attr)
}

func (s *Server) ActivateAttribution(c *gin.Context) {
	var req attributiondomain.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	attr, err := s.attributionSvc.Activate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, attr)
}

func (s *Server) WithdrawAttribution(c *gin.Context) {
	attr, err := s.attributionSvc.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, attr)
}

func (s *Server) ReassignAttribution(c *gin.Context) {
	var req attributiondomain.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	attr, err := s.attributionSvc.Reassign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, attr)
}
