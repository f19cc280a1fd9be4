package server

import (
	"github.com/gin-gonic/gin"
)

type openDraftRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) OpenDraft(c *gin.Context) {
	var req openDraftRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	draft, err := s.publicationSvc.OpenDraft(c.Request.Context(), req.Comment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, draft)
}

func (s *Server) ListPublications(c *gin.Context) {
	items, err := s.publicationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, items, nil)
}

func (s *Server) GetPublication(c *gin.Context) {
	pub, err := s.publicationSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, pub)
}

func (s *Server) Publish(c *gin.Context) {
	result, err := s.publicationSvc.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

func (s *Server) CancelPublication(c *gin.Context) {
	pub, err := s.publicationSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, pub)
}
