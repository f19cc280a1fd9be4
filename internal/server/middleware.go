package server

import (
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mutualabs/mutua/internal/orgcontext"
)

// OrgMiddleware resolves the acting organization from the X-Org-ID
// header. Single-tenant installs may omit it; the seeded default
// organization is used and cached after the first lookup.
func (s *Server) OrgMiddleware() gin.HandlerFunc {
	var once sync.Once
	var defaultOrgID snowflake.ID

	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("X-Org-ID"))

		var orgID snowflake.ID
		if header != "" {
			parsed, err := snowflake.ParseString(header)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": gin.H{"code": "invalid_org_id", "message": "X-Org-ID is not a valid id"},
				})
				return
			}
			org, err := s.orgs.FindByID(c.Request.Context(), parsed)
			if err != nil || org == nil || !org.Active {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{"code": "unknown_org", "message": "organization not found or inactive"},
				})
				return
			}
			orgID = org.ID
		} else {
			once.Do(func() {
				if org, err := s.orgs.FindFirst(c.Request.Context()); err == nil && org != nil {
					defaultOrgID = org.ID
				}
			})
			if defaultOrgID == 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{"code": "missing_org", "message": "no organization available"},
				})
				return
			}
			orgID = defaultOrgID
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
