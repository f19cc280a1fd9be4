// Package server exposes the HTTP surface over gin.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mutualabs/mutua/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	auditdomain "github.com/mutualabs/mutua/internal/audit/domain"
	extractdomain "github.com/mutualabs/mutua/internal/extract/domain"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	organizationdomain "github.com/mutualabs/mutua/internal/organization/domain"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
)

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(Run),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      *config.Config
	DB       *gorm.DB
	Registry *prometheus.Registry

	Organizations organizationdomain.Repository
	Relationships relationshipdomain.Service
	Rules         pricingruledomain.Service
	Roster        rosterdomain.Service
	Attributions  attributiondomain.Service
	Publications  publicationdomain.Service
	Ledger        ledgerdomain.Service
	Extract       extractdomain.Service
	Audit         auditdomain.Service `optional:"true"`
}

type Server struct {
	log *zap.Logger
	cfg *config.Config
	db  *gorm.DB

	registry *prometheus.Registry

	orgs            organizationdomain.Repository
	relationshipSvc relationshipdomain.Service
	ruleSvc         pricingruledomain.Service
	rosterSvc       rosterdomain.Service
	attributionSvc  attributiondomain.Service
	publicationSvc  publicationdomain.Service
	ledgerSvc       ledgerdomain.Service
	extractSvc      extractdomain.Service
	auditSvc        auditdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		log:             p.Log.Named("server"),
		cfg:             p.Cfg,
		db:              p.DB,
		registry:        p.Registry,
		orgs:            p.Organizations,
		relationshipSvc: p.Relationships,
		ruleSvc:         p.Rules,
		rosterSvc:       p.Roster,
		attributionSvc:  p.Attributions,
		publicationSvc:  p.Publications,
		ledgerSvc:       p.Ledger,
		extractSvc:      p.Extract,
		auditSvc:        p.Audit,
	}
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/readiness", s.GetReadiness)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1", s.OrgMiddleware())
	{
		v1.POST("/relationship_types", s.CreateRelationshipType)
		v1.GET("/relationship_types", s.ListRelationshipTypes)
		v1.GET("/relationship_types/:id", s.GetRelationshipType)
		v1.POST("/relationship_types/:id/deactivate", s.DeactivateRelationshipType)

		v1.POST("/pricing_rules/flat", s.CreateFlatRule)
		v1.GET("/pricing_rules/flat", s.ListFlatRules)
		v1.POST("/pricing_rules/tiers", s.CreateTierRules)
		v1.GET("/pricing_rules/tiers", s.ListTierRules)
		v1.PATCH("/pricing_rules/tiers/:id", s.UpdateTierRule)
		v1.POST("/pricing_rules/tiers/:id/deactivate", s.DeactivateTierRule)

		v1.POST("/dependents", s.CreateDependent)
		v1.GET("/dependents", s.ListDependents)
		v1.PATCH("/dependents/:id", s.UpdateDependent)
		v1.POST("/dependents/:id/deactivate", s.DeactivateDependent)

		v1.GET("/affiliates/:id/attribution", s.GetAttribution)
		v1.POST("/affiliates/:id/attribution/activate", s.ActivateAttribution)
		v1.POST("/affiliates/:id/attribution/withdraw", s.WithdrawAttribution)
		v1.POST("/affiliates/:id/attribution/reassign", s.ReassignAttribution)

		v1.POST("/publications/open-draft", s.OpenDraft)
		v1.GET("/publications", s.ListPublications)
		v1.GET("/publications/:id", s.GetPublication)
		v1.POST("/publications/:id/publish", s.Publish)
		v1.POST("/publications/:id/cancel", s.CancelPublication)

		v1.POST("/accounts", s.CreateAccount)
		v1.GET("/accounts", s.ListAccounts)
		v1.GET("/accounts/:id", s.GetAccount)
		v1.POST("/accounts/:id/deactivate", s.DeactivateAccount)
		v1.GET("/accounts/:id/balance", s.GetBalance)
		v1.GET("/accounts/:id/extract", s.GetExtract)
		v1.GET("/accounts/:id/movements", s.ListMovements)

		v1.POST("/ledger/adjustments", s.CreateAdjustment)
		v1.POST("/ledger/movements/:id/reverse", s.ReverseMovement)
	}
	return r
}

// Run binds the HTTP listener to the fx lifecycle.
func Run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
