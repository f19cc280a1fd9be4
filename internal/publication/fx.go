package publication

import (
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	"github.com/mutualabs/mutua/internal/publication/repository"
	"github.com/mutualabs/mutua/internal/publication/service"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("publication.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) publicationdomain.Service { return s }),
	fx.Provide(func(s *service.Service) schedulerdomain.Recomputer { return s }),
)
