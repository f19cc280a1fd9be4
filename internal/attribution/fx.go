package attribution

import (
	"github.com/mutualabs/mutua/internal/attribution/repository"
	"github.com/mutualabs/mutua/internal/attribution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("attribution.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
