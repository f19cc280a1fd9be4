package pricingrule

import (
	"github.com/mutualabs/mutua/internal/pricingrule/repository"
	"github.com/mutualabs/mutua/internal/pricingrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricingrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
