package roster

import (
	"github.com/mutualabs/mutua/internal/roster/repository"
	"github.com/mutualabs/mutua/internal/roster/service"
	"go.uber.org/fx"
)

var Module = fx.Module("roster.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
