package relationship

import (
	"github.com/mutualabs/mutua/internal/relationship/repository"
	"github.com/mutualabs/mutua/internal/relationship/service"
	"go.uber.org/fx"
)

var Module = fx.Module("relationship.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
