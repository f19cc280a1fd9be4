package scheduler

import (
	"github.com/mutualabs/mutua/internal/scheduler/domain"
	"github.com/mutualabs/mutua/internal/scheduler/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(repository.Provide),
	fx.Provide(New),
	fx.Provide(func(s *Scheduler) domain.Enqueuer { return s }),
)
