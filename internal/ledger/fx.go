package ledger

import (
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/internal/ledger/repository"
	"github.com/mutualabs/mutua/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) ledgerdomain.Service { return s }),
	fx.Provide(func(s *service.Service) ledgerdomain.TxPoster { return s }),
)
