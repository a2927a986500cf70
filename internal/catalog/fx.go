package catalog

import (
	"github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/catalog/service"
	"github.com/smallbiznis/revenue/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.ProvideStore[domain.ServiceDefinition]),
	fx.Provide(service.NewService),
)
