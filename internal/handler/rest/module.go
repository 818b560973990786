package rest

import (
	"log/slog"

	"github.com/webitel/im-presence-service/infra/telemetry"
	"github.com/webitel/im-presence-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rest-handler",
	fx.Provide(
		func(logger *slog.Logger, d service.Deliverer, r service.Relayer, tel *telemetry.Provider) *Handler {
			return NewHandler(logger, d, r, tel)
		},
		NewRouter,
	),
)
