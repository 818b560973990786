package auth

import (
	"log/slog"

	"github.com/webitel/im-presence-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) Auther {
		if cfg.Auth.JWTSecret == "" {
			logger.Warn("AUTH_TRUST_MODE", "reason", "auth.jwt_secret is empty, join identities are trusted as given")
			return TrustAuther{}
		}
		return NewJWTAuther(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}),
)
