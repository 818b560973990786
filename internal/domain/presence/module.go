package presence

import (
	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module("presence",
	fx.Provide(
		func(cfg *config.Config, hub registry.Hubber) *Broadcaster {
			return NewBroadcaster(hub,
				WithSendTimeout(cfg.Registry.SendTimeout),
				WithParallelism(cfg.Registry.AnnounceParallelism),
			)
		},
		func(b *Broadcaster) Announcer { return b },
	),
)
