package pubsub

import (
	"go.uber.org/fx"
)

var Module = fx.Module("event-dispatcher",
	fx.Provide(NewEventDispatcher),
)
