package starter

import (
	"context"

	"moff.io/wallet-shell/internal/config"
)

type Startable interface {
	Start(ctx context.Context)
}

type Configurable interface {
	Apply(*config.Configuration)
}

type Stopable interface {
	Stop()
}

// Func 将阻塞函数包装为后台运行的 Startable
type Func func(ctx context.Context)

func (f Func) Start(ctx context.Context) {
	go f(ctx)
}

// Start applies conf to every Configurable element, then starts them in order.
func Start(ctx context.Context, conf *config.Configuration, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok && conf != nil {
			configurable.Apply(conf)
		}
		ele.Start(ctx)
	}
}

// Stop stops the Stopable elements in reverse start order.
func Stop(elems ...Startable) {
	for i := len(elems) - 1; i >= 0; i-- {
		if stopable, ok := elems[i].(Stopable); ok {
			stopable.Stop()
		}
	}
}
