package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/dumbtokens/launch-watcher/internal/application"
	"github.com/dumbtokens/launch-watcher/internal/bootstrap"
	"github.com/dumbtokens/launch-watcher/internal/database"
	"github.com/dumbtokens/launch-watcher/internal/module/scheduler"
	"github.com/dumbtokens/launch-watcher/internal/module/token"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/router"
	fxzerolog "github.com/efectn/fx-zerolog"
	_ "go.uber.org/automaxprocs"
)

func main() {
	fx.New(
		/* provide patterns */
		// basic
		shared.NewSharedModule,
		scheduler.NewSchedulerModule,
		// application
		fx.Provide(application.NewApplication),
		// database
		fx.Provide(database.NewDatabase),
		// router
		fx.Provide(router.NewRouter),
		/* provide modules */
		token.NewTokenModule,
		// start aplication
		fx.Invoke(bootstrap.Start),
		// define logger
		fx.WithLogger(fxzerolog.Init()),
		fx.StartTimeout(2*time.Minute),
		// invoke scheduler tasks
		fx.Invoke(func(lifecycle fx.Lifecycle, s *scheduler.Scheduler) {
			lifecycle.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					s.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	).Run()
}
