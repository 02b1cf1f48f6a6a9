package bootstrap

import (
	"context"
	"errors"
	"flag"
	"os"
	"runtime"

	"github.com/dumbtokens/launch-watcher/internal/application"
	"github.com/dumbtokens/launch-watcher/internal/database"
	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/bot"
	"github.com/dumbtokens/launch-watcher/internal/module/token/listener"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/dumbtokens/launch-watcher/internal/router"
	"github.com/dumbtokens/launch-watcher/utils/config"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// function to start webserver
func Start(
	lifecycle fx.Lifecycle,
	cfg *koanf.Koanf,
	log zerolog.Logger,
	app *application.Application,
	router *router.Router,
	database *database.Database,
	amqp *shared.Amqp,
	redis *shared.RedisClient,
	chain service.ChainService,
	telegram service.TelegramService,
	pairListener *listener.PairListener,
	commandHandler *bot.CommandHandler,
) {
	// 监听和 bot 的生命周期不跟随 OnStart 的 ctx
	background, cancel := context.WithCancel(context.Background())

	lifecycle.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := config.Validate(cfg); err != nil {
					return err
				}

				router.Register()

				// Information message
				log.Info().Msg(app.AppName + " is running at the moment!")

				// Debug informations
				if !cfg.Bool("app.production") {
					prefork := "Enabled"
					procs := runtime.GOMAXPROCS(0)
					if !app.Prefork {
						procs = 1
						prefork = "Disabled"
					}

					log.Debug().Msgf("Hostname: %s", app.Hostname)
					log.Debug().Msgf("Port: %s", app.Port)
					log.Debug().Msgf("Prefork: %s", prefork)
					log.Debug().Msgf("Processes: %d", procs)
					log.Debug().Msgf("PID: %d", os.Getpid())
				}

				go func() {
					if err := app.Run(); err != nil {
						log.Error().Err(err).Msg("An unknown error occurred when to run server!")
					}
				}()

				if err := database.ConnectDatabase(); err != nil {
					return err
				}

				migrate := flag.Bool("migrate", false, "migrate the database")
				flag.Parse()

				// read flag -migrate to migrate the database
				if *migrate {
					if err := database.MigrateModels(); err != nil {
						return err
					}
				}
				log.Info().Msg("1- Connected the Database succesfully!")

				redis.Connect()
				log.Info().Msg("2- Connected the Redis succesfully!")

				if err := amqp.Connect(); err != nil {
					if !errors.Is(err, shared.ErrAmqpDisabled) {
						return err
					}
					log.Info().Msg("3- Amqp is disabled, skip")
				} else {
					log.Info().Msg("3- Connected the Amqp succesfully!")
				}

				if err := chain.Connect(ctx); err != nil {
					return err
				}
				log.Info().Msg("4- Connected the Ethereum node succesfully!")

				if err := pairListener.Start(background); err != nil {
					return err
				}

				if err := telegram.Connect(); err != nil {
					if !errors.Is(err, service.ErrBotNotConfigured) {
						return err
					}
					log.Warn().Msg("5- Telegram bot token is empty, notifications and commands are disabled")
					return nil
				}
				if err := commandHandler.Start(background); err != nil {
					return err
				}
				log.Info().Msg("5- Connected the Telegram bot succesfully!")

				return nil
			},
			OnStop: func(ctx context.Context) error {
				log.Info().Msg("Running cleanup tasks...")
				cancel()

				log.Info().Msg("1- Stop the Telegram bot")
				commandHandler.Stop()

				log.Info().Msg("2- Stop the PairCreated listener")
				pairListener.Stop()
				chain.Close()

				log.Info().Msg("3- Shutdown the server")
				if err := app.Shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("An unknown error occurred when to shutdown the server!")
				}

				log.Info().Msg("4- Shutdown the Amqp")
				if amqp != nil {
					amqp.Close()
				}

				log.Info().Msg("5- Shutdown the Database")
				database.ShutdownDatabase()

				log.Info().Msg("6- Shutdown the Redis")
				if redis != nil {
					redis.Close()
				}

				log.Info().Msgf("%s was successful shutdown.", app.AppName)
				log.Info().Msg("\u001b[96msee you again👋\u001b[0m")

				return nil
			},
		},
	)
}
