package token

import (
	"github.com/dumbtokens/launch-watcher/internal/application"
	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/bot"
	"github.com/dumbtokens/launch-watcher/internal/module/token/controller"
	"github.com/dumbtokens/launch-watcher/internal/module/token/listener"
	"github.com/dumbtokens/launch-watcher/internal/module/token/middleware"
	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type TokenRouter struct {
	App         *application.Application
	Controller  *controller.Controller
	RateLimiter *middleware.RateLimiter
	Logger      zerolog.Logger
}

var NewTokenModule = fx.Options(
	fx.Provide(repository.NewTokenRepository),

	// gateways
	fx.Provide(service.NewEtherscanService),
	fx.Provide(service.NewDexScreenerService),
	fx.Provide(service.NewCoinGeckoService),
	fx.Provide(service.NewChainbaseService),
	fx.Provide(service.NewPreviewService),
	fx.Provide(service.NewChainService),
	fx.Provide(service.NewTelegramService),

	fx.Provide(service.NewEnrichmentService),
	fx.Provide(service.NewReconciliationService),

	fx.Provide(func(amqp *shared.Amqp) service.LaunchPublisher {
		return amqp
	}),

	fx.Provide(listener.NewPairListener),
	fx.Provide(bot.NewCommandHandler),

	fx.Provide(controller.NewController),
	fx.Provide(middleware.NewRateLimiter),
	fx.Provide(NewTokenRouter),
)

func NewTokenRouter(app *application.Application, controller *controller.Controller, rateLimiter *middleware.RateLimiter, logger zerolog.Logger) *TokenRouter {
	return &TokenRouter{
		App:         app,
		Controller:  controller,
		RateLimiter: rateLimiter,
		Logger:      logger,
	}
}

func (_i *TokenRouter) RegisterTokenRoutes() {
	tokenController := _i.Controller.Token

	rateLimitMiddleware := middleware.RateLimitMiddleware(_i.RateLimiter, _i.Logger)

	_i.App.Router.GET("/token/gainers", rateLimitMiddleware(tokenController.GetTopGainers))
	_i.App.Router.GET("/token/report", rateLimitMiddleware(tokenController.GetDailyReport))
	_i.App.Router.GET("/token/address/{address}", rateLimitMiddleware(tokenController.GetToken))
}

func (_i *TokenRouter) RegisterHealthRoutes() {
	_i.App.Router.GET("/k8s/healthz", _i.Controller.Token.CheckHealthz)
}
