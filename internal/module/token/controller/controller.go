package controller

import (
	"github.com/dumbtokens/launch-watcher/internal/module/token/repository"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

type Controller struct {
	Token TokenController
}

func NewController(
	cfg *koanf.Koanf,
	reconciliation service.ReconciliationService,
	repo repository.TokenRepository,
	logger zerolog.Logger) *Controller {
	return &Controller{
		Token: NewTokenController(reconciliation, repo, cfg.String("telegram.channel-username"), logger),
	}
}
