package shared

import (
	"os"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp/prefork"
)

// NewLogger 初始化全局 zerolog, 返回带 app 字段的 logger
func NewLogger(cfg *koanf.Koanf) zerolog.Logger {
	zerolog.TimeFieldFormat = cfg.String("logger.time-format")

	if cfg.Bool("logger.prettier") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	zerolog.SetGlobalLevel(zerolog.Level(int8(cfg.Int("logger.level"))))

	return log.Hook(PreforkHook{}).With().Str("app", cfg.String("app.name")).Logger()
}

// PreforkHook 子进程不输出日志
type PreforkHook struct{}

func (h PreforkHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if prefork.IsChild() {
		e.Discard()
	}
}
