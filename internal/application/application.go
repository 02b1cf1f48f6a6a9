package application

import (
	"context"
	"net"
	"time"

	"github.com/dumbtokens/launch-watcher/utils/config"
	"github.com/fasthttp/router"
	"github.com/knadh/koanf/v2"
	"github.com/valyala/fasthttp"
)

type Application struct {
	AppName               string
	Network               string
	Hostname              string
	Port                  string
	Prefork               bool
	IdleTimeout           time.Duration
	EnablePrintRoutes     bool
	DisableStartupMessage bool
	Router                *router.Router
	s                     *fasthttp.Server
}

func NewApplication(cfg *koanf.Koanf) *Application {
	var network string
	if cfg.Get("app.network") != nil {
		network = cfg.String("app.network")
	}
	hostname, port := config.ParseAddress(cfg.String("app.host"))
	if hostname == "" {
		if network == "tcp6" {
			hostname = "[::1]"
		} else {
			hostname = "0.0.0.0"
		}
	}
	application := &Application{
		Network:               network,
		Hostname:              hostname,
		Port:                  port,
		AppName:               cfg.String("app.name"),
		Prefork:               cfg.Bool("app.prefork"),
		IdleTimeout:           cfg.Duration("app.idle-timeout"),
		EnablePrintRoutes:     cfg.Bool("app.print-routes"),
		DisableStartupMessage: true,
		Router:                router.New(),
	}

	return application
}

// HandlersCount 当前打开的连接数
func (a *Application) HandlersCount() int {
	if a.s == nil {
		return 0
	}
	return int(a.s.GetOpenConnectionsCount())
}

func (a *Application) Run() error {
	a.s = &fasthttp.Server{
		Name:            a.AppName,
		Handler:         a.Router.Handler,
		IdleTimeout:     a.IdleTimeout,
		ReadBufferSize:  4096 * 20,
		WriteBufferSize: 4096 * 20,
	}
	if a.Network != "" {
		ln, err := net.Listen(a.Network, a.Hostname+":"+a.Port)
		if err != nil {
			return err
		}
		return a.s.Serve(ln)
	}
	return a.s.ListenAndServe(a.Hostname + ":" + a.Port)
}

// Shutdown 等待处理中的请求完成后关闭
func (a *Application) Shutdown(ctx context.Context) error {
	if a.s == nil {
		return nil
	}
	return a.s.ShutdownWithContext(ctx)
}
