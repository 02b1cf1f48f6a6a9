package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

const (
	JobInitialPrice = "initial_price_backfill"
	JobRugPull      = "rug_pull_check"
	JobTopGainers   = "top_gainers"
	JobDailyReport  = "daily_report"

	lockPrefix = "scheduler:"
)

// Locker 由 shared.RedisClient 实现
type Locker interface {
	AcquireLock(lockKey string, ttl time.Duration) (string, bool)
	ReleaseLock(lockKey string, token string)
}

// Alerter 由 shared.SlackAlerter 实现
type Alerter interface {
	HandleErrorWithThrottling(key string, errorMsg string)
}

// Scheduler 定时执行对账任务, 同一任务通过 redis 锁保证同时只有一个实例在执行
type Scheduler struct {
	Reconciliation service.ReconciliationService
	Telegram       service.TelegramService
	Logger         zerolog.Logger

	locker  Locker
	alerter Alerter
	channel string

	initialPriceInterval time.Duration
	rugPullInterval      time.Duration
	dailyHour            int
	dailyMinute          int

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg *koanf.Koanf, reconciliation service.ReconciliationService, telegram service.TelegramService, redisClient *shared.RedisClient, alerter *shared.SlackAlerter, logger zerolog.Logger) *Scheduler {
	return NewSchedulerWithLocker(cfg, reconciliation, telegram, redisClient, alerter, logger)
}

func NewSchedulerWithLocker(cfg *koanf.Koanf, reconciliation service.ReconciliationService, telegram service.TelegramService, locker Locker, alerter Alerter, logger zerolog.Logger) *Scheduler {
	hour, minute, err := ParseClock(cfg.String("scheduler.daily-report-time"))
	if err != nil {
		logger.Warn().Err(err).Msg("invalid scheduler.daily-report-time, using 23:59")
		hour, minute = 23, 59
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Reconciliation:       reconciliation,
		Telegram:             telegram,
		Logger:               logger.With().Str("component", "scheduler").Logger(),
		locker:               locker,
		alerter:              alerter,
		channel:              cfg.String("telegram.channel-username"),
		initialPriceInterval: positive(cfg.Duration("scheduler.initial-price-interval"), 3*time.Minute),
		rugPullInterval:      positive(cfg.Duration("scheduler.rug-pull-interval"), 30*time.Minute),
		dailyHour:            hour,
		dailyMinute:          minute,
		now:                  time.Now,
		ctx:                  ctx,
		cancel:               cancel,
	}
}

func positive(d time.Duration, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// ParseClock 解析 "HH:MM"
func ParseClock(value string) (int, int, error) {
	hourText, minuteText, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid clock %q", value)
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

// NextHourlyRun 下一个整点, 跳过 0 点
func NextHourlyRun(now time.Time) time.Time {
	year, month, day := now.Date()
	next := time.Date(year, month, day, now.Hour()+1, 0, 0, 0, now.Location())
	if next.Hour() == 0 {
		next = next.Add(time.Hour)
	}
	return next
}

// NextDailyRun 下一次 hour:minute
func NextDailyRun(now time.Time, hour int, minute int) time.Time {
	year, month, day := now.Date()
	next := time.Date(year, month, day, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(year, month, day+1, hour, minute, 0, 0, now.Location())
	}
	return next
}

// RunLocked 获取锁后执行 fn, 未获取到锁时跳过本次执行
func (s *Scheduler) RunLocked(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) bool {
	return s.runLocked(ctx, name, ttl, true, fn)
}

// RunOnce 与 RunLocked 相同, 但执行完不释放锁, 锁在 ttl 后过期。
// 定点任务用它保证同一时刻只有一个实例发送
func (s *Scheduler) RunOnce(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) bool {
	return s.runLocked(ctx, name, ttl, false, fn)
}

func (s *Scheduler) runLocked(ctx context.Context, name string, ttl time.Duration, release bool, fn func(context.Context) error) bool {
	lockKey := lockPrefix + name
	token, ok := s.locker.AcquireLock(lockKey, ttl)
	if !ok {
		s.Logger.Debug().Str("job", name).Msg("job is running elsewhere, skip")
		return false
	}
	if release {
		defer s.locker.ReleaseLock(lockKey, token)
	}

	ctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.Logger.Error().Err(err).Str("job", name).Msgf("处理 %s 失败", name)
		if s.alerter != nil {
			s.alerter.HandleErrorWithThrottling(name, err.Error())
		}
	} else {
		s.Logger.Info().Str("job", name).Msgf("处理 %s 成功", name)
	}
	return true
}

func (s *Scheduler) every(name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunLocked(s.ctx, name, interval, fn)
		}
	}
}

func (s *Scheduler) at(name string, next func(time.Time) time.Time, ttl time.Duration, fn func(context.Context) error) {
	for {
		now := s.now()
		wait := next(now).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(s.ctx, name, ttl, fn)
		}
	}
}

// Start 启动全部定时任务
func (s *Scheduler) Start() {
	jobs := []func(){
		s.StartInitialPriceBackfill,
		s.StartRugPullCheck,
		s.StartTopGainers,
		s.StartDailyReport,
	}
	s.wg.Add(len(jobs))
	for _, job := range jobs {
		job := job
		go func() {
			defer s.wg.Done()
			job()
		}()
	}
}

// StartInitialPriceBackfill 每 3 分钟补齐初始价格
func (s *Scheduler) StartInitialPriceBackfill() {
	s.every(JobInitialPrice, s.initialPriceInterval, s.Reconciliation.CheckAndFillInitialTokenPrice)
}

// StartRugPullCheck 每 30 分钟检查 rug pull
func (s *Scheduler) StartRugPullCheck() {
	s.every(JobRugPull, s.rugPullInterval, s.Reconciliation.CheckRugPulls)
}

func (s *Scheduler) StartTopGainers() {
	s.at(JobTopGainers, NextHourlyRun, 10*time.Minute, s.PostTopGainers)
}

func (s *Scheduler) StartDailyReport() {
	s.at(JobDailyReport, func(now time.Time) time.Time {
		return NextDailyRun(now, s.dailyHour, s.dailyMinute)
	}, 10*time.Minute, s.PostDailyReport)
}

// PostTopGainers 不足 3 个时不发送
func (s *Scheduler) PostTopGainers(ctx context.Context) error {
	gainers, err := s.Reconciliation.GetTopGainers(ctx)
	if err != nil {
		return err
	}
	if gainers.Empty() {
		s.Logger.Info().Int("gainers", len(gainers)).Msg("not enough gainers, skip posting")
		return nil
	}
	return s.Telegram.SendMessageToChannel(ctx, service.FormTopGainersMessage(gainers, s.channel))
}

func (s *Scheduler) PostDailyReport(ctx context.Context) error {
	report, err := s.Reconciliation.GetDailyReportData(ctx)
	if err != nil {
		return err
	}
	return s.Telegram.SendMessageToChannel(ctx, service.FormDailyReport(*report, s.channel))
}

// Stop 停止所有任务并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
