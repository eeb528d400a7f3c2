package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/dispatcher"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/predictor"
)

// Job specs, in the six-field (seconds) format.
const (
	specScanTick = "@every 30s"
	specPoll     = "@every 1m"
	specFast     = "@every 1m"
	specSlow     = "@every 5m"
	specHourly   = "0 0 * * * *"
	specDaily    = "0 0 0 * * *"
	specUniverse = "@every 6h"
)

// statsWindow bounds the outcomes loaded for /stats.
const statsWindow = 1000

type Scanner interface {
	Scan(ctx context.Context, class model.TradeClass) (dispatcher.ScanReport, error)
}

type TradeBook interface {
	Poll(ctx context.Context)
	Active() []model.ActiveTrade
	Len() int
}

type RegimeMonitor interface {
	SampleFast(ctx context.Context) (model.RegimeSignal, error)
	RefreshSlow(ctx context.Context) model.MacroRegime
	Macro(ctx context.Context) model.MacroRegime
	Signal() model.RegimeSignal
}

type QuotaKeeper interface {
	ResetHourly(ctx context.Context)
	ResetDaily(ctx context.Context)
	State() model.QuotaState
}

// Trainer is the estimator retrained every hour.
type Trainer interface {
	Retrain(ctx context.Context) (bool, error)
	LastTrained() time.Time
	Samples() int
}

type UniverseRefresher interface {
	Refresh(ctx context.Context) error
	Symbols() []string
}

type OutcomeSource interface {
	LoadOutcomes(ctx context.Context, limit int) ([]model.OutcomeRecord, error)
}

type Gauges interface {
	SetActiveTrades(n int)
}

// Deps are the components driven by the scheduler. Trainer, Outcomes and
// Gauges are optional.
type Deps struct {
	Scanner   Scanner
	Trades    TradeBook
	Regime    RegimeMonitor
	Quota     QuotaKeeper
	Universe  UniverseRefresher
	Trainer   Trainer
	Outcomes  OutcomeSource
	Gauges    Gauges
	Schedules map[model.TradeClass]config.ClassSchedule
}

// Scheduler owns every periodic task and serves operator commands.
type Scheduler struct {
	cron    *cron.Cron
	d       Deps
	ctx     context.Context
	now     func() time.Time
	started time.Time

	mu       sync.Mutex
	lastScan map[model.TradeClass]time.Time
}

// NewScheduler creates a scheduler. Jobs run with ctx and stop when it is cancelled.
func NewScheduler(ctx context.Context, d Deps) *Scheduler {
	if d.Schedules == nil {
		d.Schedules = config.DefaultSchedules()
	}
	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		d:        d,
		ctx:      ctx,
		now:      time.Now,
		started:  time.Now(),
		lastScan: make(map[model.TradeClass]time.Time),
	}
}

// RegisterAll registers every periodic task.
func (s *Scheduler) RegisterAll() error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"scan tick", specScanTick, s.scanTick},
		{"ledger poll", specPoll, s.pollTrades},
		{"fast regime", specFast, s.sampleFast},
		{"slow regime", specSlow, s.refreshSlow},
		{"hourly reset", specHourly, s.hourly},
		{"daily reset", specDaily, s.daily},
		{"universe refresh", specUniverse, s.refreshUniverse},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// due reports whether class has not been scanned within its cadence and marks it.
func (s *Scheduler) due(class model.TradeClass, every time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if last, ok := s.lastScan[class]; ok && now.Sub(last) < every {
		return false
	}
	s.lastScan[class] = now
	return true
}

func (s *Scheduler) scanTick() {
	for _, class := range model.Classes {
		sched, ok := s.d.Schedules[class]
		if !ok || !s.due(class, sched.Every) {
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		if _, err := s.RunScan(s.ctx, class); err != nil {
			log.Error().Err(err).Str("class", string(class)).Msg("scan failed")
		}
	}
}

// RunScan scans one class immediately.
func (s *Scheduler) RunScan(ctx context.Context, class model.TradeClass) (dispatcher.ScanReport, error) {
	report, err := s.d.Scanner.Scan(ctx, class)
	s.mu.Lock()
	s.lastScan[class] = s.now()
	s.mu.Unlock()
	s.updateGauges()
	return report, err
}

// ScanAll scans every class once, shortest horizon first.
func (s *Scheduler) ScanAll(ctx context.Context) {
	for _, class := range model.Classes {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunScan(ctx, class); err != nil {
			log.Error().Err(err).Str("class", string(class)).Msg("scan failed")
		}
	}
}

func (s *Scheduler) pollTrades() {
	s.d.Trades.Poll(s.ctx)
	s.updateGauges()
}

func (s *Scheduler) updateGauges() {
	if s.d.Gauges != nil {
		s.d.Gauges.SetActiveTrades(s.d.Trades.Len())
	}
}

func (s *Scheduler) sampleFast() {
	if _, err := s.d.Regime.SampleFast(s.ctx); err != nil {
		log.Warn().Err(err).Msg("fast regime sample skipped")
	}
}

func (s *Scheduler) refreshSlow() {
	s.d.Regime.RefreshSlow(s.ctx)
}

func (s *Scheduler) hourly() {
	s.d.Quota.ResetHourly(s.ctx)
	if s.d.Trainer == nil {
		return
	}
	if _, err := s.d.Trainer.Retrain(s.ctx); err != nil {
		log.Error().Err(err).Msg("estimator retrain failed")
	}
}

func (s *Scheduler) daily() {
	s.d.Quota.ResetDaily(s.ctx)
	log.Info().Msg("daily quota reset")
}

func (s *Scheduler) refreshUniverse() {
	if err := s.d.Universe.Refresh(s.ctx); err != nil {
		log.Warn().Err(err).Msg("universe refresh failed, keeping previous list")
	}
}

// Active returns the open trades.
func (s *Scheduler) Active() []model.ActiveTrade { return s.d.Trades.Active() }

// Quota returns the quota bookkeeping.
func (s *Scheduler) Quota() model.QuotaState { return s.d.Quota.State() }

// Regime returns the cached macro regime and the latest fast signal.
func (s *Scheduler) Regime(ctx context.Context) (model.MacroRegime, model.RegimeSignal) {
	return s.d.Regime.Macro(ctx), s.d.Regime.Signal()
}

// Stats aggregates recorded outcomes.
func (s *Scheduler) Stats(ctx context.Context) (predictor.Stats, error) {
	var lastTrained time.Time
	if s.d.Trainer != nil {
		lastTrained = s.d.Trainer.LastTrained()
	}
	if s.d.Outcomes == nil {
		return predictor.ComputeStats(nil, lastTrained), nil
	}
	outcomes, err := s.d.Outcomes.LoadOutcomes(ctx, statsWindow)
	if err != nil {
		return predictor.Stats{}, fmt.Errorf("load outcomes: %w", err)
	}
	return predictor.ComputeStats(outcomes, lastTrained), nil
}

// Status returns the operator overview.
func (s *Scheduler) Status(ctx context.Context) notifier.Status {
	st := notifier.Status{
		Uptime:       s.now().Sub(s.started),
		Symbols:      len(s.d.Universe.Symbols()),
		ActiveTrades: s.d.Trades.Len(),
		Regime:       s.d.Regime.Macro(ctx).Category,
		LastScans:    make(map[model.TradeClass]time.Time),
	}
	if s.d.Trainer != nil {
		st.Samples = s.d.Trainer.Samples()
	}
	s.mu.Lock()
	for k, v := range s.lastScan {
		st.LastScans[k] = v
	}
	s.mu.Unlock()
	return st
}

const helpText = "Available commands:\n" +
	"/status overview\n" +
	"/active open trades\n" +
	"/stats performance\n" +
	"/regime market regime\n" +
	"/quota today's emissions\n" +
	"/scan &lt;scalp|day|swing&gt; scan now"

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// strip a "@botname" suffix
	name, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")

	switch name {
	case "/status", "/start":
		return notifier.FormatStatus(s.Status(ctx))
	case "/active":
		return notifier.FormatActive(s.Active())
	case "/stats":
		stats, err := s.Stats(ctx)
		if err != nil {
			log.Error().Err(err).Msg("stats command")
			return "❌ Stats unavailable"
		}
		return notifier.FormatStats(stats)
	case "/regime":
		macro, fast := s.Regime(ctx)
		return notifier.FormatRegime(&macro, &fast)
	case "/quota":
		return notifier.FormatQuota(s.Quota())
	case "/scan":
		if len(fields) < 2 {
			return "Usage: /scan &lt;scalp|day|swing&gt;"
		}
		class, err := model.ParseClass(fields[1])
		if err != nil {
			return "❌ " + err.Error()
		}
		report, err := s.RunScan(ctx, class)
		if err != nil {
			return fmt.Sprintf("❌ %s scan failed: %v", class, err)
		}
		return notifier.FormatScanReport(report)
	default:
		return helpText
	}
}

// cronLogger routes cron's own logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	log.Debug().Str("component", "cron").Fields(kv).Msg(msg)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	log.Error().Str("component", "cron").Err(err).Fields(kv).Msg(msg)
}
