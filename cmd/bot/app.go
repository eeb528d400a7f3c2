package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/correlation"
	"SignalSentinel/internal/dispatcher"
	"SignalSentinel/internal/ledger"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/predictor"
	"SignalSentinel/internal/quota"
	"SignalSentinel/internal/recorder"
	"SignalSentinel/internal/regime"
	"SignalSentinel/internal/scheduler"
	"SignalSentinel/internal/store"
)

const (
	correlationTTL = 30 * time.Minute
	prefillSamples = 20
)

// app holds every wired component.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Registry
	tunables   *config.TunablesStore
	rec        recorder.Recorder
	state      store.StateStore
	universe   *collector.Universe
	market     *collector.Collector
	regime     *regime.Tracker
	quota      *quota.Gate
	model      *predictor.LogisticModel
	ledger     *ledger.Ledger
	telegram   *notifier.TelegramNotifier
	sink       notifier.Multi
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler

	closers []func() error
}

// newApp builds the component graph. Nothing is started.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	tunables, err := config.NewTunablesStore(cfg.Tunables.Path)
	if err != nil {
		return nil, fmt.Errorf("init tunables: %w", err)
	}
	a.tunables = tunables

	a.rec = a.openRecorder()

	if err := a.openState(ctx); err != nil {
		a.close()
		return nil, err
	}

	opts := collector.ClientOptions{
		ProxyURL:          cfg.Proxy,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
		Burst:             cfg.Binance.Burst,
		OnError:           a.metrics.FetchError,
	}
	binance := collector.NewBinanceClient(cfg.Binance.BaseURL, opts)
	aggregatorOpts := opts
	aggregatorOpts.RequestsPerSecond, aggregatorOpts.Burst = 0.5, 2
	cmc := collector.NewCMCClient(cfg.CoinMarketCap.BaseURL, cfg.CoinMarketCap.APIKey, aggregatorOpts)
	gecko := collector.NewCoinGeckoClient(cfg.CoinGecko.BaseURL, aggregatorOpts)

	a.market = collector.NewCollector(binance)
	var ranks collector.RankSource
	if cfg.CoinMarketCap.APIKey != "" {
		ranks = cmc
	}
	a.universe = collector.NewUniverse(ranks, binance, cfg.CoinMarketCap.TopLimit, cfg.Scan.Symbols)

	if err := a.buildSink(); err != nil {
		a.close()
		return nil, err
	}

	a.regime = regime.NewTracker(
		[]regime.Source{regime.CoinGeckoSource{Client: gecko}, regime.GlobalMetricsSource{Client: cmc}},
		[]regime.Source{
			regime.GlobalMetricsSource{Client: cmc},
			regime.CoinGeckoSource{Client: gecko},
			regime.ListingsSource{Client: cmc, Limit: 20},
		},
		regime.Options{Store: a.state, Publisher: a.sink, OnReading: a.onReading},
	)

	a.quota, err = quota.NewGate(ctx, a.state, tunables)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init quota gate: %w", err)
	}

	a.model = predictor.NewLogisticModel(cfg.Predictor.MinSamples)
	if history, err := a.rec.LoadOutcomes(ctx, 0); err != nil {
		log.Warn().Err(err).Msg("could not load outcome history, estimator starts empty")
	} else {
		a.model.Load(history)
	}

	a.ledger = ledger.New(a.market, ledger.Options{
		Estimator: a.model,
		History:   a.rec,
		Publisher: a.sink,
		OnOutcome: a.metrics.TradeOutcome,
	})

	var advisor predictor.Advisor
	if cfg.Predictor.AdvisorURL != "" {
		advisor = predictor.NewHTTPAdvisor(cfg.Predictor.AdvisorURL, 10*time.Second)
	}

	a.dispatcher = dispatcher.New(dispatcher.Deps{
		Universe:    a.universe,
		Market:      a.market,
		Regime:      a.regime,
		Correlation: correlation.NewTracker(binance, cfg.Scan.ReferenceSymbol, correlationTTL),
		Tunables:    tunables,
		Quota:       a.quota,
		Ledger:      a.ledger,
		Sink:        a.sink,
		Recorder:    a.rec,
		Estimator:   a.model,
		Advisor:     advisor,
		Metrics:     a.metrics,
	}, dispatcher.Options{
		Reference:  cfg.Scan.ReferenceSymbol,
		Schedules:  cfg.Scan.Classes,
		Workers:    cfg.Scan.Workers,
		Pace:       cfg.Scan.Pace,
		MinSamples: cfg.Predictor.MinSamples,
	})

	a.scheduler = scheduler.NewScheduler(ctx, scheduler.Deps{
		Scanner:   a.dispatcher,
		Trades:    a.ledger,
		Regime:    a.regime,
		Quota:     a.quota,
		Universe:  a.universe,
		Trainer:   a.model,
		Outcomes:  a.rec,
		Gauges:    a.metrics,
		Schedules: cfg.Scan.Classes,
	})
	return a, nil
}

func (a *app) openRecorder() recorder.Recorder {
	if a.cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(a.cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	a.closers = append(a.closers, sr.Close)
	return sr
}

// openState prefers Redis when configured and reachable, else the state directory.
func (a *app) openState(ctx context.Context) error {
	if addr := a.cfg.Redis.Addr; addr != "" {
		rs := store.NewRedisStore(store.RedisConfig{
			Addr:     addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Prefix:   a.cfg.Redis.KeyPrefix,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err == nil {
			log.Info().Str("addr", addr).Msg("state store: redis")
			a.state = rs
			a.closers = append(a.closers, rs.Close)
			return nil
		}
		_ = rs.Close()
		log.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, falling back to file state")
	}
	fs, err := store.NewFileStore(a.cfg.State.Dir)
	if err != nil {
		return fmt.Errorf("init state store: %w", err)
	}
	log.Info().Str("dir", a.cfg.State.Dir).Msg("state store: file")
	a.state = fs
	return nil
}

func (a *app) buildSink() error {
	a.sink = notifier.Multi{notifier.LogSink{}}
	if a.cfg.Telegram.BotToken != "" {
		tg, err := notifier.NewTelegramNotifier(notifier.TelegramOptions{
			Token:    a.cfg.Telegram.BotToken,
			ChatID:   a.cfg.Telegram.ChatID,
			ProxyURL: a.cfg.Proxy,
		})
		if err != nil {
			return fmt.Errorf("init telegram: %w", err)
		}
		a.telegram = tg
		a.sink = append(a.sink, tg)
	}
	if len(a.cfg.Kafka.Brokers) > 0 {
		kp, err := notifier.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		a.sink = append(a.sink, kp)
		a.closers = append(a.closers, kp.Close)
	}
	return nil
}

func (a *app) onReading(rd model.DominanceReading) {
	a.metrics.RegimeReading(rd)
	if err := a.rec.RecordRegime(context.Background(), rd); err != nil {
		log.Warn().Err(err).Msg("record regime reading")
	}
}

// warmUp restores persisted state and primes the symbol list and the regime.
func (a *app) warmUp(ctx context.Context, prefill bool) {
	if err := a.regime.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("regime state not restored")
	}
	if err := a.universe.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial universe refresh failed")
	}
	if prefill {
		a.regime.Prefill(ctx, prefillSamples, time.Second)
	} else if _, err := a.regime.SampleFast(ctx); err != nil {
		log.Warn().Err(err).Msg("fast regime sample failed")
	}
	a.regime.RefreshSlow(ctx)
	if _, err := a.model.Retrain(ctx); err != nil {
		log.Warn().Err(err).Msg("initial estimator training failed")
	}
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("close")
	}
}
