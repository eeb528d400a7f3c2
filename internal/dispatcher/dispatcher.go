package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/ledger"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/predictor"
	"SignalSentinel/internal/strategy"
)

const (
	refBars     = 4
	coinBars    = 3
	refCacheTTL = 5 * time.Minute
)

// Pre-filter reasons counted next to the scorer's rejection codes.
const (
	SkipVolume        = "min_volume_24h"
	SkipOpenInterest  = "min_open_interest"
	SkipInsufficient  = "insufficient_data"
	SkipFetchFailed   = "fetch_failed"
	SkipRegime        = "regime_block"
	SkipRefFalling    = "reference_falling"
	SkipRefRising     = "reference_rising"
	SkipBTCOnly       = "btc_long_only"
	SkipQuota         = "quota"
	SkipProbability   = "ml_probability"
	SkipAlreadyActive = "already_active"
	SkipRiskGrid      = "risk_degenerate"
	SkipPanic         = "panic"
)

// SymbolSource lists the symbols eligible for scanning.
type SymbolSource interface {
	Symbols() []string
}

// MarketData fetches per-instrument snapshots and reference moves.
type MarketData interface {
	Snapshot(ctx context.Context, symbol, interval string, limit int) (*model.Snapshot, error)
	ChangePct(ctx context.Context, symbol, interval string, bars int) (float64, error)
}

// RegimeView exposes the slow macro regime and the fast scalp bias.
type RegimeView interface {
	Macro(ctx context.Context) model.MacroRegime
	Signal() model.RegimeSignal
}

type Correlator interface {
	Correlation(ctx context.Context, symbol, interval string) float64
}

type TunablesSource interface {
	Get() *config.Tunables
}

// QuotaGate decides and records emissions per class and tier.
type QuotaGate interface {
	Allows(class model.TradeClass, tier model.Tier) bool
	RecordSend(ctx context.Context, class model.TradeClass, tier model.Tier)
	ResetIfNewDay(ctx context.Context) bool
}

// TradeTracker is the open-trade ledger.
type TradeTracker interface {
	Has(symbol string) bool
	Add(sig *model.Signal) error
}

type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig *model.Signal) error
}

type SignalRecorder interface {
	RecordSignal(ctx context.Context, sig *model.Signal) error
}

// Observer receives scan metrics.
type Observer interface {
	ObserveScan(class model.TradeClass, d time.Duration)
	SignalEmitted(class model.TradeClass, tier model.Tier)
	Rejected(reason string)
	QuotaBlocked(class model.TradeClass, tier model.Tier)
}

// Deps are the collaborators of a Dispatcher. Estimator, Advisor, Recorder and
// Metrics are optional.
type Deps struct {
	Universe    SymbolSource
	Market      MarketData
	Regime      RegimeView
	Correlation Correlator
	Tunables    TunablesSource
	Quota       QuotaGate
	Ledger      TradeTracker
	Sink        SignalPublisher
	Recorder    SignalRecorder
	Estimator   predictor.Estimator
	Advisor     predictor.Advisor
	Metrics     Observer
}

// Options tune the scan loop.
type Options struct {
	Reference  string
	Schedules  map[model.TradeClass]config.ClassSchedule
	Workers    int
	Pace       time.Duration // minimum spacing between symbol analyses; 0 disables pacing
	MinSamples int
}

// ScanReport summarizes one scan of one class.
type ScanReport struct {
	Class      model.TradeClass   `json:"class"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
	Skipped    string             `json:"skipped,omitempty"`
	Scanned    int                `json:"scanned"`
	Candidates int                `json:"candidates"`
	Sent       map[model.Tier]int `json:"sent"`
	Rejections map[string]int     `json:"rejections"`
	Signals    []*model.Signal    `json:"signals"`
	RefChange  float64            `json:"ref_change"`
}

// Total is the number of signals emitted.
func (r *ScanReport) Total() int {
	n := 0
	for _, v := range r.Sent {
		n += v
	}
	return n
}

func (r *ScanReport) reject(reason string) { r.Rejections[reason]++ }

type refEntry struct {
	change float64
	at     time.Time
}

// Dispatcher runs the scan pipeline: analyze the universe, filter on regime and
// correlation, rank, then emit through the quota and probability gates.
type Dispatcher struct {
	d    Deps
	opts Options
	now  func() time.Time

	refMu    sync.Mutex
	refCache map[string]refEntry

	// emitMu serializes the quota check and record of concurrent scans of one class.
	emitMu map[model.TradeClass]*sync.Mutex
}

func New(d Deps, opts Options) *Dispatcher {
	if opts.Reference == "" {
		opts.Reference = "BTCUSDT"
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = predictor.MinSamples
	}
	if opts.Schedules == nil {
		opts.Schedules = config.DefaultSchedules()
	}
	emitMu := make(map[model.TradeClass]*sync.Mutex, len(model.Classes))
	for _, c := range model.Classes {
		emitMu[c] = &sync.Mutex{}
	}
	return &Dispatcher{d: d, opts: opts, now: time.Now, refCache: make(map[string]refEntry), emitMu: emitMu}
}

// gates are the directional permissions of one scan.
type gates struct {
	allowLong  bool
	allowShort bool
	scalpBias  model.Bias
	macro      model.MacroRegime
}

// Scan runs one full scan of class. Failures of individual symbols never abort
// the batch; the error return is reserved for an unknown class or cancellation.
func (s *Dispatcher) Scan(ctx context.Context, class model.TradeClass) (ScanReport, error) {
	report := ScanReport{
		Class:      class,
		StartedAt:  s.now(),
		Sent:       make(map[model.Tier]int),
		Rejections: make(map[string]int),
	}
	err := s.scan(ctx, class, &report)
	report.Duration = s.now().Sub(report.StartedAt)
	if s.d.Metrics != nil && err == nil && report.Skipped == "" {
		s.d.Metrics.ObserveScan(class, report.Duration)
	}
	return report, err
}

func (s *Dispatcher) scan(ctx context.Context, class model.TradeClass, report *ScanReport) error {
	sched, ok := s.opts.Schedules[class]
	if !ok {
		return fmt.Errorf("no schedule for class %q", class)
	}

	symbols := s.d.Universe.Symbols()
	if len(symbols) == 0 {
		log.Warn().Str("class", string(class)).Msg("no valid symbols cached, scan skipped")
		report.Skipped = "empty_universe"
		return nil
	}

	refChange := s.refChange(ctx, sched.Interval)
	report.RefChange = refChange

	g := s.gates(ctx, class)
	if g.scalpBias == model.BiasBlocked {
		report.Skipped = "regime_blocked"
		return nil
	}
	log.Info().Str("class", string(class)).Int("symbols", len(symbols)).Str("regime", string(g.macro.Category)).
		Float64("ref_change", refChange).Bool("allow_long", g.allowLong).Bool("allow_short", g.allowShort).
		Msg("starting scan")

	tun := s.d.Tunables.Get()
	raw := s.analyzeAll(ctx, symbols, class, sched, refChange, g.macro, tun, report)
	if err := ctx.Err(); err != nil {
		return err
	}

	var candidates []*model.Signal
	for _, sig := range raw {
		if reason := s.postFilter(sig, class, g, refChange, tun); reason != "" {
			log.Debug().Str("symbol", sig.Symbol).Str("direction", string(sig.Direction)).Str("reason", reason).Msg("candidate filtered")
			s.rejected(report, reason)
			continue
		}
		sig.Regime = &model.RegimeContext{
			Category:  g.macro.Category,
			BTC:       g.macro.BTC,
			USDT:      g.macro.USDT,
			Estimated: g.macro.Estimated,
			RefChange: refChange,
		}
		if class == model.Scalp {
			sig.Regime.ScalpBias = g.scalpBias
		}
		candidates = append(candidates, sig)
	}
	report.Candidates = len(candidates)
	Rank(candidates)

	s.d.Quota.ResetIfNewDay(ctx)
	s.emit(ctx, class, candidates, tun, report)

	log.Info().Str("class", string(class)).Int("scanned", report.Scanned).Int("candidates", report.Candidates).
		Int("sent", report.Total()).Int("a", report.Sent[model.TierA]).Int("b", report.Sent[model.TierB]).
		Int("c", report.Sent[model.TierC]).Msg("scan complete")
	return nil
}

// Rank orders candidates by tier priority, then score, both descending.
func Rank(sigs []*model.Signal) {
	sort.SliceStable(sigs, func(i, j int) bool {
		pi, pj := sigs[i].Tier.Priority(), sigs[j].Tier.Priority()
		if pi != pj {
			return pi > pj
		}
		return sigs[i].Score > sigs[j].Score
	})
}

func (s *Dispatcher) refChange(ctx context.Context, interval string) float64 {
	s.refMu.Lock()
	e, ok := s.refCache[interval]
	s.refMu.Unlock()
	if ok && s.now().Sub(e.at) < refCacheTTL {
		return e.change
	}
	change, err := s.d.Market.ChangePct(ctx, s.opts.Reference, interval, refBars)
	if err != nil {
		log.Warn().Err(err).Str("reference", s.opts.Reference).Msg("reference change unavailable")
		if ok {
			return e.change
		}
		return 0
	}
	s.refMu.Lock()
	s.refCache[interval] = refEntry{change: change, at: s.now()}
	s.refMu.Unlock()
	return change
}

func (s *Dispatcher) gates(ctx context.Context, class model.TradeClass) gates {
	macro := s.d.Regime.Macro(ctx)
	g := gates{allowLong: macro.AllowLong, allowShort: macro.AllowShort, macro: macro}
	if class != model.Scalp {
		return g
	}
	fast := s.d.Regime.Signal()
	g.scalpBias = fast.Bias
	log.Info().Int("samples", fast.SampleCount).Str("bias", string(fast.Bias)).Str("reason", fast.Reason).Msg("scalp regime")
	if fast.Bias == model.BiasBlocked {
		log.Warn().Str("reason", fast.Reason).Msg("fast regime blocked all scalps")
		return g
	}
	if fast.SampleCount < 3 {
		return g
	}
	switch fast.Bias {
	case model.BiasShortOK:
		g.allowLong, g.allowShort = false, true
	case model.BiasLongOK:
		g.allowLong = true
		if fast.USDTVelocity < 0.005 {
			g.allowShort = false
		}
	case model.BiasBTCLongOnly:
		g.allowLong, g.allowShort = true, false
	}
	return g
}

func (s *Dispatcher) analyzeAll(ctx context.Context, symbols []string, class model.TradeClass, sched config.ClassSchedule,
	refChange float64, macro model.MacroRegime, tun *config.Tunables, report *ScanReport) []*model.Signal {

	var limiter *rate.Limiter
	if s.opts.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(s.opts.Pace), 1)
	}

	var (
		mu  sync.Mutex
		out []*model.Signal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, symbol := range symbols {
		if s.d.Ledger.Has(symbol) {
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("symbol", symbol).Str("class", string(class)).
						Interface("panic", r).Msg("analysis panicked")
					mu.Lock()
					report.Scanned++
					s.rejected(report, SkipPanic)
					mu.Unlock()
				}
			}()
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
			}
			sig, reason := s.analyze(gctx, symbol, class, sched, refChange, macro, tun)
			mu.Lock()
			defer mu.Unlock()
			report.Scanned++
			if reason != "" {
				s.rejected(report, reason)
				return nil
			}
			out = append(out, sig)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// analyze runs the per-symbol pipeline. It returns either a graded signal or the
// reason it was dropped.
func (s *Dispatcher) analyze(ctx context.Context, symbol string, class model.TradeClass, sched config.ClassSchedule,
	refChange float64, macro model.MacroRegime, tun *config.Tunables) (*model.Signal, string) {

	snap, err := s.d.Market.Snapshot(ctx, symbol, sched.Interval, sched.Candles)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("analysis failed")
		return nil, SkipFetchFailed
	}
	if snap.Ticker.QuoteVolume < tun.MinVolume24h {
		return nil, SkipVolume
	}
	if snap.HasOI && snap.OpenInterestUSD() < tun.MinOpenInterest {
		return nil, SkipOpenInterest
	}

	ind, err := calculator.Compute(snap.Candles)
	if err != nil {
		if !errors.Is(err, calculator.ErrInsufficientData) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("indicator computation failed")
		}
		return nil, SkipInsufficient
	}
	coinChange := model.ChangePct(snap.Candles, coinBars)

	mlProb := 0.5
	if s.d.Estimator != nil {
		provisional := predictor.Features(predictor.FeatureInput{
			Ind:        ind,
			Funding:    snap.FundingRate,
			Imbalance:  snap.Imbalance,
			Outperform: coinChange - refChange,
			Score:      50,
			Direction:  model.Long,
			Class:      class,
		})
		mlProb = s.d.Estimator.Estimate(ctx, provisional)
	}

	corr := s.d.Correlation.Correlation(ctx, symbol, sched.Interval)
	sig, rej := strategy.Evaluate(&strategy.Input{
		Symbol:      symbol,
		Class:       class,
		Ind:         ind,
		Funding:     snap.FundingRate,
		Imbalance:   snap.Imbalance,
		TakerRatio:  snap.TakerRatio,
		RefChange:   refChange,
		CoinChange:  coinChange,
		MLProb:      mlProb,
		Macro:       &macro,
		Correlation: corr,
		Now:         s.now(),
	}, tun)
	if rej != nil {
		return nil, string(rej.Reason)
	}
	sig.Features = predictor.SignalFeatures(sig, ind)
	return sig, ""
}

// postFilter applies the regime and correlation rules to a graded candidate and
// may demote or boost it in place. A non-empty result drops the candidate.
func (s *Dispatcher) postFilter(sig *model.Signal, class model.TradeClass, g gates, refChange float64, tun *config.Tunables) string {
	long := sig.Direction == model.Long
	if (long && !g.allowLong) || (!long && !g.allowShort) {
		return SkipRegime
	}
	if long && sig.Correlation > 0.8 && refChange < -0.5 {
		return SkipRefFalling
	}
	if !long && sig.Correlation < -0.5 && refChange > 0.5 {
		return SkipRefRising
	}

	if long && isAlt(sig.Symbol) {
		fastOnly := class == model.Scalp && g.scalpBias == model.BiasBTCLongOnly
		macroOnly := g.macro.Category == model.RiskOnBTC && sig.Correlation > 0.75
		if fastOnly || macroOnly {
			switch sig.Tier {
			case model.TierA:
				if !demote(sig, model.TierB, tun) {
					return SkipRiskGrid
				}
				log.Debug().Str("symbol", sig.Symbol).Msg("reference dominance: demoted A+ to B+")
			case model.TierB:
				if fastOnly {
					return SkipBTCOnly
				}
			}
		}
	}

	if long && g.macro.Category == model.RiskOnAlt && sig.Correlation < 0.4 {
		sig.Score = min(100, sig.Score+5)
	}
	return ""
}

// demote regrades sig and rebuilds its targets and leverage for the new tier. It
// reports false when the new ladder collapses on the price grid.
func demote(sig *model.Signal, tier model.Tier, tun *config.Tunables) bool {
	sig.Tier = tier
	sig.Targets = strategy.Targets(sig.Entry, sig.Stop, sig.Direction, tun.Ladder(tier, sig.Class))
	sig.Leverage = tun.LeverageFor(tier, sig.Class)
	return strategy.ValidRisk(sig.Entry, sig.Stop, sig.Direction, sig.Targets)
}

func isAlt(symbol string) bool {
	switch baseOf(symbol) {
	case "BTC", "ETH":
		return false
	}
	return true
}

func baseOf(symbol string) string {
	if n := len(symbol); n > 4 && symbol[n-4:] == "USDT" {
		return symbol[:n-4]
	}
	return symbol
}

// emit walks the ranked candidates through the quota and probability gates.
func (s *Dispatcher) emit(ctx context.Context, class model.TradeClass, candidates []*model.Signal, tun *config.Tunables, report *ScanReport) {
	if mu, ok := s.emitMu[class]; ok {
		mu.Lock()
		defer mu.Unlock()
	}
	est := s.d.Estimator
	trained := est != nil && est.Samples() >= s.opts.MinSamples

	for _, sig := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !s.d.Quota.Allows(class, sig.Tier) {
			log.Debug().Str("symbol", sig.Symbol).Str("tier", string(sig.Tier)).Str("class", string(class)).Msg("quota blocked")
			report.reject(SkipQuota)
			if s.d.Metrics != nil {
				s.d.Metrics.QuotaBlocked(class, sig.Tier)
			}
			continue
		}

		if trained {
			p := predictor.Probability(ctx, est, s.d.Advisor, sig.Features)
			sig.Regime.Confidence = p
			if sig.Tier != model.TierA && p < tun.MinProbability[sig.Tier] {
				log.Debug().Str("symbol", sig.Symbol).Str("tier", string(sig.Tier)).Float64("probability", p).Msg("probability filtered")
				s.rejected(report, SkipProbability)
				continue
			}
		}

		sig.ID = uuid.NewString()
		sig.CreatedAt = s.now()
		if err := s.d.Ledger.Add(sig); err != nil {
			if errors.Is(err, ledger.ErrAlreadyTracked) {
				s.rejected(report, SkipAlreadyActive)
				continue
			}
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to track signal")
			continue
		}
		if err := s.d.Sink.PublishSignal(ctx, sig); err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to publish signal")
		}
		if s.d.Recorder != nil {
			if err := s.d.Recorder.RecordSignal(ctx, sig); err != nil {
				log.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to record signal")
			}
		}
		s.d.Quota.RecordSend(ctx, class, sig.Tier)

		report.Sent[sig.Tier]++
		report.Signals = append(report.Signals, sig)
		if s.d.Metrics != nil {
			s.d.Metrics.SignalEmitted(class, sig.Tier)
		}
		log.Info().Str("id", sig.ID).Str("symbol", sig.Symbol).Str("class", string(class)).Str("tier", string(sig.Tier)).
			Str("direction", string(sig.Direction)).Float64("score", sig.Score).Msg("signal emitted")
	}
}

func (s *Dispatcher) rejected(report *ScanReport, reason string) {
	report.reject(reason)
	if s.d.Metrics != nil {
		s.d.Metrics.Rejected(reason)
	}
}
