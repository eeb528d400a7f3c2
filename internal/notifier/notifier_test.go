package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalSentinel/internal/dispatcher"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/predictor"
)

func sampleSignal() *model.Signal {
	return &model.Signal{
		ID: "sig-1", Symbol: "SOLUSDT", Class: model.Day, Direction: model.Long, Tier: model.TierA,
		Score: 88, CriteriaMet: 6, Entry: 100, Stop: 95, Targets: []float64{110, 117.5},
		Leverage: 7, Phase: model.PhaseMarkupSOS,
		Confluences: []string{"✅ EMA9 > EMA21", "Volume spike 2.4x avg"},
		Regime:      &model.RegimeContext{Category: model.RiskOnAlt, BTC: 52.1, USDT: 4.9, Estimated: true, Confidence: 0.61},
		CreatedAt:   time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestFormatSignal(t *testing.T) {
	msg := FormatSignal(sampleSignal())
	assert.Contains(t, msg, "<b>SOLUSDT LONG</b>")
	assert.Contains(t, msg, "A+")
	assert.Contains(t, msg, "Stop: <code>95.0000</code> (-5.00%)")
	assert.Contains(t, msg, "TP2: <code>117.5000</code> (+17.50%)")
	assert.Contains(t, msg, "Leverage: 7x")
	assert.Contains(t, msg, "Markup, Sign of Strength")
	assert.Contains(t, msg, "EMA9 &gt; EMA21", "free text is escaped")
	assert.Contains(t, msg, "(est.)")
	assert.Contains(t, msg, "ML win probability: 61%")
	assert.Contains(t, msg, "2026-03-01 12:30 UTC")
}

func TestFormatLifecycle(t *testing.T) {
	evt := model.LifecycleEvent{Symbol: "SOLUSDT", Direction: model.Long, Kind: model.EventTargetHit,
		Target: 1, Price: 110.2, TargetsHit: 1, TotalTargets: 3, Status: model.StatusOpen}
	assert.Contains(t, FormatLifecycle(evt), "TP1 hit at <code>110.2000</code> (1/3)")

	evt.Target, evt.TargetsHit, evt.Status = 3, 3, model.StatusClosedWin
	assert.Contains(t, FormatLifecycle(evt), "all 3 targets hit")

	evt.Kind, evt.Status, evt.TargetsHit = model.EventStopHit, model.StatusClosedLoss, 1
	assert.Contains(t, FormatLifecycle(evt), "stop hit")
	assert.Contains(t, FormatLifecycle(evt), "after 1/3 targets")
}

func TestFormatQuotaAndStats(t *testing.T) {
	state := model.QuotaState{Classes: map[model.TradeClass]*model.ClassQuota{
		model.Day: {Sent: map[model.Tier]int{model.TierA: 2, model.TierB: 1}, DailyTarget: 9,
			LastSend: time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)},
	}}
	q := FormatQuota(state)
	assert.Contains(t, q, "<b>DAY</b>: 3/9 | A+ 2 | B+ 1 | C+ 0 | last 09:05")
	assert.NotContains(t, q, "SCALP")

	assert.Contains(t, FormatStats(predictor.Stats{}), "No resolved trades")
	s := FormatStats(predictor.Stats{Total: 4, Wins: 3, WinRate: 75,
		ByTier: map[model.Tier]predictor.TierStats{model.TierA: {Total: 4, Wins: 3, WinRate: 75}}})
	assert.Contains(t, s, "Win rate: 75.0%")
	assert.Contains(t, s, "A+: 3/4 (75.0%)")
}

func TestFormatActive(t *testing.T) {
	assert.Contains(t, FormatActive(nil), "No active trades")
	sig := sampleSignal()
	sig.Direction = model.Short
	msg := FormatActive([]model.ActiveTrade{{Signal: sig, LastPrice: 98, TargetsHit: 0}})
	assert.Contains(t, msg, "(+2.00%)", "short in profit when price falls")
	assert.Contains(t, msg, "TP 0/2")
}

func TestFormatRegime(t *testing.T) {
	assert.Contains(t, FormatRegime(nil, nil), "No dominance reading")
	msg := FormatRegime(
		&model.MacroRegime{Category: model.RiskOff, BTC: 55, USDT: 6.1, AllowShort: true},
		&model.RegimeSignal{Bias: model.BiasShortOK, SampleCount: 4, USDTTrend: model.TrendRising},
	)
	assert.Contains(t, msg, "<b>risk_off</b>")
	assert.Contains(t, msg, "Longs: no | Shorts: yes")
	assert.Contains(t, msg, "Scalp bias: <b>short_ok</b> (4 samples)")
}

func TestFormatScanReport(t *testing.T) {
	skipped := FormatScanReport(dispatcher.ScanReport{Class: model.Scalp, Skipped: "regime_blocked"})
	assert.Contains(t, skipped, "<b>SCALP scan</b>")
	assert.Contains(t, skipped, "Skipped: regime_blocked")
	assert.NotContains(t, skipped, "Scanned")

	msg := FormatScanReport(dispatcher.ScanReport{
		Class:      model.Day,
		Duration:   42 * time.Second,
		Scanned:    80,
		Candidates: 5,
		Sent:       map[model.Tier]int{model.TierA: 1, model.TierB: 1},
		Rejections: map[string]int{"score_too_low": 30, "min_volume_24h": 12},
		Signals:    []*model.Signal{sampleSignal()},
		RefChange:  -0.75,
	})
	assert.Contains(t, msg, "| 42s")
	assert.Contains(t, msg, "Scanned: 80 | Candidates: 5 | Sent: 2")
	assert.Contains(t, msg, "A+ 1 | B+ 1 | C+ 0")
	assert.Contains(t, msg, "Reference move: -0.75%")
	assert.Less(t, strings.Index(msg, "min_volume_24h: 12"), strings.Index(msg, "score_too_low: 30"), "reasons sorted")
	assert.Contains(t, msg, "SOLUSDT LONG 88")
}

func TestFormatStatus(t *testing.T) {
	msg := FormatStatus(Status{
		Uptime:       3*time.Hour + 20*time.Minute + 10*time.Second,
		Symbols:      212,
		ActiveTrades: 4,
		Samples:      57,
		Regime:       model.RiskOnBTC,
		LastScans:    map[model.TradeClass]time.Time{model.Scalp: time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC)},
	})
	assert.Contains(t, msg, "Uptime: 3h20m0s")
	assert.Contains(t, msg, "Universe: 212 symbols")
	assert.Contains(t, msg, "Active trades: 4")
	assert.Contains(t, msg, "Estimator history: 57 outcomes")
	assert.Contains(t, msg, "Regime: risk_on_btc")
	assert.Contains(t, msg, "Last scalp scan: 08:15:00")
	assert.Contains(t, msg, "Last swing scan: never")
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, topic: "sentinel.events", now: func() time.Time { return at }}

	require.NoError(t, p.PublishSignal(context.Background(), sampleSignal()))
	require.NoError(t, p.PublishLifecycle(context.Background(), model.LifecycleEvent{Symbol: "ETHUSDT", Kind: model.EventStopHit}))
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, "sentinel.events", msg.Topic)
	assert.Equal(t, "SOLUSDT", string(msg.Key))
	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, EventSignal, env.Type)
	assert.True(t, env.At.Equal(at))
	var sig model.Signal
	require.NoError(t, json.Unmarshal(env.Payload, &sig))
	assert.Equal(t, "sig-1", sig.ID)
	assert.Equal(t, "ETHUSDT", string(w.msgs[1].Key))

	w.err = errors.New("broker down")
	err := p.PublishRegimeShift(context.Background(), model.RegimeShift{})
	assert.ErrorIs(t, err, w.err)
}

type countingSink struct {
	mu      sync.Mutex
	signals int
	err     error
}

func (c *countingSink) PublishSignal(context.Context, *model.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals++
	return c.err
}

func (c *countingSink) PublishLifecycle(context.Context, model.LifecycleEvent) error { return c.err }
func (c *countingSink) PublishRegimeShift(context.Context, model.RegimeShift) error  { return c.err }

func TestMulti_DeliversToAllSinks(t *testing.T) {
	failing := &countingSink{err: errors.New("chat unreachable")}
	ok := &countingSink{}
	m := Multi{failing, LogSink{}, ok}

	err := m.PublishSignal(context.Background(), sampleSignal())
	assert.ErrorIs(t, err, failing.err)
	assert.Equal(t, 1, failing.signals)
	assert.Equal(t, 1, ok.signals)
	assert.NoError(t, Multi{LogSink{}, ok}.PublishLifecycle(context.Background(), model.LifecycleEvent{}))
}

func TestTelegram_SendWithRetry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"), r.URL.Path)
		texts = append(texts, r.FormValue("text"))
		w.Header().Set("Content-Type", "application/json")
		if calls < 3 {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"Internal Server Error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	tg, err := NewTelegramNotifier(TelegramOptions{Token: "123:abc", ChatID: "42", ServerURL: srv.URL})
	require.NoError(t, err)
	tg.retryBase = time.Millisecond

	require.NoError(t, tg.SendWithRetry(context.Background(), "hello", 3))
	assert.Equal(t, 3, calls)
	assert.Equal(t, "hello", texts[2])

	mu.Lock()
	calls = -10
	mu.Unlock()
	err = tg.SendWithRetry(context.Background(), "again", 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts exhausted")
}
