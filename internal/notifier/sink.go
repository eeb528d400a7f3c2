package notifier

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/model"
)

// Sink receives everything the engine publishes.
type Sink interface {
	PublishSignal(ctx context.Context, sig *model.Signal) error
	PublishLifecycle(ctx context.Context, evt model.LifecycleEvent) error
	PublishRegimeShift(ctx context.Context, shift model.RegimeShift) error
}

// Multi fans every publication out to each sink. One failing sink does not
// stop delivery to the others; the errors are joined.
type Multi []Sink

func (m Multi) PublishSignal(ctx context.Context, sig *model.Signal) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishSignal(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PublishLifecycle(ctx context.Context, evt model.LifecycleEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishLifecycle(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PublishRegimeShift(ctx context.Context, shift model.RegimeShift) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishRegimeShift(ctx, shift); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes publications to the structured log. It is always part of the
// fan-out so that a run without chat or broker still shows its output.
type LogSink struct{}

func (LogSink) PublishSignal(_ context.Context, sig *model.Signal) error {
	log.Info().
		Str("component", "sink").
		Str("id", sig.ID).
		Str("symbol", sig.Symbol).
		Str("class", string(sig.Class)).
		Str("direction", string(sig.Direction)).
		Str("tier", string(sig.Tier)).
		Float64("score", sig.Score).
		Float64("entry", sig.Entry).
		Float64("stop", sig.Stop).
		Floats64("targets", sig.Targets).
		Int("leverage", sig.Leverage).
		Msg("signal")
	return nil
}

func (LogSink) PublishLifecycle(_ context.Context, evt model.LifecycleEvent) error {
	log.Info().
		Str("component", "sink").
		Str("signal_id", evt.SignalID).
		Str("symbol", evt.Symbol).
		Str("kind", string(evt.Kind)).
		Int("target", evt.Target).
		Float64("price", evt.Price).
		Str("status", string(evt.Status)).
		Msg("lifecycle")
	return nil
}

func (LogSink) PublishRegimeShift(_ context.Context, shift model.RegimeShift) error {
	log.Warn().
		Str("component", "sink").
		Float64("btc", shift.BTC).
		Float64("btc_delta", shift.BTCDelta).
		Float64("usdt", shift.USDT).
		Float64("usdt_delta", shift.USDTDelta).
		Str("category", string(shift.Category)).
		Msg("regime shift")
	return nil
}
