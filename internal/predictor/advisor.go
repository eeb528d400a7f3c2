package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Band in which the local estimate is considered uncertain and the advisor is consulted.
const (
	ConsultMin = 0.40
	ConsultMax = 0.65

	advisorWeight = 0.6
)

// Advisor is a second opinion on a win probability.
type Advisor interface {
	Advise(ctx context.Context, features []float64, local float64) (float64, error)
}

// Probability runs the full estimate path: the local estimate, blended 60/40 with the
// advisor when the local value falls inside the uncertain band.
func Probability(ctx context.Context, est Estimator, adv Advisor, features []float64) float64 {
	local := est.Estimate(ctx, features)
	if adv == nil || local < ConsultMin || local > ConsultMax {
		return local
	}
	p, err := adv.Advise(ctx, features, local)
	if err != nil {
		log.Warn().Err(err).Msg("advisor failed, using local estimate")
		return local
	}
	p = max(0, min(1, p))
	blended := p*advisorWeight + local*(1-advisorWeight)
	log.Debug().Float64("local", local).Float64("advisor", p).Float64("blended", blended).Msg("advisor blend")
	return blended
}

// HTTPAdvisor posts the feature vector to an external scoring endpoint that answers
// {"probability": p}.
type HTTPAdvisor struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPAdvisor(url string, timeout time.Duration) *HTTPAdvisor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdvisor{
		url:  url,
		http: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "advisor",
			Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

type adviceRequest struct {
	Features []float64 `json:"features"`
	Local    float64   `json:"local_probability"`
}

type adviceResponse struct {
	Probability float64 `json:"probability"`
}

func (a *HTTPAdvisor) Advise(ctx context.Context, features []float64, local float64) (float64, error) {
	body, err := json.Marshal(adviceRequest{Features: features, Local: local})
	if err != nil {
		return 0, err
	}
	res, err := a.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("advisor returned %d", resp.StatusCode)
		}
		var out adviceResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode advice: %w", err)
		}
		return out.Probability, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}
