package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"SignalSentinel/internal/model"
)

// ErrInvalidTunables is returned when a tunables set fails validation.
var ErrInvalidTunables = errors.New("invalid tunables")

// Thresholds are the minimum scores of each tier.
type Thresholds struct {
	A float64 `yaml:"a_plus" json:"a_plus" validate:"gt=0,lte=100,gtfield=B"`
	B float64 `yaml:"b_plus" json:"b_plus" validate:"gt=0,lte=100,gtfield=C"`
	C float64 `yaml:"c_plus" json:"c_plus" validate:"gt=0,lte=100"`
}

// For returns the threshold of the given tier.
func (t Thresholds) For(tier model.Tier) float64 {
	switch tier {
	case model.TierA:
		return t.A
	case model.TierB:
		return t.B
	default:
		return t.C
	}
}

// QuotaRule holds the pacing rules of one trade class.
type QuotaRule struct {
	DailyTarget int                `yaml:"daily_target" json:"daily_target" validate:"gte=1"`
	DailyCap    int                `yaml:"daily_cap" json:"daily_cap" validate:"gte=0"` // 0 means uncapped
	GapMinutes  map[model.Tier]int `yaml:"gap_minutes" json:"gap_minutes" validate:"required,dive,gte=0"`
}

// Tunables are the runtime-adjustable thresholds read by the scorer and the gates.
// A *Tunables obtained from TunablesStore.Get must be treated as read-only.
type Tunables struct {
	Thresholds      Thresholds                                    `yaml:"thresholds" json:"thresholds"`
	VolumeSpikeMult float64                                       `yaml:"volume_spike_mult" json:"volume_spike_mult" validate:"gt=0"`
	OutperformPct   float64                                       `yaml:"outperform_pct" json:"outperform_pct" validate:"gte=0"`
	MinVolume24h    float64                                       `yaml:"min_volume_24h" json:"min_volume_24h" validate:"gte=0"`
	MinOpenInterest float64                                       `yaml:"min_open_interest" json:"min_open_interest" validate:"gte=0"`
	MinProbability  map[model.Tier]float64                        `yaml:"min_probability" json:"min_probability" validate:"dive,gte=0,lte=1"`
	Quota           map[model.TradeClass]QuotaRule                `yaml:"quota" json:"quota" validate:"required,dive"`
	Targets         map[model.Tier]map[model.TradeClass][]float64 `yaml:"targets" json:"targets" validate:"required"`
	Leverage        map[model.Tier]map[model.TradeClass]int       `yaml:"leverage" json:"leverage" validate:"required"`
}

// DefaultTunables returns the built-in tunables.
func DefaultTunables() *Tunables {
	return &Tunables{
		Thresholds:      Thresholds{A: 80, B: 60, C: 40},
		VolumeSpikeMult: 1.5,
		OutperformPct:   0.5,
		MinVolume24h:    5_000_000,
		MinOpenInterest: 2_000_000,
		MinProbability:  map[model.Tier]float64{model.TierB: 0.42, model.TierC: 0.45},
		Quota: map[model.TradeClass]QuotaRule{
			model.Scalp: {DailyTarget: 24, GapMinutes: map[model.Tier]int{model.TierA: 0, model.TierB: 55, model.TierC: 55}},
			model.Day:   {DailyTarget: 9, DailyCap: 9, GapMinutes: map[model.Tier]int{model.TierA: 60, model.TierB: 90, model.TierC: 90}},
			model.Swing: {DailyTarget: 3, DailyCap: 4, GapMinutes: map[model.Tier]int{model.TierA: 90, model.TierB: 120, model.TierC: 120}},
		},
		Targets: map[model.Tier]map[model.TradeClass][]float64{
			model.TierA: {
				model.Scalp: {2.0, 3.5, 5.0, 7.0, 10.0},
				model.Day:   {2.0, 3.0, 4.0, 5.5, 7.0},
				model.Swing: {2.0, 3.0, 4.5, 6.5, 9.0},
			},
			model.TierB: {
				model.Scalp: {2.0, 3.1, 4.5, 6.0},
				model.Day:   {2.0, 2.9, 3.8, 5.0},
				model.Swing: {2.0, 3.0, 4.2, 5.5},
			},
			model.TierC: {
				model.Scalp: {2.0, 2.8, 3.8},
				model.Day:   {2.0, 2.8, 3.5},
				model.Swing: {2.0, 2.8, 3.8},
			},
		},
		Leverage: map[model.Tier]map[model.TradeClass]int{
			model.TierA: {model.Scalp: 10, model.Day: 7, model.Swing: 5},
			model.TierB: {model.Scalp: 7, model.Day: 5, model.Swing: 3},
			model.TierC: {model.Scalp: 5, model.Day: 3, model.Swing: 2},
		},
	}
}

// Clone returns a deep copy.
func (t *Tunables) Clone() *Tunables {
	c := *t
	c.MinProbability = make(map[model.Tier]float64, len(t.MinProbability))
	for k, v := range t.MinProbability {
		c.MinProbability[k] = v
	}
	c.Quota = make(map[model.TradeClass]QuotaRule, len(t.Quota))
	for k, v := range t.Quota {
		gaps := make(map[model.Tier]int, len(v.GapMinutes))
		for tier, g := range v.GapMinutes {
			gaps[tier] = g
		}
		v.GapMinutes = gaps
		c.Quota[k] = v
	}
	c.Targets = make(map[model.Tier]map[model.TradeClass][]float64, len(t.Targets))
	for tier, byClass := range t.Targets {
		m := make(map[model.TradeClass][]float64, len(byClass))
		for class, ladder := range byClass {
			m[class] = append([]float64(nil), ladder...)
		}
		c.Targets[tier] = m
	}
	c.Leverage = make(map[model.Tier]map[model.TradeClass]int, len(t.Leverage))
	for tier, byClass := range t.Leverage {
		m := make(map[model.TradeClass]int, len(byClass))
		for class, lev := range byClass {
			m[class] = lev
		}
		c.Leverage[tier] = m
	}
	return &c
}

// Merge returns a copy of t with the JSON document patch applied key by key. Objects
// merge at every depth; arrays and scalars replace.
func (t *Tunables) Merge(patch []byte) (*Tunables, error) {
	var src map[string]any
	if err := json.Unmarshal(patch, &src); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode tunables: %w", err)
	}
	var dst map[string]any
	if err := json.Unmarshal(raw, &dst); err != nil {
		return nil, fmt.Errorf("decode tunables: %w", err)
	}
	mergeObjects(dst, src)

	merged, err := json.Marshal(dst)
	if err != nil {
		return nil, fmt.Errorf("encode merged tunables: %w", err)
	}
	out := &Tunables{}
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("decode merged tunables: %w", err)
	}
	return out, nil
}

func mergeObjects(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				mergeObjects(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
}

// Ladder returns the target-multiple ladder for a tier and class.
func (t *Tunables) Ladder(tier model.Tier, class model.TradeClass) []float64 {
	return t.Targets[tier][class]
}

// LeverageFor returns the suggested leverage for a tier and class.
func (t *Tunables) LeverageFor(tier model.Tier, class model.TradeClass) int {
	return t.Leverage[tier][class]
}

var validate = validator.New()

// Validate checks field bounds and the completeness of every per-tier table.
func (t *Tunables) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTunables, err)
	}
	for _, class := range model.Classes {
		rule, ok := t.Quota[class]
		if !ok {
			return fmt.Errorf("%w: quota.%s missing", ErrInvalidTunables, class)
		}
		if rule.DailyCap > 0 && rule.DailyCap < rule.DailyTarget {
			return fmt.Errorf("%w: quota.%s.daily_cap below daily_target", ErrInvalidTunables, class)
		}
		for _, tier := range model.Tiers {
			if _, ok := rule.GapMinutes[tier]; !ok {
				return fmt.Errorf("%w: quota.%s.gap_minutes.%s missing", ErrInvalidTunables, class, tier)
			}
		}
	}
	for _, tier := range model.Tiers {
		for _, class := range model.Classes {
			if err := validateLadder(t.Targets[tier][class]); err != nil {
				return fmt.Errorf("%w: targets.%s.%s: %v", ErrInvalidTunables, tier, class, err)
			}
			if t.Leverage[tier][class] < 1 {
				return fmt.Errorf("%w: leverage.%s.%s must be at least 1", ErrInvalidTunables, tier, class)
			}
		}
	}
	return nil
}

// Every ladder needs at least three strictly increasing multiples, the first at least 2R.
func validateLadder(ladder []float64) error {
	if len(ladder) < 3 {
		return fmt.Errorf("need at least 3 multiples, got %d", len(ladder))
	}
	if ladder[0] < 2 {
		return fmt.Errorf("first multiple %.2f below 2.0", ladder[0])
	}
	for i := 1; i < len(ladder); i++ {
		if ladder[i] <= ladder[i-1] {
			return fmt.Errorf("multiples must be strictly increasing")
		}
	}
	return nil
}

// TunablesStore is the single synchronized accessor for the live tunables.
// Readers get an immutable snapshot; writers replace it wholesale.
type TunablesStore struct {
	mu   sync.RWMutex
	cur  *Tunables
	path string
}

// NewTunablesStore loads tunables from path, writing the defaults there when the file does not exist.
// An empty path keeps the tunables in memory only.
func NewTunablesStore(path string) (*TunablesStore, error) {
	s := &TunablesStore{path: path, cur: DefaultTunables()}
	if path == "" {
		return s, nil
	}
	t, err := loadTunables(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := s.save(s.cur); err != nil {
			return nil, err
		}
		return s, nil
	}
	s.cur = t
	return s, nil
}

// Get returns the current snapshot.
func (s *TunablesStore) Get() *Tunables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Replace validates and installs t, persisting it when the store is file-backed.
func (s *TunablesStore) Replace(t *Tunables) error {
	if err := t.Validate(); err != nil {
		return err
	}
	next := t.Clone()
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	if err := s.save(next); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("failed to save tunables")
		return err
	}
	return nil
}

// Update applies fn to a copy of the current tunables and installs the result.
func (s *TunablesStore) Update(fn func(t *Tunables)) error {
	next := s.Get().Clone()
	fn(next)
	return s.Replace(next)
}

// Reload re-reads the backing file.
func (s *TunablesStore) Reload() error {
	if s.path == "" {
		return nil
	}
	t, err := loadTunables(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = t
	s.mu.Unlock()
	log.Info().Str("path", s.path).Msg("tunables reloaded")
	return nil
}

// Suggestion is a set of threshold changes proposed by an external tuner.
// Nil fields are left unchanged.
type Suggestion struct {
	GradeA          *float64 `json:"grade_a_plus"`
	GradeB          *float64 `json:"grade_b_plus"`
	GradeC          *float64 `json:"grade_c_plus"`
	VolumeSpikeMult *float64 `json:"volume_spike_mult"`
	OutperformPct   *float64 `json:"outperform_pct"`
	MinVolume24h    *float64 `json:"min_volume_24h"`
}

// ApplyTuning clamps each suggested value to its safe range and installs the result.
// It returns the human readable list of applied changes.
func (s *TunablesStore) ApplyTuning(sg Suggestion) ([]string, error) {
	next := s.Get().Clone()
	var changes []string
	set := func(name string, dst *float64, v *float64, lo, hi float64) {
		if v == nil {
			return
		}
		nv := math.Max(lo, math.Min(hi, *v))
		if math.Abs(nv-*dst) > 0.01 {
			changes = append(changes, fmt.Sprintf("%s: %g -> %g", name, *dst, nv))
			*dst = nv
		}
	}
	set("grade_a_plus", &next.Thresholds.A, sg.GradeA, 70, 92)
	set("grade_b_plus", &next.Thresholds.B, sg.GradeB, 50, 75)
	set("grade_c_plus", &next.Thresholds.C, sg.GradeC, 30, 55)
	set("volume_spike_mult", &next.VolumeSpikeMult, sg.VolumeSpikeMult, 1.2, 4.0)
	set("outperform_pct", &next.OutperformPct, sg.OutperformPct, 0.2, 2.0)
	set("min_volume_24h", &next.MinVolume24h, sg.MinVolume24h, 1_000_000, 50_000_000)
	if len(changes) == 0 {
		return nil, nil
	}
	if err := s.Replace(next); err != nil {
		return nil, err
	}
	log.Info().Strs("changes", changes).Msg("auto-tune applied")
	return changes, nil
}

func loadTunables(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tunables: %w", err)
	}
	t := DefaultTunables()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse tunables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TunablesStore) save(t *Tunables) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tunables: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}
