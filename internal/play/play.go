// Package play defines the Play document: the declarative, versioned
// description of one backtest configuration (data sources, timeframes,
// feature pipelines, entry/exit rules, risk model, exchange cost model).
// A Play is loaded once, fully validated, and then hashed so two
// identical Plays produce the identical run hash.
package play

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"btcore/internal/bar"
	"btcore/internal/exchange"
	"btcore/internal/features"
	"btcore/internal/rules"
)

// Play is the root document. Field names match the YAML keys exactly so
// the strict decoder's unknown-field rejection is meaningful.
type Play struct {
	Version    int                  `yaml:"version"`
	ID         string               `yaml:"id"`
	Symbol     string               `yaml:"symbol"`
	Timeframes TimeframeSpec        `yaml:"timeframes"`
	Data       DataSpec             `yaml:"data"`
	Features   map[string][]Feature `yaml:"features"` // role name -> feature declarations
	Risk       RiskSpec             `yaml:"risk"`
	Exchange   ExchangeSpec         `yaml:"exchange"`
	Position   PositionPolicy       `yaml:"position_policy"`
	Entries    []RuleSpec           `yaml:"entries"`
	Exits      []RuleSpec           `yaml:"exits"`
}

// PositionPolicy governs which entry directions are permitted. Flipping
// a position and scaling in/out are out of scope — the simulated
// exchange already hard-enforces at most one pending order and one open
// position regardless of this field.
type PositionPolicy struct {
	Mode string `yaml:"mode"` // "long_only", "short_only", or "long_short"
}

// Allows reports whether side is permitted under this policy's mode.
func (p PositionPolicy) Allows(side string) bool {
	switch p.Mode {
	case "long_only":
		return side == "long"
	case "short_only":
		return side == "short"
	case "long_short":
		return side == "long" || side == "short"
	default:
		return false
	}
}

// TimeframeSpec names the three role timeframes a Play declares. Only
// low_tf is mandatory — med_tf/high_tf are optional higher contexts.
type TimeframeSpec struct {
	Low  string `yaml:"low_tf"`
	Med  string `yaml:"med_tf,omitempty"`
	High string `yaml:"high_tf,omitempty"`
}

// DataSpec points at the CSV inputs for each declared role plus funding.
type DataSpec struct {
	RolePaths   map[string]string `yaml:"role_paths"`
	FundingPath string            `yaml:"funding_path,omitempty"`
}

// Feature is one indicator or structure declaration within a role's
// pipeline.
type Feature struct {
	Key       string             `yaml:"key"`
	Type      string             `yaml:"type"` // "indicator" or "structure"
	Kind      string             `yaml:"kind"` // indicator IndicatorKind or structure shape
	Params    map[string]float64 `yaml:"params,omitempty"`
	DependsOn []string           `yaml:"depends_on,omitempty"`
	Source    string             `yaml:"source,omitempty"` // indicator input_source

	// Structure-only fields. SwingKey is the depends_on entry
	// that anchors trend/zone/fibonacci/derived_zone; ATRKey additionally
	// anchors a zone's atr_mult width model; Side/WidthModel configure
	// zone/derived_zone anchoring and width derivation.
	SwingKey   string `yaml:"swing_key,omitempty"`
	ATRKey     string `yaml:"atr_key,omitempty"`
	Side       string `yaml:"side,omitempty"`
	WidthModel string `yaml:"width_model,omitempty"`
}

// StopLossSpec selects one of the two stop-loss models:
// "percent" (a fixed fraction away from entry) or "atr_multiple" (a
// multiple of a named ATR-family indicator's current value). Exactly one
// of Percent/ATRMult applies, selected by Type.
type StopLossSpec struct {
	Type    string  `yaml:"type"` // "percent" | "atr_multiple"
	Percent float64 `yaml:"percent,omitempty"`
	ATRMult float64 `yaml:"atr_mult,omitempty"`
	ATRKey  string  `yaml:"atr_key,omitempty"` // required when Type == "atr_multiple"
}

// TakeProfitSpec selects one of the two take-profit models:
// "rr_ratio" (a multiple of the realized stop distance) or
// "percent" (a fixed fraction away from entry).
type TakeProfitSpec struct {
	Type    string  `yaml:"type"` // "rr_ratio" | "percent"
	RRRatio float64 `yaml:"rr_ratio,omitempty"`
	Percent float64 `yaml:"percent,omitempty"`
}

// SizingSpec selects one of the two position-sizing models:
// "percent_equity" (a fraction of current equity leveraged up to
// max_leverage) or "fixed_usdt" (a constant notional per trade).
type SizingSpec struct {
	Type          string  `yaml:"type"` // "percent_equity" | "fixed_usdt"
	PercentEquity float64 `yaml:"percent_equity,omitempty"`
	FixedUSDT     float64 `yaml:"fixed_usdt,omitempty"`
}

// RiskSpec configures position sizing and SL/TP placement: a stop-loss
// model, a take-profit model, a sizing model, and the
// account-wide max leverage all three draw on.
type RiskSpec struct {
	StopLoss   StopLossSpec   `yaml:"stop_loss"`
	TakeProfit TakeProfitSpec `yaml:"take_profit"`
	Sizing     SizingSpec     `yaml:"sizing"`
	Leverage   float64        `yaml:"leverage"`
}

// StopDistance returns the absolute price distance between entry and the
// stop-loss level for the configured model. atr is the
// current value of the indicator named by StopLoss.ATRKey, ignored for
// the "percent" model. Returns an error if the atr_multiple model's input
// is not yet warm (non-positive ATR).
func (r RiskSpec) StopDistance(entry, atr float64) (float64, error) {
	switch r.StopLoss.Type {
	case "percent":
		return entry * r.StopLoss.Percent / 100, nil
	case "atr_multiple":
		if !(atr > 0) { // also catches NaN, the not-yet-warm sentinel
			return 0, fmt.Errorf("play: atr_multiple stop: atr value not ready")
		}
		return atr * r.StopLoss.ATRMult, nil
	default:
		return 0, fmt.Errorf("play: unknown stop_loss.type %q", r.StopLoss.Type)
	}
}

// TakeProfitDistance returns the absolute price distance between entry
// and the take-profit level, given the stop distance already computed by
// StopDistance (the rr_ratio model scales it; the percent model ignores it).
func (r RiskSpec) TakeProfitDistance(entry, stopDistance float64) (float64, error) {
	switch r.TakeProfit.Type {
	case "rr_ratio":
		return stopDistance * r.TakeProfit.RRRatio, nil
	case "percent":
		return entry * r.TakeProfit.Percent / 100, nil
	default:
		return 0, fmt.Errorf("play: unknown take_profit.type %q", r.TakeProfit.Type)
	}
}

// Notional returns the requested position notional in quote currency for
// the configured sizing model. equity is the account's current equity
// at decision time.
func (r RiskSpec) Notional(equity float64) (float64, error) {
	switch r.Sizing.Type {
	case "percent_equity":
		return equity * r.Sizing.PercentEquity / 100 * r.Leverage, nil
	case "fixed_usdt":
		return r.Sizing.FixedUSDT, nil
	default:
		return 0, fmt.Errorf("play: unknown sizing.type %q", r.Sizing.Type)
	}
}

// ExchangeSpec configures the simulated venue's cost model.
type ExchangeSpec struct {
	TakerFeeRate      float64 `yaml:"taker_fee_rate"`
	SlippageBps       float64 `yaml:"slippage_bps"`
	MaintenanceMargin float64 `yaml:"maintenance_margin"`
	StartingCash      float64 `yaml:"starting_cash"`
	MinTradeNotional  float64 `yaml:"min_trade_notional"`
}

// RuleSpec is the uncompiled rule tree plus a priority; entries/exits are
// evaluated in ascending Priority order, first match wins. Side names
// the direction an entry rule opens ("long" or "short"); for
// an exit rule it is optional — empty means "applies whichever side is
// currently open".
type RuleSpec struct {
	Name     string     `yaml:"name"`
	Priority int        `yaml:"priority"`
	Side     string     `yaml:"side,omitempty"`
	Rule     rules.Node `yaml:"rule"`
}

// Load reads and strictly decodes a Play document from path, rejecting
// unknown keys so a typo in a Play never silently no-ops.
func Load(path string) (*Play, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("play: read %s: %w", path, err)
	}

	var p Play
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("play: parse %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("play: invalid %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks structural invariants that must hold before a Play can
// be compiled into a runnable pipeline.
func (p *Play) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("play: id is required")
	}
	if p.Symbol == "" {
		return fmt.Errorf("play: symbol is required")
	}
	if _, err := bar.ParseTimeframe(p.Timeframes.Low); err != nil {
		return fmt.Errorf("play: low_tf: %w", err)
	}
	if p.Timeframes.Med != "" {
		if _, err := bar.ParseTimeframe(p.Timeframes.Med); err != nil {
			return fmt.Errorf("play: med_tf: %w", err)
		}
	}
	if p.Timeframes.High != "" {
		if _, err := bar.ParseTimeframe(p.Timeframes.High); err != nil {
			return fmt.Errorf("play: high_tf: %w", err)
		}
	}
	if len(p.Data.RolePaths) == 0 {
		return fmt.Errorf("play: data.role_paths must declare at least one role")
	}
	if p.Risk.Leverage <= 0 {
		return fmt.Errorf("play: leverage must be positive")
	}
	if p.Exchange.StartingCash <= 0 {
		return fmt.Errorf("play: starting_cash must be positive")
	}
	if len(p.Entries) == 0 {
		return fmt.Errorf("play: at least one entry rule is required")
	}
	switch p.Position.Mode {
	case "long_only", "short_only", "long_short":
	default:
		return fmt.Errorf("play: position_policy.mode must be long_only, short_only, or long_short, got %q", p.Position.Mode)
	}
	for _, e := range p.Entries {
		if e.Side != "long" && e.Side != "short" {
			return fmt.Errorf("play: entry rule %q: side must be \"long\" or \"short\", got %q", e.Name, e.Side)
		}
		if !p.Position.Allows(e.Side) {
			return fmt.Errorf("play: entry rule %q: side %q not permitted by position_policy.mode %q", e.Name, e.Side, p.Position.Mode)
		}
	}
	for _, x := range p.Exits {
		if x.Side != "" && x.Side != "long" && x.Side != "short" {
			return fmt.Errorf("play: exit rule %q: side must be \"long\", \"short\", or empty, got %q", x.Name, x.Side)
		}
	}
	switch p.Risk.StopLoss.Type {
	case "percent":
		if p.Risk.StopLoss.Percent <= 0 {
			return fmt.Errorf("play: risk.stop_loss.percent must be positive")
		}
	case "atr_multiple":
		if p.Risk.StopLoss.ATRMult <= 0 {
			return fmt.Errorf("play: risk.stop_loss.atr_mult must be positive")
		}
		if p.Risk.StopLoss.ATRKey == "" {
			return fmt.Errorf("play: risk.stop_loss.atr_key is required for type atr_multiple")
		}
	default:
		return fmt.Errorf("play: risk.stop_loss.type must be \"percent\" or \"atr_multiple\", got %q", p.Risk.StopLoss.Type)
	}
	switch p.Risk.TakeProfit.Type {
	case "rr_ratio":
		if p.Risk.TakeProfit.RRRatio <= 0 {
			return fmt.Errorf("play: risk.take_profit.rr_ratio must be positive")
		}
	case "percent":
		if p.Risk.TakeProfit.Percent <= 0 {
			return fmt.Errorf("play: risk.take_profit.percent must be positive")
		}
	default:
		return fmt.Errorf("play: risk.take_profit.type must be \"rr_ratio\" or \"percent\", got %q", p.Risk.TakeProfit.Type)
	}
	switch p.Risk.Sizing.Type {
	case "percent_equity":
		if p.Risk.Sizing.PercentEquity <= 0 || p.Risk.Sizing.PercentEquity > 100 {
			return fmt.Errorf("play: risk.sizing.percent_equity must be in (0,100]")
		}
	case "fixed_usdt":
		if p.Risk.Sizing.FixedUSDT <= 0 {
			return fmt.Errorf("play: risk.sizing.fixed_usdt must be positive")
		}
	default:
		return fmt.Errorf("play: risk.sizing.type must be \"percent_equity\" or \"fixed_usdt\", got %q", p.Risk.Sizing.Type)
	}
	for role, feats := range p.Features {
		seen := make(map[string]bool, len(feats))
		for _, f := range feats {
			if f.Key == "" {
				return fmt.Errorf("play: role %s: feature missing key", role)
			}
			if seen[f.Key] {
				return fmt.Errorf("play: role %s: duplicate feature key %q", role, f.Key)
			}
			seen[f.Key] = true
			switch f.Type {
			case "indicator":
				if _, ok := features.OutputKeysFor(features.IndicatorKind(f.Kind)); !ok {
					return fmt.Errorf("play: role %s: feature %q: unknown indicator kind %q", role, f.Key, f.Kind)
				}
			case "structure":
				if !features.IsStructureKind(f.Kind) {
					return fmt.Errorf("play: role %s: feature %q: unknown structure kind %q", role, f.Key, f.Kind)
				}
			default:
				return fmt.Errorf("play: role %s: feature %q: type must be \"indicator\" or \"structure\", got %q", role, f.Key, f.Type)
			}
			for _, dep := range f.DependsOn {
				if !seen[dep] {
					return fmt.Errorf("play: role %s: feature %q depends_on %q which is not declared earlier", role, f.Key, dep)
				}
			}
		}
	}
	return nil
}

// ExchangeConfig converts the Play's exchange block into the exchange
// package's Config type.
func (p *Play) ExchangeConfig() exchange.Config {
	return exchange.Config{
		TakerFeeRate:      p.Exchange.TakerFeeRate,
		SlippageBps:       p.Exchange.SlippageBps,
		MaintenanceMargin: p.Exchange.MaintenanceMargin,
		MinTradeNotional:  p.Exchange.MinTradeNotional,
	}
}

// Hash computes the Play's content hash: a blake2b-256 digest over a
// canonical (sorted-key, uppercased-symbol) JSON-ish serialization,
// truncated to a 16-hex-character prefix used for run identity and
// determinism checks. Two Plays that are semantically
// identical but differ in YAML key order or whitespace hash identically.
func (p *Play) Hash() (string, error) {
	canon := p.canonical()
	raw, err := yaml.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("play: canonicalize for hash: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16], nil
}

// canonical builds a deterministically ordered representation of the
// Play for hashing: sorted map keys, an uppercased symbol, and no
// wall-clock-dependent fields (the Play has none).
func (p *Play) canonical() map[string]any {
	roles := make([]string, 0, len(p.Features))
	for role := range p.Features {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	feats := make(map[string]any, len(roles))
	for _, role := range roles {
		feats[role] = p.Features[role]
	}

	return map[string]any{
		"version":         p.Version,
		"id":              p.ID,
		"symbol":          upper(p.Symbol),
		"timeframes":      p.Timeframes,
		"data":            p.Data,
		"features":        feats,
		"risk":            p.Risk,
		"exchange":        p.Exchange,
		"position_policy": p.Position,
		"entries":         p.Entries,
		"exits":           p.Exits,
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// BuiltPipeline pairs a role with its load-time-assembled incremental
// feature pipeline, ready to be driven one closed bar at a time.
type BuiltPipeline struct {
	Role     bar.Role
	TF       bar.Timeframe
	Pipeline *features.Pipeline
}

// BuildPipelines constructs one features.Pipeline per declared role,
// topologically ordering each role's indicator/structure declarations.
// Called once at load time; the returned pipelines are then driven
// bar-by-bar by the orchestrator for the life of the run.
func (p *Play) BuildPipelines() (map[bar.Role]*features.Pipeline, error) {
	out := make(map[bar.Role]*features.Pipeline, len(p.Features))
	for roleStr, feats := range p.Features {
		role, err := bar.ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("play: features: %w", err)
		}
		nodes := make([]features.NodeSpec, 0, len(feats))
		for _, f := range feats {
			switch f.Type {
			case "indicator":
				ind, err := features.Build(features.IndicatorKind(f.Kind), f.Params)
				if err != nil {
					return nil, fmt.Errorf("play: role %s: feature %q: %w", roleStr, f.Key, err)
				}
				nodes = append(nodes, features.NodeSpec{
					Key:       f.Key,
					Kind:      features.NodeIndicator,
					Indicator: ind,
					DependsOn: f.DependsOn,
					InputSrc:  features.InputSource(f.Source),
				})
			case "structure":
				st, err := features.BuildStructure(features.StructureSpec{
					Kind:       features.StructureKind(f.Kind),
					Params:     f.Params,
					SwingKey:   f.SwingKey,
					ATRKey:     f.ATRKey,
					Side:       f.Side,
					WidthModel: f.WidthModel,
				})
				if err != nil {
					return nil, fmt.Errorf("play: role %s: feature %q: %w", roleStr, f.Key, err)
				}
				nodes = append(nodes, features.NodeSpec{
					Key:       f.Key,
					Kind:      features.NodeStructure,
					Structure: st,
					DependsOn: f.DependsOn,
				})
			default:
				return nil, fmt.Errorf("play: role %s: feature %q: unknown type %q (want indicator/structure)", roleStr, f.Key, f.Type)
			}
		}
		pipe, err := features.NewPipeline(nodes)
		if err != nil {
			return nil, fmt.Errorf("play: role %s: %w", roleStr, err)
		}
		out[role] = pipe
	}
	return out, nil
}

// CompiledRule pairs a compiled rule Expr with its declared name and
// side, so the orchestrator and any eval-trace artifact can report which
// named rule fired and which direction it opens or restricts its exit to.
type CompiledRule struct {
	Name string
	Side string
	Expr rules.Expr
}

// CompileRules sorts a copy of specs by Priority ascending (stable, so
// equal priorities keep their declared order) and compiles it into
// CompiledRules in that order.
func CompileRules(specs []RuleSpec) ([]CompiledRule, error) {
	sorted := append([]RuleSpec(nil), specs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	out := make([]CompiledRule, 0, len(sorted))
	for _, s := range sorted {
		expr, err := rules.Compile(s.Rule)
		if err != nil {
			return nil, fmt.Errorf("play: rule %q: %w", s.Name, err)
		}
		out = append(out, CompiledRule{Name: s.Name, Side: s.Side, Expr: expr})
	}
	return out, nil
}

// CompileEntries compiles the Play's entry rules in priority order.
func (p *Play) CompileEntries() ([]CompiledRule, error) { return CompileRules(p.Entries) }

// CompileExits compiles the Play's exit rules in priority order.
func (p *Play) CompileExits() ([]CompiledRule, error) { return CompileRules(p.Exits) }
