package features

import "fmt"

// IndicatorKind is the closed set of indicator types the engine knows how
// to build. The factory is an enum+match, not a plugin registry of
// trait objects — the set is closed at build time.
type IndicatorKind string

const (
	KindSMA      IndicatorKind = "sma"
	KindEMA      IndicatorKind = "ema"
	KindRSI      IndicatorKind = "rsi"
	KindATR      IndicatorKind = "atr"
	KindStdDev   IndicatorKind = "stddev"
	KindBBands   IndicatorKind = "bbands"
	KindMACD     IndicatorKind = "macd"
	KindROC      IndicatorKind = "roc"
	KindRMax     IndicatorKind = "rolling_max"
	KindRMin     IndicatorKind = "rolling_min"
	KindWMA      IndicatorKind = "wma"
	KindDEMA     IndicatorKind = "dema"
	KindTEMA     IndicatorKind = "tema"
	KindMomentum IndicatorKind = "momentum"
	KindCCI      IndicatorKind = "cci"
	KindWilliamsR IndicatorKind = "williams_r"
	KindStochastic IndicatorKind = "stochastic"
	KindOBV      IndicatorKind = "obv"
	KindVWAP     IndicatorKind = "vwap"
	KindDonchian IndicatorKind = "donchian"
	KindKeltner  IndicatorKind = "keltner"
	KindTRIX     IndicatorKind = "trix"
	KindADX      IndicatorKind = "adx"
)

// InputSource names which per-bar series an indicator consumes.
type InputSource string

const (
	SrcClose  InputSource = "close"
	SrcOpen   InputSource = "open"
	SrcHigh   InputSource = "high"
	SrcLow    InputSource = "low"
	SrcVolume InputSource = "volume"
	SrcHLC3   InputSource = "hlc3"
	SrcOHLC4  InputSource = "ohlc4"
)

// ParamSpec describes one accepted parameter for an indicator kind.
type ParamSpec struct {
	Name     string
	Required bool
	IsInt    bool
}

// registryEntry is the static, load-time-validated description of one
// indicator kind: accepted parameters, output sub-keys, and a
// constructor. The input series is not part of the entry; each feature's
// NodeSpec selects it.
type registryEntry struct {
	Params      []ParamSpec
	OutputKeys  []string
	Build       func(params map[string]float64) (Indicator, error)
}

var registry = map[IndicatorKind]registryEntry{
	KindSMA: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewSMA(int(p["length"])), nil
		},
	},
	KindEMA: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewEMA(int(p["length"])), nil
		},
	},
	KindRSI: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewRSI(int(p["length"])), nil
		},
	},
	KindATR: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewATR(int(p["length"])), nil
		},
	},
	KindStdDev: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewStdDev(int(p["length"])), nil
		},
	},
	KindBBands: {
		Params: []ParamSpec{
			{Name: "length", Required: true, IsInt: true},
			{Name: "mult", Required: true},
		},
		OutputKeys: []string{"upper", "middle", "lower"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewBBands(int(p["length"]), p["mult"]), nil
		},
	},
	KindMACD: {
		Params: []ParamSpec{
			{Name: "fast", Required: true, IsInt: true},
			{Name: "slow", Required: true, IsInt: true},
			{Name: "signal", Required: true, IsInt: true},
		},
		OutputKeys: []string{"macd", "signal", "histogram"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewMACD(int(p["fast"]), int(p["slow"]), int(p["signal"])), nil
		},
	},
	KindROC: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewROC(int(p["length"])), nil
		},
	},
	KindRMax: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewRollingMax(int(p["length"])), nil
		},
	},
	KindRMin: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewRollingMin(int(p["length"])), nil
		},
	},
	KindWMA: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewWMA(int(p["length"])), nil
		},
	},
	KindDEMA: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewDEMA(int(p["length"])), nil
		},
	},
	KindTEMA: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewTEMA(int(p["length"])), nil
		},
	},
	KindMomentum: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewMomentum(int(p["length"])), nil
		},
	},
	KindCCI: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewCCI(int(p["length"])), nil
		},
	},
	KindWilliamsR: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewWilliamsR(int(p["length"])), nil
		},
	},
	KindStochastic: {
		Params: []ParamSpec{
			{Name: "length", Required: true, IsInt: true},
			{Name: "signal", Required: true, IsInt: true},
		},
		OutputKeys: []string{"k", "d"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewStochastic(int(p["length"]), int(p["signal"])), nil
		},
	},
	KindOBV: {
		Params:     nil,
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewOBV(), nil
		},
	},
	KindVWAP: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewVWAP(int(p["length"])), nil
		},
	},
	KindDonchian: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"upper", "middle", "lower"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewDonchianChannel(int(p["length"])), nil
		},
	},
	KindKeltner: {
		Params: []ParamSpec{
			{Name: "length", Required: true, IsInt: true},
			{Name: "mult", Required: true},
		},
		OutputKeys: []string{"upper", "middle", "lower"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewKeltnerChannel(int(p["length"]), p["mult"]), nil
		},
	},
	KindTRIX: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewTRIX(int(p["length"])), nil
		},
	},
	KindADX: {
		Params:     []ParamSpec{{Name: "length", Required: true, IsInt: true}},
		OutputKeys: []string{"value"},
		Build: func(p map[string]float64) (Indicator, error) {
			return NewADX(int(p["length"])), nil
		},
	},
}

// OutputKeysFor returns the declared output sub-keys for kind, used at
// Play-load time to validate a feature reference like "macd_fast.histogram".
func OutputKeysFor(kind IndicatorKind) ([]string, bool) {
	e, ok := registry[kind]
	if !ok {
		return nil, false
	}
	return e.OutputKeys, true
}

// Build validates params against kind's registry entry (unknown names and
// missing required params fail) and constructs the concrete indicator.
func Build(kind IndicatorKind, params map[string]float64) (Indicator, error) {
	entry, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("features: unknown indicator type %q", kind)
	}
	known := make(map[string]ParamSpec, len(entry.Params))
	for _, p := range entry.Params {
		known[p.Name] = p
	}
	for name := range params {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("features: indicator %q: unknown parameter %q", kind, name)
		}
	}
	for _, p := range entry.Params {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			return nil, fmt.Errorf("features: indicator %q: missing required parameter %q", kind, p.Name)
		}
	}
	return entry.Build(params)
}
