package strategy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"voltalpha/internal/domain"
)

// Variant selects one of the closed set of rebalancing algorithms.
type Variant int

const (
	// BuyAndHold never trades after the initial purchase.
	BuyAndHold Variant = iota
	// ATHOnly sells at bracket levels that are also new all-time highs and
	// never buys.
	ATHOnly
	// Standard buys at the lower bracket and sells at the upper bracket.
	Standard
	// ATHGatedSell buys like Standard but unwinds stacked shares only at new
	// all-time highs (see GatedUnwind).
	ATHGatedSell
)

var variantNames = map[Variant]string{
	BuyAndHold:   "buy-and-hold",
	ATHOnly:      "ath-only",
	Standard:     "standard",
	ATHGatedSell: "ath-gated-sell",
}

func (v Variant) String() string {
	if s, ok := variantNames[v]; ok {
		return s
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// usesStack reports whether the variant records buybacks.
func (v Variant) usesStack() bool {
	return v == Standard || v == ATHGatedSell
}

// ParseVariant maps a configuration name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy-and-hold", "buy_and_hold", "bh":
		return BuyAndHold, nil
	case "ath-only", "ath_only":
		return ATHOnly, nil
	case "standard", "sd":
		return Standard, nil
	case "ath-gated-sell", "ath_gated_sell", "sd-ath-sell":
		return ATHGatedSell, nil
	}
	return 0, &domain.ConfigError{Field: "algorithm", Reason: fmt.Sprintf("unknown variant %q", s)}
}

// FillMode chooses how a triggered order is priced.
type FillMode int

const (
	// FillGap fills at the session open when the open has already crossed
	// the trigger, and at the trigger otherwise.
	FillGap FillMode = iota
	// FillLimit always fills at the trigger price.
	FillLimit
)

func (m FillMode) String() string {
	if m == FillLimit {
		return "limit"
	}
	return "gap"
}

// ParseFillMode maps "gap" or "limit" to a FillMode. Empty means gap.
func ParseFillMode(s string) (FillMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gap":
		return FillGap, nil
	case "limit", "ideal", "idealized":
		return FillLimit, nil
	}
	return 0, &domain.ConfigError{Field: "fill_mode", Reason: fmt.Sprintf("unknown fill mode %q", s)}
}

// GatedUnwind decides whether ATHGatedSell may sell stacked shares below the
// all-time high.
type GatedUnwind int

const (
	// UnwindAtATH holds stacked lots until a new all-time high.
	UnwindAtATH GatedUnwind = iota
	// UnwindAtBracket lets stacked lots (never base holdings) unwind at
	// intermediate upper brackets.
	UnwindAtBracket
)

func (g GatedUnwind) String() string {
	if g == UnwindAtBracket {
		return "bracket"
	}
	return "ath"
}

// ParseGatedUnwind maps "ath" or "bracket" to a GatedUnwind. Empty means ath.
func ParseGatedUnwind(s string) (GatedUnwind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ath":
		return UnwindAtATH, nil
	case "bracket":
		return UnwindAtBracket, nil
	}
	return 0, &domain.ConfigError{Field: "gated_unwind", Reason: fmt.Sprintf("unknown mode %q", s)}
}

// DefaultProfitSharing is used when an algorithm identifier omits it.
const DefaultProfitSharing = 0.5

// Params fully describes an algorithm instance.
type Params struct {
	Variant       Variant
	Trigger       float64 // rebalance fraction t, 0 < t < 1
	ProfitSharing float64 // s >= 0, may exceed 1
	FillMode      FillMode
	GatedUnwind   GatedUnwind
}

// Validate rejects parameters that cannot produce a meaningful run. A
// trigger of 1 or more would put the buy bracket at or below zero.
func (p Params) Validate() error {
	if _, ok := variantNames[p.Variant]; !ok {
		return &domain.ConfigError{Field: "algorithm", Reason: fmt.Sprintf("unknown variant %d", int(p.Variant))}
	}
	if p.Variant == BuyAndHold {
		return nil
	}
	if math.IsNaN(p.Trigger) || p.Trigger <= 0 || p.Trigger >= 1 {
		return &domain.ConfigError{Field: "trigger", Reason: fmt.Sprintf("%v must be in (0, 1)", p.Trigger)}
	}
	if math.IsNaN(p.ProfitSharing) || math.IsInf(p.ProfitSharing, 0) || p.ProfitSharing < 0 {
		return &domain.ConfigError{Field: "profit_sharing", Reason: fmt.Sprintf("%v must be a finite value >= 0", p.ProfitSharing)}
	}
	if p.FillMode != FillGap && p.FillMode != FillLimit {
		return &domain.ConfigError{Field: "fill_mode", Reason: fmt.Sprintf("unknown fill mode %d", int(p.FillMode))}
	}
	if p.GatedUnwind != UnwindAtATH && p.GatedUnwind != UnwindAtBracket {
		return &domain.ConfigError{Field: "gated_unwind", Reason: fmt.Sprintf("unknown mode %d", int(p.GatedUnwind))}
	}
	return nil
}

// ID renders the parameters as a short identifier, e.g. "sd-8.00,50" for a
// Standard run with an SD-8 trigger and 50% profit sharing. ParseAlgorithmID
// of the result reproduces the trigger.
func (p Params) ID() string {
	if p.Variant == BuyAndHold {
		return "buy-and-hold"
	}
	prefix := map[Variant]string{ATHOnly: "ath-only", Standard: "sd", ATHGatedSell: "sd-ath-sell"}[p.Variant]
	return fmt.Sprintf("%s-%s,%s", prefix, sdnLabel(p.Trigger), strconv.FormatFloat(p.ProfitSharing*100, 'f', -1, 64))
}

// sdnLabel formats the SD-N of trigger t with two decimals when that
// reproduces t, and with full precision otherwise.
func sdnLabel(t float64) string {
	n := math.Log(2) / math.Log1p(t)
	if short := math.Round(n*100) / 100; math.Abs(TriggerFromSDN(short)-t) <= 1e-12*t {
		return strconv.FormatFloat(short, 'f', 2, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// ParseAlgorithmID parses the compact identifiers used by batch
// configuration and the command line:
//
//	buy-and-hold
//	sd8            Standard, SD-8, default profit sharing
//	sd-8,50        Standard, SD-8, 50% profit sharing
//	ath-only-8     ATHOnly, SD-8
//	sd-ath-sell-8,75
func ParseAlgorithmID(id string) (Params, error) {
	s := strings.ToLower(strings.TrimSpace(id))
	if s == "buy-and-hold" || s == "bh" {
		return Params{Variant: BuyAndHold}, nil
	}

	var p Params
	var rest string
	switch {
	case strings.HasPrefix(s, "sd-ath-sell"):
		p.Variant, rest = ATHGatedSell, strings.TrimPrefix(s, "sd-ath-sell")
	case strings.HasPrefix(s, "ath-only"):
		p.Variant, rest = ATHOnly, strings.TrimPrefix(s, "ath-only")
	case strings.HasPrefix(s, "sd"):
		p.Variant, rest = Standard, strings.TrimPrefix(s, "sd")
	default:
		return Params{}, &domain.ConfigError{Field: "algorithm", Reason: fmt.Sprintf("unknown algorithm id %q", id)}
	}
	rest = strings.TrimPrefix(rest, "-")

	nStr, psStr, hasPS := strings.Cut(rest, ",")
	n, err := strconv.ParseFloat(nStr, 64)
	if err != nil || n <= 0 {
		return Params{}, &domain.ConfigError{Field: "algorithm", Reason: fmt.Sprintf("bad SD-N in %q", id)}
	}
	p.Trigger = TriggerFromSDN(n)
	p.ProfitSharing = DefaultProfitSharing
	if hasPS {
		pct, err := strconv.ParseFloat(psStr, 64)
		if err != nil {
			return Params{}, &domain.ConfigError{Field: "algorithm", Reason: fmt.Sprintf("bad profit sharing in %q", id)}
		}
		p.ProfitSharing = pct / 100
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
