package strategy

import (
	"errors"
	"math"
	"testing"

	"voltalpha/internal/domain"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		field   string
		wantErr bool
	}{
		{"buy and hold ignores trigger", Params{Variant: BuyAndHold}, "", false},
		{"standard", Params{Variant: Standard, Trigger: 0.1, ProfitSharing: 0.5}, "", false},
		{"zero profit sharing", Params{Variant: Standard, Trigger: 0.1}, "", false},
		{"profit sharing above one", Params{Variant: ATHGatedSell, Trigger: 0.1, ProfitSharing: 2}, "", false},
		{"zero trigger", Params{Variant: Standard, ProfitSharing: 0.5}, "trigger", true},
		{"trigger of one", Params{Variant: Standard, Trigger: 1, ProfitSharing: 0.5}, "trigger", true},
		{"nan trigger", Params{Variant: ATHOnly, Trigger: math.NaN()}, "trigger", true},
		{"negative profit sharing", Params{Variant: Standard, Trigger: 0.1, ProfitSharing: -0.1}, "profit_sharing", true},
		{"infinite profit sharing", Params{Variant: Standard, Trigger: 0.1, ProfitSharing: math.Inf(1)}, "profit_sharing", true},
		{"unknown variant", Params{Variant: Variant(42), Trigger: 0.1}, "algorithm", true},
		{"unknown fill mode", Params{Variant: Standard, Trigger: 0.1, FillMode: FillMode(9)}, "fill_mode", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not *domain.ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestParamsID(t *testing.T) {
	tr := TriggerFromSDN(8)
	tests := []struct {
		p    Params
		want string
	}{
		{Params{Variant: BuyAndHold}, "buy-and-hold"},
		{Params{Variant: Standard, Trigger: tr, ProfitSharing: 0.5}, "sd-8.00,50"},
		{Params{Variant: ATHOnly, Trigger: tr, ProfitSharing: 0.5}, "ath-only-8.00,50"},
		{Params{Variant: ATHGatedSell, Trigger: tr, ProfitSharing: 0.75}, "sd-ath-sell-8.00,75"},
		{Params{Variant: Standard, Trigger: tr, ProfitSharing: 1.25}, "sd-8.00,125"},
	}
	for _, tt := range tests {
		if got := tt.p.ID(); got != tt.want {
			t.Errorf("ID() = %q, want %q", got, tt.want)
		}
	}
}

func TestParamsID_RoundTrip(t *testing.T) {
	seen := make(map[string]float64)
	for _, tr := range []float64{TriggerFromSDN(8), TriggerFromSDN(12.5), 0.1, 0.1000001, 0.05} {
		p := Params{Variant: Standard, Trigger: tr, ProfitSharing: 0.5}
		id := p.ID()
		back, err := ParseAlgorithmID(id)
		if err != nil {
			t.Fatalf("ParseAlgorithmID(%q): %v", id, err)
		}
		if math.Abs(back.Trigger-tr) > 1e-12*tr {
			t.Errorf("ParseAlgorithmID(%q).Trigger = %v, want %v", id, back.Trigger, tr)
		}
		if prev, dup := seen[id]; dup {
			t.Errorf("triggers %v and %v share id %q", prev, tr, id)
		}
		seen[id] = tr
	}
	if id := (Params{Variant: Standard, Trigger: TriggerFromSDN(12.5), ProfitSharing: 0.5}).ID(); id != "sd-12.50,50" {
		t.Errorf("ID() = %q, want sd-12.50,50", id)
	}
}

func TestParseAlgorithmID(t *testing.T) {
	tests := []struct {
		id      string
		variant Variant
		sdn     float64
		ps      float64
	}{
		{"buy-and-hold", BuyAndHold, 0, 0},
		{"BH", BuyAndHold, 0, 0},
		{"sd8", Standard, 8, DefaultProfitSharing},
		{"sd-8,50", Standard, 8, 0.5},
		{"sd-12,0", Standard, 12, 0},
		{"ath-only-8", ATHOnly, 8, DefaultProfitSharing},
		{"sd-ath-sell-8,75", ATHGatedSell, 8, 0.75},
		{"sd-8.00,50", Standard, 8, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := ParseAlgorithmID(tt.id)
			if err != nil {
				t.Fatalf("ParseAlgorithmID(%q): %v", tt.id, err)
			}
			if p.Variant != tt.variant {
				t.Errorf("Variant = %v, want %v", p.Variant, tt.variant)
			}
			if tt.variant == BuyAndHold {
				return
			}
			if want := TriggerFromSDN(tt.sdn); math.Abs(p.Trigger-want) > 1e-12 {
				t.Errorf("Trigger = %v, want %v", p.Trigger, want)
			}
			if math.Abs(p.ProfitSharing-tt.ps) > 1e-12 {
				t.Errorf("ProfitSharing = %v, want %v", p.ProfitSharing, tt.ps)
			}
		})
	}
}

func TestParseAlgorithmID_Invalid(t *testing.T) {
	for _, id := range []string{"", "momentum-3", "sd", "sd-x", "sd-8,abc", "sd-0", "sd--8", "sd-8,-10"} {
		p, err := ParseAlgorithmID(id)
		if err == nil {
			t.Errorf("ParseAlgorithmID(%q) = %+v, want error", id, p)
			continue
		}
		if p != (Params{}) {
			t.Errorf("ParseAlgorithmID(%q) returned %+v alongside error", id, p)
		}
	}
}

func TestParseVariant(t *testing.T) {
	for name, want := range map[string]Variant{
		"buy-and-hold":   BuyAndHold,
		"ath-only":       ATHOnly,
		"Standard":       Standard,
		"ath-gated-sell": ATHGatedSell,
	} {
		got, err := ParseVariant(name)
		if err != nil {
			t.Errorf("ParseVariant(%q): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseVariant(%q) = %v, want %v", name, got, want)
		}
		if got.String() != want.String() {
			t.Errorf("String() = %q, want %q", got.String(), want.String())
		}
	}
	if _, err := ParseVariant("momentum"); err == nil {
		t.Error("ParseVariant(momentum) succeeded, want error")
	}
}

func TestParseFillModeAndGatedUnwind(t *testing.T) {
	if m, err := ParseFillMode(""); err != nil || m != FillGap {
		t.Errorf("ParseFillMode(\"\") = %v, %v, want gap", m, err)
	}
	if m, err := ParseFillMode("limit"); err != nil || m != FillLimit {
		t.Errorf("ParseFillMode(limit) = %v, %v, want limit", m, err)
	}
	if _, err := ParseFillMode("market"); err == nil {
		t.Error("ParseFillMode(market) succeeded, want error")
	}
	if g, err := ParseGatedUnwind("bracket"); err != nil || g != UnwindAtBracket {
		t.Errorf("ParseGatedUnwind(bracket) = %v, %v, want bracket", g, err)
	}
	if g, err := ParseGatedUnwind(""); err != nil || g != UnwindAtATH {
		t.Errorf("ParseGatedUnwind(\"\") = %v, %v, want ath", g, err)
	}
	if _, err := ParseGatedUnwind("never"); err == nil {
		t.Error("ParseGatedUnwind(never) succeeded, want error")
	}
}
