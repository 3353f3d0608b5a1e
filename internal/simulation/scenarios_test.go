package simulation

import (
	"math"
	"testing"

	"github.com/strategichq/compass/internal/domain"
)

func TestBuildScenarios(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if s := buildScenarios(nil, 0.4, 0.6); s != nil {
			t.Errorf("expected nil scenarios, got %v", s)
		}
	})

	t.Run("Bands", func(t *testing.T) {
		valid := []sample{
			{composite: 0.20},
			{composite: 0.45},
			{composite: 0.50},
			{composite: 0.55},
			{composite: 0.80},
		}
		scenarios := buildScenarios(valid, 0.40, 0.60)
		if len(scenarios) != 3 {
			t.Fatalf("expected 3 scenarios, got %d", len(scenarios))
		}
		if scenarios[0].Name != "Conservative" || scenarios[0].RiskLevel != domain.RiskHigh {
			t.Errorf("unexpected first scenario: %+v", scenarios[0])
		}
		if scenarios[2].Name != "Aggressive" || scenarios[2].RiskLevel != domain.RiskLow {
			t.Errorf("unexpected last scenario: %+v", scenarios[2])
		}
		if scenarios[0].Probability != 0.2 || scenarios[1].Probability != 0.6 || scenarios[2].Probability != 0.2 {
			t.Errorf("unexpected probabilities: %v %v %v",
				scenarios[0].Probability, scenarios[1].Probability, scenarios[2].Probability)
		}
		base := scenarios[1]
		if base.KPIs["scoreFloor"] != 0.45 || base.KPIs["scoreCeiling"] != 0.55 {
			t.Errorf("unexpected base band KPIs: %v", base.KPIs)
		}
		if math.Abs(base.KPIs["compositeScore"]-0.5) > 1e-9 {
			t.Errorf("base mean %v, want 0.5", base.KPIs["compositeScore"])
		}
	})

	t.Run("EmptyBandSkipped", func(t *testing.T) {
		// Every sample sits inside the quartile cut, so only Base survives.
		valid := []sample{{composite: 0.5}, {composite: 0.5}}
		scenarios := buildScenarios(valid, 0.4, 0.6)
		if len(scenarios) != 1 {
			t.Fatalf("expected only the base scenario, got %d", len(scenarios))
		}
		if scenarios[0].Name != "Base" || scenarios[0].Probability != 1.0 {
			t.Errorf("unexpected scenario: %+v", scenarios[0])
		}
	})
}

func TestTopDrivers(t *testing.T) {
	var devs [domain.DriverCount]float64
	devs[3] = 0.9
	devs[1] = 0.6
	devs[5] = 0.3

	names := topDrivers(devs, 1)
	if len(names) != keyDriverCount {
		t.Fatalf("expected %d drivers, got %d", keyDriverCount, len(names))
	}
	if names[0] != string(driverOrder[3]) || names[1] != string(driverOrder[1]) || names[2] != string(driverOrder[5]) {
		t.Errorf("unexpected ranking: %v", names)
	}

	t.Run("TiesBreakCanonically", func(t *testing.T) {
		var flat [domain.DriverCount]float64
		names := topDrivers(flat, 1)
		for i, n := range names {
			if n != string(driverOrder[i]) {
				t.Errorf("tie at position %d resolved to %s, want %s", i, n, driverOrder[i])
			}
		}
	})
}
