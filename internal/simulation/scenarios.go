package simulation

import (
	"math"
	"sort"

	"github.com/strategichq/compass/internal/domain"
)

// bandSpec names the three outcome bands cut at the empirical quartiles.
var bandSpecs = []struct {
	name      string
	risk      domain.RiskLevel
	narrative string
}{
	{
		name:      "Conservative",
		risk:      domain.RiskHigh,
		narrative: "Downside outcomes where low-confidence factors resolve unfavorably. Plan for a defensible entry with staged commitments.",
	},
	{
		name:      "Base",
		risk:      domain.RiskMedium,
		narrative: "The central band of outcomes. Scores track the evidence-weighted baseline with moderate variance.",
	},
	{
		name:      "Aggressive",
		risk:      domain.RiskLow,
		narrative: "Upside outcomes where uncertain factors break favorably. Worth pursuing only with the key drivers de-risked.",
	},
}

// keyDriverCount bounds how many drivers each scenario names.
const keyDriverCount = 3

// buildScenarios splits the valid samples into conservative, base and
// aggressive bands at the 25th and 75th composite percentiles. Probabilities
// are exact count fractions, so they sum to 1 across the set.
func buildScenarios(valid []sample, p25, p75 float64) []domain.Scenario {
	if len(valid) == 0 {
		return nil
	}

	type bandAccum struct {
		count      int
		sum        float64
		low, high  float64
		driverDevs [domain.DriverCount]float64
	}
	bands := make([]bandAccum, len(bandSpecs))
	for i := range bands {
		bands[i].low = math.Inf(1)
		bands[i].high = math.Inf(-1)
	}

	for _, smp := range valid {
		idx := 1
		switch {
		case smp.composite < p25:
			idx = 0
		case smp.composite > p75:
			idx = 2
		}
		b := &bands[idx]
		b.count++
		b.sum += smp.composite
		b.low = math.Min(b.low, smp.composite)
		b.high = math.Max(b.high, smp.composite)
		for d, dev := range smp.drivers {
			b.driverDevs[d] += math.Abs(dev)
		}
	}

	scenarios := make([]domain.Scenario, 0, len(bandSpecs))
	for i, spec := range bandSpecs {
		b := bands[i]
		if b.count == 0 {
			continue
		}
		scenarios = append(scenarios, domain.Scenario{
			Name:        spec.name,
			Probability: float64(b.count) / float64(len(valid)),
			KPIs: map[string]float64{
				"compositeScore": b.sum / float64(b.count),
				"scoreFloor":     b.low,
				"scoreCeiling":   b.high,
			},
			Narrative:  spec.narrative,
			KeyDrivers: topDrivers(b.driverDevs, b.count),
			RiskLevel:  spec.risk,
		})
	}
	return scenarios
}

// topDrivers ranks drivers by mean absolute deviation within a band and
// returns the top few names. Ties break on canonical driver order so output
// is deterministic.
func topDrivers(devs [domain.DriverCount]float64, count int) []string {
	type ranked struct {
		idx int
		dev float64
	}
	all := make([]ranked, 0, len(devs))
	for i, d := range devs {
		all = append(all, ranked{idx: i, dev: d / float64(count)})
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dev > all[b].dev })

	n := keyDriverCount
	if n > len(all) {
		n = len(all)
	}
	names := make([]string, 0, n)
	for _, r := range all[:n] {
		names = append(names, string(driverOrder[r.idx]))
	}
	return names
}
