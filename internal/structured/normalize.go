package structured

import (
	"math"

	"github.com/ahrav/go-fightlens/internal/domain"
)

// Percent is the target total of a normalized distribution.
const Percent = 100

// Normalize rescales a distribution so its values sum to exactly 100.
//
// Empty input, an all-zero total, a total of exactly 100, and input holding
// an infinite value are returned unchanged. Otherwise each value is scaled by 100/sum and rounded to the
// nearest integer; the rounding residual is applied to the single largest
// bucket (first one on ties). Negative values are treated as zero.
// The input slice is never modified. Normalize is idempotent.
func Normalize(items domain.Distribution) domain.Distribution {
	if len(items) == 0 {
		return items
	}

	out := items.Clone()
	var sum, peak float64
	for i := range out {
		if out[i].Value < 0 || math.IsNaN(out[i].Value) {
			out[i].Value = 0
		}
		if math.IsInf(out[i].Value, 0) {
			return out
		}
		sum += out[i].Value
		peak = math.Max(peak, out[i].Value)
	}

	if peak == 0 || sum == Percent {
		return out
	}

	// Sum relative to the peak so finite values near MaxFloat64 cannot
	// overflow the total.
	var relSum float64
	for i := range out {
		relSum += out[i].Value / peak
	}
	scale := Percent / relSum

	var total float64
	largest := 0
	for i := range out {
		out[i].Value = math.Round(out[i].Value / peak * scale)
		total += out[i].Value
		if out[i].Value > out[largest].Value {
			largest = i
		}
	}

	residual := Percent - total
	if out[largest].Value+residual >= 0 {
		out[largest].Value += residual
		return out
	}

	// Many tiny buckets can all round up past the largest one's capacity;
	// spread the excess one unit at a time across the biggest buckets.
	for residual < 0 {
		idx := largestIndex(out)
		out[idx].Value--
		residual++
	}
	return out
}

func largestIndex(d domain.Distribution) int {
	idx := 0
	for i := range d {
		if d[i].Value > d[idx].Value {
			idx = i
		}
	}
	return idx
}

// NormalizeAll applies Normalize to every distribution of the map in place.
func NormalizeAll(dists map[string]domain.Distribution) {
	for name, d := range dists {
		dists[name] = Normalize(d)
	}
}
