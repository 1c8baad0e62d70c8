package detect

import "math"

// maxMouseSamples caps the pointer trace considered per request so a hostile
// client cannot submit an unbounded payload.
const maxMouseSamples = 200

// ScoreBehavior scores client-submitted interaction telemetry. The score
// starts neutral at 0.5: absent telemetry is not itself suspicious. The
// function is pure and deterministic; the caller decides whether to log.
func ScoreBehavior(t *Telemetry, formFillFastMs int64) float64 {
	score := 0.5
	if t == nil {
		return score
	}

	if movementsTooRegular(t.MouseMovements) {
		score += 0.3
	}
	if t.ClickSpeed != nil && *t.ClickSpeed < 50 {
		score += 0.2
	}
	if t.FormFillTime != nil && *t.FormFillTime < float64(formFillFastMs) {
		score += 0.2
	}

	return clamp01(score)
}

// movementsTooRegular reports whether a pointer trace of more than five
// samples is perfectly linear to integer precision: every successive delta
// within one unit of the previous delta on both axes. Scripted interpolation
// produces this; human jitter does not.
func movementsTooRegular(samples []Point) bool {
	if len(samples) > maxMouseSamples {
		samples = samples[:maxMouseSamples]
	}
	if len(samples) <= 5 {
		return false
	}

	var prevDX, prevDY float64
	havePrev := false
	for i := 1; i < len(samples); i++ {
		dx := samples[i].X - samples[i-1].X
		dy := samples[i].Y - samples[i-1].Y
		if havePrev {
			if math.Abs(dx-prevDX) > 1 || math.Abs(dy-prevDY) > 1 {
				return false
			}
		}
		prevDX, prevDY = dx, dy
		havePrev = true
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
