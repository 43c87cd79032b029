// Package score computes official session scores from confirmed round
// aggregates.
//
// The formula is deliberately simple: a linear accuracy reward that
// dominates, plus a capped time bonus that decays by one point per
// second of total play. The bonus caps at 300 so speed alone can never
// outweigh accuracy.
package score

import "math"

// Scoring constants.
const (
	pointsPerCorrect = 100
	timeBonusCap     = 300
	millisPerSecond  = 1000
)

// MaxScore returns the highest score reachable for a session with the
// given round count.
func MaxScore(roundCount int) int {
	return roundCount*pointsPerCorrect + timeBonusCap
}

// Calculate returns the official score for a session.
//
// score = max(0, correctCount*100 + round(max(0, 300 - totalElapsedMs/1000)))
//
// Pure and total: any input yields a score, never an error.
func Calculate(correctCount int, totalElapsedMs int64) int {
	bonus := timeBonusCap - float64(totalElapsedMs)/millisPerSecond
	if bonus < 0 {
		bonus = 0
	}
	s := correctCount*pointsPerCorrect + int(math.Round(bonus))
	if s < 0 {
		return 0
	}
	return s
}
