package risk

// Summary aggregates a set of scored exposures by severity.
type Summary struct {
	TotalExposures int     `json:"total_exposures"`
	Critical       int     `json:"critical"`
	High           int     `json:"high"`
	Medium         int     `json:"medium"`
	Low            int     `json:"low"`
	Info           int     `json:"info"`
	AverageScore   float64 `json:"average_score"`
}

// Summarize counts scores per severity band and averages them.
func Summarize(scores []float64) Summary {
	var s Summary
	var sum float64
	for _, score := range scores {
		s.TotalExposures++
		sum += score
		switch SeverityFor(score) {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		default:
			s.Info++
		}
	}
	if s.TotalExposures > 0 {
		s.AverageScore = round2(sum / float64(s.TotalExposures))
	}
	return s
}
