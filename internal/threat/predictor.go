package threat

import (
	"time"

	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/scan"
)

// Predictor is the default Analyzer. It holds no per-call state and is safe
// for concurrent use.
type Predictor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewPredictor returns a Predictor. A nil logger disables logging.
func NewPredictor(logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{logger: logger, now: time.Now}
}

// Analyze implements Analyzer. A nil bundle is treated as empty.
func (p *Predictor) Analyze(b *scan.Bundle) *Report {
	f := Extract(b)
	total, factors := score(f)
	cat := classify(total, f)
	level := levelFor(total)
	conf := confidence(f)

	r := &Report{
		OverallRiskScore: total,
		ThreatLevel:      level,
		ThreatCategory:   cat,
		Confidence:       conf,
		Factors:          factors,
		Recommendations:  recommendations(cat, f),
		Narrative:        narrative(total, cat, f, factors),
		Features:         f,
		ModelVersion:     ModelVersion,
		AnalyzedAt:       p.now().UTC(),
	}

	p.logger.Debug("threat: analysis complete",
		zap.Int("score", total),
		zap.String("level", string(level)),
		zap.String("category", string(cat)),
		zap.Float64("confidence", conf),
		zap.Int("factors", len(factors)),
	)
	return r
}
