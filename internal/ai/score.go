package ai

import "github.com/critiquewire/critiquewire/internal/model"

// overallScore aggregates per-kind quality signals into one 0..1 score over
// the kinds that actually produced output. Kinds without a natural quality
// signal (claims, summary) contribute a fixed completeness credit.
func overallScore(r *model.AnalysisResult, requested []model.AnalysisKind) float64 {
	var total float64
	var n int

	for _, kind := range requested {
		if !r.Has(kind) {
			continue
		}
		n++
		switch kind {
		case model.KindBias:
			// Less bias reads as higher quality.
			total += 1 - r.Bias.Score
		case model.KindSentiment:
			total += r.Sentiment.Confidence
		case model.KindCredibility:
			total += r.Credibility.Score
		case model.KindFactCheck:
			total += verdictScore(r.FactCheck)
		case model.KindClaims, model.KindSummary:
			total += 1
		}
	}

	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func verdictScore(verdicts []model.FactCheckVerdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	var supported int
	for _, v := range verdicts {
		if v.Verdict == "supported" {
			supported++
		}
	}
	return float64(supported) / float64(len(verdicts))
}
