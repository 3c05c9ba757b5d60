package validate

import (
	"errors"

	"go.uber.org/zap"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// Audit labels every claim and aggregates the outcome together with the
// rendered gaps. It never stops on a bad claim and does not touch the graph.
func (v *Validator) Audit(claims []model.Claim, lookup model.TraceLookup, gaps []model.Gap) (model.AuditReport, []model.LabelingResult, error) {
	results := make([]model.LabelingResult, len(claims))
	for i, c := range claims {
		res, err := v.LabelClaim(c, lookup)
		var ferr *FabricationError
		if err != nil && !errors.As(err, &ferr) {
			return model.AuditReport{}, nil, err
		}
		results[i] = res
	}
	return v.Summarize(claims, results, gaps), results, nil
}

// Summarize builds the audit report from labeling results already computed,
// in claim order. Every rejected claim contributes an EVIDENTIAL void after
// the supplied gaps.
func (v *Validator) Summarize(claims []model.Claim, results []model.LabelingResult, gaps []model.Gap) model.AuditReport {
	report := model.AuditReport{
		TotalClaims: len(results),
		LabelSummary: map[model.Label]int{
			model.LabelVerified:    0,
			model.LabelPlausible:   0,
			model.LabelSpeculative: 0,
		},
		Gaps:    make([]model.Void, 0, len(gaps)),
		Details: make([]model.ClaimAudit, 0, len(results)),
	}

	for _, g := range gaps {
		report.Gaps = append(report.Gaps, v.RenderVoid(g))
	}

	byID := make(map[string]model.Claim, len(claims))
	for _, c := range claims {
		byID[c.ID] = c
	}

	var callerLabeled, matched int
	for _, res := range results {
		if res.OriginalLabel != model.LabelNone {
			callerLabeled++
			if !res.Rejected && !res.LabelChanged {
				matched++
			}
		}

		detail := model.ClaimAudit{
			ClaimID:    res.ClaimID,
			Rejected:   res.Rejected,
			Label:      res.AssignedLabel,
			Violations: res.Violations,
		}
		switch {
		case res.Rejected:
			report.RejectedClaims++
			report.FabricationDetected = true
			claim, ok := byID[res.ClaimID]
			if !ok {
				claim = model.Claim{ID: res.ClaimID}
			}
			report.Gaps = append(report.Gaps, v.RenderVoid(RejectionGap(claim)))
		case len(res.Violations) == 0:
			report.ValidClaims++
			detail.Valid = true
			report.LabelSummary[res.AssignedLabel]++
		default:
			report.FlaggedClaims++
			report.LabelSummary[res.AssignedLabel]++
		}
		report.Details = append(report.Details, detail)
	}

	report.TransparencyScore = 1.0
	if callerLabeled > 0 {
		report.TransparencyScore = float64(matched) / float64(callerLabeled)
	}

	v.logger.Info("audit complete",
		zap.Int("total", report.TotalClaims),
		zap.Int("valid", report.ValidClaims),
		zap.Int("flagged", report.FlaggedClaims),
		zap.Int("rejected", report.RejectedClaims),
		zap.Int("gaps", len(report.Gaps)))
	return report
}
