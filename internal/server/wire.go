package server

import "github.com/meridiancompliance/opcheck/internal/models"

// wireBody renders an EvidenceRow into the frozen response-body key set
// consumed by downstream systems. These key names are a stable wire
// contract and must not change independently of client agreement.
func wireBody(row *models.EvidenceRow) map[string]interface{} {
	return map[string]interface{}{
		"Sanctions Name": row.ResultBlob.MatchedSubject,
		"Birth Date":     row.DateOfBirth,
		"Regime":         row.ResultBlob.Regime,
		"Position":       row.ResultBlob.Position,
		"Topics":         row.ResultBlob.Topics,
		"Is PEP":         row.PEPFlag,
		"Is Sanctioned":  row.Status == models.StatusFailSanction,
		"Confidence":     row.Confidence,
		"Score":          row.Score,
		"Risk Level":     row.RiskLevel,
		"Top Matches":    row.ResultBlob.TopMatches,
		"Match Found":    row.Status != models.StatusCleared,
		"Check Summary":  row.ResultBlob.CheckSummary,
		"entity_key":     row.Fingerprint,
	}
}
