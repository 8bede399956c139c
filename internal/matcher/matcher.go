// Package matcher implements the default Matcher collaborator (§4.5): a
// deterministic, I/O-free token-set similarity search against a watchlist
// snapshot, producing a decision record.
//
// No fuzzy-matching library appears anywhere in the reference pack this
// module was grounded on, and the algorithm below is small, precisely
// specified, and bounded — see DESIGN.md for why it is implemented directly
// rather than wired to a third-party dependency.
package matcher

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/meridiancompliance/opcheck/internal/ekd"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
)

// ErrUnavailable is returned when the watchlist handle cannot be opened.
var ErrUnavailable = errors.New("matcher: watchlist unavailable")

// Thresholds configures the decision/suggestion score cutoffs (§4.5).
type Thresholds struct {
	MatchThreshold      float64
	SuggestionThreshold float64
}

// DefaultThresholds are the out-of-the-box match/suggestion cutoffs.
var DefaultThresholds = Thresholds{MatchThreshold: 75, SuggestionThreshold: 60}

// regimeAllowList is the source attribution allow-list for failing outcomes.
var regimeAllowList = map[string]bool{
	"UN":                     true,
	"OFAC":                   true,
	"HM Treasury":            true,
	"HMT":                    true,
	"OFSI":                   true,
	"EU Council":             true,
	"EU Financial Sanctions": true,
}

const pepSourceLabel = "Consolidated PEP Dataset"

// TokenSetMatcher is the default, stdlib-only Matcher implementation.
type TokenSetMatcher struct {
	thresholds Thresholds
}

// New creates a TokenSetMatcher with the given thresholds.
func New(thresholds Thresholds) *TokenSetMatcher {
	return &TokenSetMatcher{thresholds: thresholds}
}

type candidate struct {
	row   models.WatchlistRow
	score float64
}

// Screen implements interfaces.Matcher.
func (m *TokenSetMatcher) Screen(_ context.Context, input models.ScreeningInput, snapshot models.WatchlistSnapshot, searchBackend string) (interfaces.Decision, error) {
	if snapshot.Sanctions == nil && snapshot.PEPs == nil {
		return interfaces.Decision{}, ErrUnavailable
	}

	normInputName, err := ekd.NormalizeName(input.Name)
	if err != nil {
		return interfaces.Decision{}, err
	}
	inputTokens := tokenSet(normInputName)
	inputYear := ekd.NormalizeDOBYear(input.DOB)
	inputFullDOB := ekd.NormalizeDOB(input.DOB)

	sanctionCandidates, sanctionSuggestions := m.passOver(snapshot.Sanctions, input, inputTokens, inputFullDOB, inputYear)
	pepCandidates, pepSuggestions := m.passOver(snapshot.PEPs, input, inputTokens, inputFullDOB, inputYear)

	top := mergeSuggestions(sanctionSuggestions, sanctionCandidates, true, false)
	top = append(top, mergeSuggestions(pepSuggestions, pepCandidates, false, true)...)
	sort.Slice(top, func(i, j int) bool { return top[i].Score > top[j].Score })

	decision := interfaces.Decision{ResultBlob: models.ResultBlob{
		TopMatches:    top,
		SearchBackend: searchBackend,
	}}

	screenedAt := time.Now()

	switch {
	case len(sanctionCandidates) > 0:
		best := bestOf(sanctionCandidates)
		decision.Status = models.StatusFailSanction
		decision.RiskLevel = models.RiskHighRisk
		decision.Score = best.score
		decision.Confidence = confidenceBand(best.score)
		decision.UKSanctionsFlag = best.row.IsUK
		decision.PEPFlag = len(pepCandidates) > 0
		decision.ResultBlob.MatchedSubject = best.row.Name
		decision.ResultBlob.Regime = best.row.Regime
		decision.ResultBlob.Position = best.row.Position
		decision.ResultBlob.Topics = best.row.Topics
		decision.ResultBlob.Sources = sourcesFor(append(sanctionCandidates, pepCandidates...))
		decision.ResultBlob.CheckSummary = models.CheckSummary{
			Status: decision.Status, Source: regimeLabel(best.row), Date: screenedAt,
		}
	case len(pepCandidates) > 0:
		best := bestOf(pepCandidates)
		decision.Status = models.StatusFailPEP
		decision.RiskLevel = models.RiskMediumRisk
		decision.Score = best.score
		decision.Confidence = confidenceBand(best.score)
		decision.PEPFlag = true
		decision.ResultBlob.MatchedSubject = best.row.Name
		decision.ResultBlob.Regime = best.row.Regime
		decision.ResultBlob.Position = best.row.Position
		decision.ResultBlob.Topics = best.row.Topics
		decision.ResultBlob.Sources = sourcesFor(pepCandidates)
		decision.ResultBlob.CheckSummary = models.CheckSummary{
			Status: decision.Status, Source: regimeLabel(best.row), Date: screenedAt,
		}
	default:
		decision.Status = models.StatusCleared
		decision.RiskLevel = models.RiskCleared
		decision.Confidence = models.ConfidenceVeryHigh
		decision.Score = 0
		decision.ResultBlob.CheckSummary = models.CheckSummary{Status: decision.Status, Date: screenedAt}
	}

	return decision, nil
}

// passOver filters by entity type, scores every row, and partitions into
// decision candidates (>= MatchThreshold, DOB-compatible) and advisory
// suggestions (>= SuggestionThreshold, DOB unfiltered).
func (m *TokenSetMatcher) passOver(rows []models.WatchlistRow, input models.ScreeningInput, inputTokens map[string]bool, inputFullDOB, inputYear string) (decisionCandidates, suggestions []candidate) {
	for _, row := range rows {
		if !sameEntityClass(row.EntityType, input.EntityType) {
			continue
		}
		normRowName, err := ekd.NormalizeName(row.Name)
		if err != nil {
			continue
		}
		score := tokenSetSimilarity(inputTokens, tokenSet(normRowName))

		if score >= m.thresholds.SuggestionThreshold {
			suggestions = append(suggestions, candidate{row: row, score: score})
		}
		if score >= m.thresholds.MatchThreshold && dobCompatible(row.DOB, inputFullDOB, inputYear) {
			decisionCandidates = append(decisionCandidates, candidate{row: row, score: score})
		}
	}
	return decisionCandidates, suggestions
}

func sameEntityClass(rowType, inputType string) bool {
	if inputType == "" {
		return true
	}
	return strings.EqualFold(rowType, inputType)
}

// dobCompatible reports whether a candidate row's DOB is compatible with the
// caller-supplied DOB. No caller DOB means no constraint (§4.5).
func dobCompatible(rowDOB, inputFullDOB, inputYear string) bool {
	if inputFullDOB == "" && inputYear == "" {
		return true
	}
	rowFull := ekd.NormalizeDOB(rowDOB)
	rowYear := ekd.NormalizeDOBYear(rowDOB)

	if inputFullDOB != "" {
		if rowFull != "" {
			return rowFull == inputFullDOB
		}
		// Query has a full date but the row only has a year — fall back to
		// year compatibility rather than rejecting outright.
		return rowYear != "" && rowYear == inputFullDOB[:4]
	}
	// Year-only query: match on year regardless of row precision.
	return rowYear != "" && rowYear == inputYear
}

func bestOf(candidates []candidate) candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return best
}

func confidenceBand(score float64) string {
	switch {
	case score >= 90:
		return models.ConfidenceHigh
	case score >= 80:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func sourcesFor(candidates []candidate) []models.MatchedSource {
	seen := map[string]bool{}
	var sources []models.MatchedSource
	for _, c := range candidates {
		label := regimeLabel(c.row)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		sources = append(sources, models.MatchedSource{Label: label, Regime: c.row.Regime})
	}
	return sources
}

func regimeLabel(row models.WatchlistRow) string {
	if row.IsPEP {
		return pepSourceLabel
	}
	if regimeAllowList[row.Regime] {
		return row.Regime
	}
	return ""
}

func mergeSuggestions(suggestions, decisionCandidates []candidate, isSanction, isPEP bool) []models.TopMatch {
	inDecision := map[string]bool{}
	for _, c := range decisionCandidates {
		inDecision[c.row.RowID] = true
	}
	var out []models.TopMatch
	for _, c := range suggestions {
		out = append(out, models.TopMatch{
			Name:       c.row.Name,
			Score:      c.score,
			Regime:     c.row.Regime,
			IsPEP:      isPEP || c.row.IsPEP,
			IsSanction: isSanction && !c.row.IsPEP,
		})
	}
	return out
}

// tokenSet splits a normalized name into a unique lowercase token set.
func tokenSet(normalized string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Fields(normalized) {
		set[tok] = true
	}
	return set
}

// tokenSetSimilarity scores two token sets in [0, 100] using a Jaccard-style
// overlap measure over the token intersection/union, weighted to reward near-
// complete coverage of the shorter set — a robust measure for name matching
// where token order and minor omissions are common.
func tokenSetSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	coverage := float64(intersection) / float64(minLen)
	jaccard := float64(intersection) / float64(len(a)+len(b)-intersection)
	return (coverage*0.7 + jaccard*0.3) * 100
}
