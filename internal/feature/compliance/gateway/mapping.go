package gateway

import (
	"strings"

	"compliance_screener/internal/feature/compliance/domain/entity"
)

// StatusMappingVersion identifies the provider vocabulary table below.
// It is part of every cache key, so bumping it retires cached verdicts.
const StatusMappingVersion = "v1"

type statusRule struct {
	verdict entity.Verdict
	reason  entity.ReasonCode
}

// statusTable translates provider status strings into verdicts.
// Anything not listed maps to unknown.
var statusTable = map[string]statusRule{
	"compliant":     {verdict: entity.VerdictCompliant},
	"pass":          {verdict: entity.VerdictCompliant},
	"halal":         {verdict: entity.VerdictCompliant},
	"not-compliant": {verdict: entity.VerdictNonCompliant, reason: entity.ReasonNonCompliant},
	"non-compliant": {verdict: entity.VerdictNonCompliant, reason: entity.ReasonNonCompliant},
	"fail":          {verdict: entity.VerdictNonCompliant, reason: entity.ReasonNonCompliant},
	"haram":         {verdict: entity.VerdictNonCompliant, reason: entity.ReasonNonCompliant},
	"questionable":  {verdict: entity.VerdictUnknown, reason: entity.ReasonQuestionable},
	"doubtful":      {verdict: entity.VerdictUnknown, reason: entity.ReasonQuestionable},
}

// MapStatus returns the verdict for a raw provider status. ok is false when
// the status is not in the table; the verdict is then unknown.
func MapStatus(raw string) (entity.Verdict, entity.ReasonCode, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")
	rule, ok := statusTable[key]
	if !ok {
		return entity.VerdictUnknown, entity.ReasonUnrecognizedStatus, false
	}
	return rule.verdict, rule.reason, true
}
