package domain

import (
	"errors"
	"strings"
)

// Label is one of the four triage categories. The set is closed: parsing
// either yields exactly one of these or fails with ErrInvalidLabel.
type Label string

const (
	// LabelStandardFAQ: answerable from the standard FAQ.
	LabelStandardFAQ Label = "STANDARD_FAQ"
	// LabelRequiresRAG: needs a retrieval-augmented response.
	LabelRequiresRAG Label = "REQUIRES_RAG"
	// LabelCRMAddition: sender should be added to the CRM as a new contact.
	LabelCRMAddition Label = "CRM_ADDITION"
	// LabelNeedsInfo: more information needed from the sender first.
	LabelNeedsInfo Label = "NEEDS_INFO"
)

// AllLabels lists the taxonomy in prompt order.
var AllLabels = []Label{LabelStandardFAQ, LabelRequiresRAG, LabelCRMAddition, LabelNeedsInfo}

// ParseLabel extracts the single taxonomy label from a raw model response.
// The response may carry surrounding prose or quotes; a response that
// mentions zero or more than one distinct label is ambiguous and fails with
// ErrInvalidLabel rather than being coerced to a default.
func ParseLabel(raw string) (Label, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return "", WrapError(ErrInvalidLabel, "parse label", errors.New("empty response"))
	}

	var found []Label
	for _, label := range AllLabels {
		if containsToken(normalized, string(label)) {
			found = append(found, label)
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", WrapError(ErrInvalidLabel, "parse label", errors.New("no taxonomy label in response"))
	default:
		return "", WrapError(ErrInvalidLabel, "parse label", errors.New("multiple taxonomy labels in response"))
	}
}

// containsToken matches label as a whole token so that e.g. a hypothetical
// "STANDARD_FAQ_V2" would not count as STANDARD_FAQ.
func containsToken(s, token string) bool {
	for idx := strings.Index(s, token); idx >= 0; {
		before := idx == 0 || !isTokenChar(s[idx-1])
		afterIdx := idx + len(token)
		after := afterIdx >= len(s) || !isTokenChar(s[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(s[idx+1:], token)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isTokenChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
