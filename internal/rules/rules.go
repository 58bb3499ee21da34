// Package rules composes the per-field validation chain:
// required, then type coercion, then pattern match. Rules short-circuit for
// one field; the row mapper still evaluates every other field.
package rules

import (
	"fmt"
	"regexp"

	"lead-engine/internal/coerce"
	"lead-engine/internal/schema"
)

// Rule names reported in failures.
const (
	RuleRequired = "required"
	RuleType     = "type"
	RulePattern  = "pattern"
)

// FieldFailure is the first failing rule for one field of one row.
type FieldFailure struct {
	FieldKey string `json:"fieldKey"`
	RawValue string `json:"rawValue"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
}

func (f FieldFailure) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.FieldKey, f.Reason, f.Rule)
}

// Evaluate runs the rule chain for one field. A nil result with a nil
// failure means the value was empty and the field optional; the field is
// simply absent from the lead.
func Evaluate(raw interface{}, m schema.FieldMapping) (*coerce.Result, *FieldFailure) {
	if coerce.IsEmpty(raw) {
		if m.Required {
			return nil, &FieldFailure{
				FieldKey: m.FieldKey,
				Rule:     RuleRequired,
				Reason:   "value is required",
			}
		}
		return nil, nil
	}

	result, cf := coerce.Coerce(raw, m)
	if cf != nil {
		return nil, &FieldFailure{
			FieldKey: m.FieldKey,
			RawValue: fmt.Sprintf("%v", raw),
			Rule:     RuleType,
			Reason:   cf.Reason,
		}
	}

	if ff := checkPattern(result, m); ff != nil {
		return nil, ff
	}
	return &result, nil
}

// checkPattern applies the declared validation pattern. The pattern field is
// repurposed as the allowed-value list for enum and the alternate layout for
// date, so the regex rule only applies to the remaining string-backed types.
func checkPattern(result coerce.Result, m schema.FieldMapping) *FieldFailure {
	if m.Pattern == "" {
		return nil
	}
	switch m.Type {
	case schema.FieldTypeEnum, schema.FieldTypeDate:
		return nil
	}
	s, ok := result.Value.(string)
	if !ok {
		return nil
	}

	re, err := regexp.Compile(m.Pattern)
	if err != nil {
		// A malformed admin-configured pattern must not reject rows.
		return nil
	}
	if !re.MatchString(s) {
		return &FieldFailure{
			FieldKey: m.FieldKey,
			RawValue: s,
			Rule:     RulePattern,
			Reason:   fmt.Sprintf("%q does not match pattern %q", s, m.Pattern),
		}
	}
	return nil
}
