// Package protocol parses and validates the structured decision objects
// emitted by the controller model before the round controller acts on them.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// rawDecision mirrors the wire shape of a controller decision. Field-level
// constraints live on the domain types; the union rules are enforced here.
type rawDecision struct {
	Role          string                `json:"role"`
	DecisionID    string                `json:"decision_id"`
	Stage         string                `json:"stage"`
	Action        string                `json:"action"`
	DirectAnswer  string                `json:"direct_answer"`
	SearchPlan    *domain.SearchPlan    `json:"search_plan"`
	ReadSelection *domain.ReadSelection `json:"read_selection"`
	Notes         []string              `json:"notes"`
}

// Validator turns raw model output into a validated domain.Decision.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a decision validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Parse extracts and validates a decision from raw model output for the
// given stage. Malformed JSON yields *domain.ParseError; well-formed JSON
// with a shape inconsistent with its declared action or the current stage
// yields *domain.SchemaError. Parsing is pure: validating the same input
// twice yields the same result.
func (v *Validator) Parse(text string, stage domain.Stage) (*domain.Decision, error) {
	payload, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw rawDecision
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &domain.ParseError{Detail: "decision object does not decode", Err: err}
	}

	dec := &domain.Decision{
		ID:            raw.DecisionID,
		Stage:         domain.Stage(raw.Stage),
		Action:        domain.Action(raw.Action),
		DirectAnswer:  raw.DirectAnswer,
		SearchPlan:    raw.SearchPlan,
		ReadSelection: raw.ReadSelection,
		Notes:         raw.Notes,
	}
	if dec.Stage == "" {
		dec.Stage = stage
	}

	if err := v.Check(dec, stage); err != nil {
		return nil, err
	}
	return dec, nil
}

// Check validates an already-decoded decision against the stage's expected
// shape. It is idempotent: a decision that passes once passes again.
func (v *Validator) Check(dec *domain.Decision, stage domain.Stage) error {
	switch dec.Action {
	case domain.ActionAnswer, domain.ActionSearch, domain.ActionSelectForRead, domain.ActionStop:
	case "":
		return &domain.SchemaError{Detail: "missing action"}
	default:
		return &domain.SchemaError{Detail: fmt.Sprintf("unknown action %q", dec.Action)}
	}

	switch dec.Stage {
	case domain.StageInitial, domain.StageAfterSearch, domain.StageAfterRead:
	default:
		return &domain.SchemaError{Detail: fmt.Sprintf("unknown stage %q", dec.Stage)}
	}

	// The payload must match the declared action, and only that payload
	// may be populated.
	switch dec.Action {
	case domain.ActionAnswer, domain.ActionStop:
		if strings.TrimSpace(dec.DirectAnswer) == "" {
			return &domain.SchemaError{Detail: fmt.Sprintf("action %q requires direct_answer", dec.Action)}
		}
		if dec.SearchPlan != nil || dec.ReadSelection != nil {
			return &domain.SchemaError{Detail: fmt.Sprintf("action %q must not carry a search_plan or read_selection", dec.Action)}
		}
	case domain.ActionSearch:
		if dec.SearchPlan == nil || len(dec.SearchPlan.Queries) == 0 {
			return &domain.SchemaError{Detail: "action \"search\" requires a search_plan with at least one query"}
		}
		if dec.DirectAnswer != "" || dec.ReadSelection != nil {
			return &domain.SchemaError{Detail: "action \"search\" must carry only a search_plan"}
		}
		if err := v.validate.Struct(dec.SearchPlan); err != nil {
			return &domain.SchemaError{Detail: "search_plan fields invalid", Err: err}
		}
	case domain.ActionSelectForRead:
		if stage == domain.StageInitial {
			return &domain.SchemaError{Detail: "select_for_read is not valid before any search round"}
		}
		if dec.ReadSelection == nil || len(dec.ReadSelection.Items) == 0 {
			return &domain.SchemaError{Detail: "action \"select_for_read\" requires a read_selection with at least one item"}
		}
		if dec.DirectAnswer != "" || dec.SearchPlan != nil {
			return &domain.SchemaError{Detail: "action \"select_for_read\" must carry only a read_selection"}
		}
		if err := v.validate.Struct(dec.ReadSelection); err != nil {
			return &domain.SchemaError{Detail: "read_selection fields invalid", Err: err}
		}
	}

	return nil
}

// CheckReport validates a reader report decoded from reader-model output.
func (v *Validator) CheckReport(rep *domain.ReaderReport) error {
	if err := v.validate.Struct(rep); err != nil {
		return &domain.SchemaError{Detail: "reader_report fields invalid", Err: err}
	}
	if rep.Reliability.Rating < 0 || rep.Reliability.Rating > 1 {
		return &domain.SchemaError{Detail: "reliability rating out of range"}
	}
	return nil
}

// ExtractJSON returns the first valid top-level JSON object embedded in
// text. Models occasionally wrap their output in prose or code fences;
// everything outside the object is ignored, and a balanced brace region
// that is not valid JSON (prose with stray braces) is skipped in favor of
// a later candidate. An unterminated object means truncated output and is
// never recovered from.
func ExtractJSON(text string) ([]byte, error) {
	from := 0
	sawCandidate := false
	for {
		idx := strings.IndexByte(text[from:], '{')
		if idx < 0 {
			if sawCandidate {
				return nil, &domain.ParseError{Detail: "embedded JSON object is malformed"}
			}
			return nil, &domain.ParseError{Detail: "no JSON object found in model output"}
		}
		start := from + idx

		depth := 0
		inString := false
		escaped := false
		end := -1
		for i := start; i < len(text) && end < 0; i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
		}
		if end < 0 {
			return nil, &domain.ParseError{Detail: "unterminated JSON object in model output"}
		}

		candidate := []byte(text[start : end+1])
		if json.Valid(candidate) {
			return candidate, nil
		}
		sawCandidate = true
		from = start + 1
	}
}
