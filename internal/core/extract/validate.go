package extract

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// CandidateValidator checks engine output against the paystub schema.
type CandidateValidator struct {
	schema *jsonschema.Schema
}

// NewCandidateValidator compiles the paystub schema once.
func NewCandidateValidator() (*CandidateValidator, error) {
	schema, err := compileSchema(BuildPaystubJSONSchema())
	if err != nil {
		return nil, err
	}
	return &CandidateValidator{schema: schema}, nil
}

// Validate returns an INVALID_CANDIDATE extraction error when doc does not
// match the schema.
func (v *CandidateValidator) Validate(doc *entity.ExtractedDocument) error {
	if doc == nil {
		return common.NewExtractionError(common.CodeInvalidCandidate, "engine returned no document", nil)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return common.NewExtractionError(common.CodeInvalidCandidate, "candidate not serializable", err)
	}
	if err := validateJSON(v.schema, data); err != nil {
		return common.NewExtractionError(common.CodeInvalidCandidate, "candidate does not match schema", err)
	}
	return nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("paystub.json", bytes.NewReader(b)); err != nil {
		return nil, errors.Wrap(err, "add schema")
	}
	schema, err := compiler.Compile("paystub.json")
	if err != nil {
		return nil, errors.Wrap(err, "compile schema")
	}
	return schema, nil
}

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "unmarshal data")
	}
	if err := schema.Validate(v); err != nil {
		return errors.Wrap(err, "json does not match schema")
	}
	return nil
}
