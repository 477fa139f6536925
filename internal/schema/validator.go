// Package schema validates results against the embedded ExamResult JSON
// schema before they are stored.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"exam-proctor-service/internal/models"
)

//go:embed exam_result.schema.json
var examResultSchemaJSON string

const examResultSchemaName = "exam_result.schema.json"

// printer formats schema validation error messages.
var printer = message.NewPrinter(language.English)

// Validator checks ExamResult documents.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	var doc any
	if err := json.Unmarshal([]byte(examResultSchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("parse embedded %s: %w", examResultSchemaName, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(examResultSchemaName, doc); err != nil {
		return nil, fmt.Errorf("add %s resource: %w", examResultSchemaName, err)
	}
	sch, err := compiler.Compile(examResultSchemaName)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", examResultSchemaName, err)
	}
	return &Validator{schema: sch}, nil
}

// MustNew is New for program initialisation.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate encodes r and checks it against the schema. Violations are
// returned wrapped in models.ErrValidation, one per failing location.
func (v *Validator) Validate(r *models.ExamResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return v.ValidateJSON(raw)
}

// ValidateJSON checks an encoded result.
func (v *Validator) ValidateJSON(raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	err = v.schema.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("%w: schema: %v", models.ErrValidation, err)
	}
	var msgs []string
	collect(ve, &msgs)
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
}

func collect(ve *jsonschema.ValidationError, msgs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*msgs = append(*msgs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collect(c, msgs)
	}
}
