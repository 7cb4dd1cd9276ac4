package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed classification.schema.json
var classificationSchemaJSON string

const MaxCentralIdeaWords = 30

const (
	TargetPerson      = "persona"
	TargetInstitution = "institucion"
	TargetTopic       = "tema"
)

type Mention struct {
	TargetType string  `json:"target_type"`
	TargetName string  `json:"target_name"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Classification is a validated classifier payload.
type Classification struct {
	CentralIdea string    `json:"central_idea"`
	ArticleType string    `json:"article_type"`
	Labels      []string  `json:"labels"`
	Mentions    []Mention `json:"mentions"`
	Summary     string    `json:"summary,omitempty"`
	Model       string    `json:"model,omitempty"`
	Fallback    bool      `json:"fallback,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error

	fenceOpen  = regexp.MustCompile("^```(?:json|JSON)?")
	fenceClose = regexp.MustCompile("```$")
)

// StripCodeFences removes a surrounding markdown code fence.
func StripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimSpace(fenceOpen.ReplaceAllString(cleaned, ""))
	return strings.TrimSpace(fenceClose.ReplaceAllString(cleaned, ""))
}

// ValidateClassificationPayload decodes, repairs and validates a classifier
// payload. A mentions object is wrapped into a list and a mentions string is
// dropped before schema validation.
func ValidateClassificationPayload(payload json.RawMessage) (*Classification, error) {
	value, err := decodeStrictJSON([]byte(StripCodeFences(string(payload))))
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	object["mentions"] = normalizeMentions(object["mentions"])

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(object); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}
	var item Classification
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := validateSemantics(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

func normalizeMentions(raw any) []any {
	switch typed := raw.(type) {
	case []any:
		return typed
	case map[string]any:
		return []any{typed}
	default:
		return []any{}
	}
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("classification.schema.json", strings.NewReader(classificationSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("classification.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *Classification) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.CentralIdea) == "" {
		return fmt.Errorf("central_idea must not be empty")
	}
	if words := len(strings.Fields(item.CentralIdea)); words > MaxCentralIdeaWords {
		return fmt.Errorf("central_idea has %d words, max %d", words, MaxCentralIdeaWords)
	}
	for i, label := range item.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("labels[%d] must not be empty", i)
		}
	}
	for i, mention := range item.Mentions {
		if strings.TrimSpace(mention.TargetName) == "" {
			return fmt.Errorf("mentions[%d].target_name must not be empty", i)
		}
	}
	return nil
}
