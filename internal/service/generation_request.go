package service

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/types"
)

// MaxPromptLength bounds the user prompt, counted in runes
const MaxPromptLength = 4000

// GenerationRequest is a fully validated AI proxy request.
// Data always matches Kind.
type GenerationRequest struct {
	Prompt string
	Kind   types.ToolKind
	Data   ToolData
}

// ToolData is the kind-specific context of a generation request
type ToolData interface {
	Kind() types.ToolKind
}

// ContentData is the context of the content generator
type ContentData struct {
	Nicho     string `json:"nicho" validate:"max=100"`
	Objetivo  string `json:"objetivo" validate:"max=200"`
	Descricao string `json:"descricao" validate:"max=1000"`
	Formato   string `json:"formato" validate:"max=50"`
}

// PromptData is the context of the prompt builder
type PromptData struct {
	Nicho    string `json:"nicho" validate:"max=100"`
	Objetivo string `json:"objetivo" validate:"max=200"`
	AIType   string `json:"aiType" validate:"max=50"`
	Briefing string `json:"briefing" validate:"max=2000"`
}

// CampaignData is the context of the campaign analyzer.
// Absent metrics are zero.
type CampaignData struct {
	Objetivo          string  `json:"objetivo" validate:"max=200"`
	PublicoAlvo       string  `json:"publicoAlvo" validate:"max=500"`
	TituloAnuncio     string  `json:"tituloAnuncio" validate:"max=200"`
	TextoAnuncio      string  `json:"textoAnuncio" validate:"max=2000"`
	LandingURL        string  `json:"landingUrl" validate:"omitempty,max=500,url"`
	InvestimentoTotal float64 `json:"investimentoTotal" validate:"gte=0"`
	Alcance           float64 `json:"alcance" validate:"gte=0"`
	Cliques           float64 `json:"cliques" validate:"gte=0"`
	CTR               float64 `json:"ctr" validate:"gte=0"`
	CPM               float64 `json:"cpm" validate:"gte=0"`
	Frequencia        float64 `json:"frequencia" validate:"gte=0"`
	TaxaConversao     float64 `json:"taxaConversao" validate:"gte=0"`
	CustoConversao    float64 `json:"custoConversao" validate:"gte=0"`
}

// ChatData is empty; the chat tool takes no context
type ChatData struct{}

func (ContentData) Kind() types.ToolKind  { return types.ToolContent }
func (PromptData) Kind() types.ToolKind   { return types.ToolPrompt }
func (CampaignData) Kind() types.ToolKind { return types.ToolCampaign }
func (ChatData) Kind() types.ToolKind     { return types.ToolChat }

type jsonKind int

const (
	jsonString jsonKind = iota
	jsonNumber
)

func (k jsonKind) String() string {
	if k == jsonNumber {
		return "number"
	}
	return "string"
}

// dataFields lists the accepted data keys per tool kind
var dataFields = map[types.ToolKind]map[string]jsonKind{
	types.ToolContent: {
		"nicho": jsonString, "objetivo": jsonString, "descricao": jsonString, "formato": jsonString,
	},
	types.ToolPrompt: {
		"nicho": jsonString, "objetivo": jsonString, "aiType": jsonString, "briefing": jsonString,
	},
	types.ToolCampaign: {
		"objetivo":          jsonString,
		"publicoAlvo":       jsonString,
		"tituloAnuncio":     jsonString,
		"textoAnuncio":      jsonString,
		"landingUrl":        jsonString,
		"investimentoTotal": jsonNumber,
		"alcance":           jsonNumber,
		"cliques":           jsonNumber,
		"ctr":               jsonNumber,
		"cpm":               jsonNumber,
		"frequencia":        jsonNumber,
		"taxaConversao":     jsonNumber,
		"custoConversao":    jsonNumber,
	},
	types.ToolChat: {},
}

var promptRule = "required,max=" + strconv.Itoa(MaxPromptLength)

var topLevelFields = map[string]bool{"prompt": true, "type": true, "data": true}

// ParseGenerationRequest decodes and validates an AI proxy body.
// Every violation is collected; the result is either a request or a validation error
// enumerating all of them.
func ParseGenerationRequest(body []byte) (*GenerationRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewInvalidInputError("Invalid JSON body", err)
	}
	if raw == nil {
		return nil, apperrors.NewInvalidInputError("request body must be a JSON object", nil)
	}

	var violations []types.FieldViolation

	prompt, v := decodeString(raw, "prompt")
	violations = append(violations, v...)
	if v == nil {
		violations = append(violations, validateVar("prompt", prompt, promptRule)...)
	}

	kindStr, v := decodeString(raw, "type")
	violations = append(violations, v...)
	if v == nil {
		violations = append(violations, validateVar("type", kindStr, "required,oneof=content prompt campaign chat")...)
	}
	kind := types.ToolKind(kindStr)

	var data ToolData
	if kind.Valid() {
		data, v = decodeData(kind, raw["data"])
		violations = append(violations, v...)
	}

	for _, key := range sortedKeys(raw) {
		if !topLevelFields[key] {
			violations = append(violations, unknownField(key))
		}
	}

	if len(violations) > 0 {
		return nil, apperrors.NewValidationError(violations)
	}

	return &GenerationRequest{Prompt: prompt, Kind: kind, Data: data}, nil
}

// decodeString reads a top-level string; absent and null both decode to ""
func decodeString(raw map[string]json.RawMessage, field string) (string, []types.FieldViolation) {
	msg, ok := raw[field]
	if !ok || isNull(msg) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", []types.FieldViolation{wrongType(field, "string")}
	}
	return s, nil
}

func decodeData(kind types.ToolKind, msg json.RawMessage) (ToolData, []types.FieldViolation) {
	fields := map[string]json.RawMessage{}
	if len(msg) > 0 && !isNull(msg) {
		if err := json.Unmarshal(msg, &fields); err != nil || fields == nil {
			return nil, []types.FieldViolation{wrongType("data", "object")}
		}
	}

	schema := dataFields[kind]
	accepted := make(map[string]json.RawMessage, len(fields))
	var violations []types.FieldViolation

	for _, key := range sortedKeys(fields) {
		value := fields[key]
		want, known := schema[key]
		switch {
		case !known:
			violations = append(violations, unknownField("data."+key))
		case isNull(value):
			// null is treated as absent
		case !hasJSONKind(value, want):
			violations = append(violations, wrongType("data."+key, want.String()))
		default:
			accepted[key] = value
		}
	}

	data := newToolData(kind)
	if len(accepted) > 0 {
		b, err := json.Marshal(accepted)
		if err == nil {
			err = json.Unmarshal(b, data)
		}
		if err != nil {
			return nil, append(violations, wrongType("data", "object"))
		}
	}
	violations = append(violations, ValidateStruct(data, "data.")...)

	return derefToolData(data), violations
}

func newToolData(kind types.ToolKind) interface{} {
	switch kind {
	case types.ToolContent:
		return &ContentData{}
	case types.ToolPrompt:
		return &PromptData{}
	case types.ToolCampaign:
		return &CampaignData{}
	default:
		return &ChatData{}
	}
}

func derefToolData(v interface{}) ToolData {
	switch d := v.(type) {
	case *ContentData:
		return *d
	case *PromptData:
		return *d
	case *CampaignData:
		return *d
	default:
		return ChatData{}
	}
}

func hasJSONKind(msg json.RawMessage, want jsonKind) bool {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return false
	}
	switch want {
	case jsonString:
		return trimmed[0] == '"'
	case jsonNumber:
		var f float64
		return trimmed[0] != '"' && json.Unmarshal(trimmed, &f) == nil
	}
	return false
}

func isNull(msg json.RawMessage) bool {
	return strings.TrimSpace(string(msg)) == "null"
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
