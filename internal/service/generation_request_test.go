package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationsOf(t *testing.T, err error) []types.FieldViolation {
	t.Helper()
	catErr := apperrors.Categorize(err)
	require.NotNil(t, catErr)
	require.Equal(t, apperrors.CodeValidation, catErr.Code, "error: %v", err)
	fields, ok := catErr.Details["fields"].([]types.FieldViolation)
	require.True(t, ok)
	return fields
}

func fieldNames(v []types.FieldViolation) []string {
	names := make([]string, len(v))
	for i, f := range v {
		names[i] = f.Field
	}
	return names
}

func TestParseGenerationRequestValid(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind types.ToolKind
		data ToolData
	}{
		{
			name: "content",
			body: `{"prompt":"post sobre café","type":"content","data":{"nicho":"cafeteria","formato":"reels"}}`,
			kind: types.ToolContent,
			data: ContentData{Nicho: "cafeteria", Formato: "reels"},
		},
		{
			name: "prompt",
			body: `{"prompt":"x","type":"prompt","data":{"aiType":"ChatGPT","briefing":"b"}}`,
			kind: types.ToolPrompt,
			data: PromptData{AIType: "ChatGPT", Briefing: "b"},
		},
		{
			name: "campaign with numbers and null",
			body: `{"prompt":"x","type":"campaign","data":{"objetivo":"vendas","alcance":1000,"ctr":1.5,"landingUrl":null}}`,
			kind: types.ToolCampaign,
			data: CampaignData{Objetivo: "vendas", Alcance: 1000, CTR: 1.5},
		},
		{
			name: "campaign with empty landing url",
			body: `{"prompt":"x","type":"campaign","data":{"landingUrl":""}}`,
			kind: types.ToolCampaign,
			data: CampaignData{},
		},
		{
			name: "chat without data",
			body: `{"prompt":"olá","type":"chat"}`,
			kind: types.ToolChat,
			data: ChatData{},
		},
		{
			name: "chat with empty data",
			body: `{"prompt":"olá","type":"chat","data":{}}`,
			kind: types.ToolChat,
			data: ChatData{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseGenerationRequest([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, req.Kind)
			assert.Equal(t, tt.data, req.Data)
			assert.Equal(t, tt.kind, req.Data.Kind())
		})
	}
}

func TestParseGenerationRequestCollectsEveryViolation(t *testing.T) {
	body := fmt.Sprintf(`{"type":"content","extra":1,"data":{"nicho":%q,"formato":7,"cor":"azul"}}`,
		strings.Repeat("n", 101))

	_, err := ParseGenerationRequest([]byte(body))
	v := violationsOf(t, err)

	assert.ElementsMatch(t, []string{"prompt", "data.cor", "data.formato", "data.nicho", "extra"}, fieldNames(v))
	for _, f := range v {
		switch f.Field {
		case "prompt":
			assert.Equal(t, "required", f.Rule)
		case "data.nicho":
			assert.Equal(t, "max", f.Rule)
			assert.Equal(t, "100", f.Limit)
		case "data.formato":
			assert.Equal(t, "type", f.Rule)
		case "data.cor", "extra":
			assert.Equal(t, "unknown", f.Rule)
		}
	}
}

func TestParseGenerationRequestRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"unknown type", `{"prompt":"x","type":"image"}`, []string{"type"}},
		{"missing type", `{"prompt":"x"}`, []string{"type"}},
		{"prompt not a string", `{"prompt":5,"type":"chat"}`, []string{"prompt"}},
		{"prompt too long", fmt.Sprintf(`{"prompt":%q,"type":"chat"}`, strings.Repeat("a", MaxPromptLength+1)), []string{"prompt"}},
		{"chat data field", `{"prompt":"x","type":"chat","data":{"nicho":"a"}}`, []string{"data.nicho"}},
		{"data not an object", `{"prompt":"x","type":"content","data":"nicho"}`, []string{"data"}},
		{"numeric string", `{"prompt":"x","type":"campaign","data":{"cliques":"10"}}`, []string{"data.cliques"}},
		{"negative metric", `{"prompt":"x","type":"campaign","data":{"cpm":-1}}`, []string{"data.cpm"}},
		{"bad landing url", `{"prompt":"x","type":"campaign","data":{"landingUrl":"not a url"}}`, []string{"data.landingUrl"}},
		{"briefing too long", fmt.Sprintf(`{"prompt":"x","type":"prompt","data":{"briefing":%q}}`, strings.Repeat("b", 2001)), []string{"data.briefing"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGenerationRequest([]byte(tt.body))
			assert.ElementsMatch(t, tt.fields, fieldNames(violationsOf(t, err)))
		})
	}
}

func TestParseGenerationRequestInvalidJSON(t *testing.T) {
	for _, body := range []string{`{`, `[]`, `null`, ``} {
		_, err := ParseGenerationRequest([]byte(body))
		catErr := apperrors.Categorize(err)
		require.NotNil(t, catErr, "body %q", body)
		assert.Equal(t, apperrors.CodeInvalidInput, catErr.Code, "body %q", body)
	}
}

func TestPromptLengthCountsRunes(t *testing.T) {
	prompt := strings.Repeat("ã", MaxPromptLength)
	body, _ := json.Marshal(map[string]string{"prompt": prompt, "type": "chat"})

	req, err := ParseGenerationRequest(body)
	require.NoError(t, err)
	assert.Equal(t, prompt, req.Prompt)
}

func TestStringLengthBoundProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	limits := map[string]int{"nicho": 100, "objetivo": 200, "descricao": 1000, "formato": 50}

	properties.Property("a content field over its bound is rejected naming that field", prop.ForAll(
		func(field string, extra int) bool {
			limit := limits[field]
			body, _ := json.Marshal(map[string]interface{}{
				"prompt": "p",
				"type":   "content",
				"data":   map[string]string{field: strings.Repeat("x", limit+extra)},
			})
			_, err := ParseGenerationRequest(body)
			catErr := apperrors.Categorize(err)
			if catErr == nil || catErr.Code != apperrors.CodeValidation {
				return false
			}
			fields := catErr.Details["fields"].([]types.FieldViolation)
			return len(fields) == 1 && fields[0].Field == "data."+field && fields[0].Rule == "max"
		},
		gen.OneConstOf("nicho", "objetivo", "descricao", "formato"),
		gen.IntRange(1, 50),
	))

	properties.Property("a content field within its bound is accepted", prop.ForAll(
		func(field string, n int) bool {
			limit := limits[field]
			if n > limit {
				n = limit
			}
			body, _ := json.Marshal(map[string]interface{}{
				"prompt": "p",
				"type":   "content",
				"data":   map[string]string{field: strings.Repeat("x", n)},
			})
			_, err := ParseGenerationRequest(body)
			return err == nil
		},
		gen.OneConstOf("nicho", "objetivo", "descricao", "formato"),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
