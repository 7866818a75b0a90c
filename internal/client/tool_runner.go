package client

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/service"
	"github.com/clicloop/internal/types"
)

// Result is the outcome of one dashboard tool run. Text is always set when Run
// succeeds; Saved is false when the history row could not be written.
type Result struct {
	Text    string
	Usage   types.Usage
	Saved   bool
	SaveErr error
	// Row is the stored history row when Saved is true
	Row interface{}
}

// Generator is the part of Client used to call the AI proxy
type Generator interface {
	Generate(ctx context.Context, kind types.ToolKind, prompt string, data service.ToolData) (*service.GenerationResult, error)
}

// HistoryWriter is the part of Client used to save history rows
type HistoryWriter interface {
	SaveHistory(ctx context.Context, kind string, row interface{}) error
}

// ToolRunner runs a dashboard tool: generate, then record the history row.
type ToolRunner struct {
	gen     Generator
	history HistoryWriter
}

// NewToolRunner creates a ToolRunner
func NewToolRunner(gen Generator, history HistoryWriter) *ToolRunner {
	return &ToolRunner{gen: gen, history: history}
}

// Run generates text for kind and saves it to the user's history. Input the
// history row would reject fails with a validation error before any generation.
// A failed save does not fail the run: the generated text is returned with
// Saved=false.
func (t *ToolRunner) Run(ctx context.Context, kind types.ToolKind, prompt string, data service.ToolData) (*Result, error) {
	if data != nil && data.Kind() != kind {
		return nil, fmt.Errorf("data for %q does not match tool %q", data.Kind(), kind)
	}

	historyKind, row, err := HistoryRow(kind, prompt, data, "")
	if err != nil {
		return nil, err
	}
	if violations := service.ValidateStruct(row, ""); len(violations) > 0 {
		return nil, apperrors.NewValidationError(violations)
	}

	gen, err := t.gen.Generate(ctx, kind, prompt, data)
	if err != nil {
		return nil, err
	}

	res := &Result{Text: gen.GeneratedText, Usage: gen.Usage}

	// rebuilt so the row carries the generated text
	_, row, err = HistoryRow(kind, prompt, data, gen.GeneratedText)
	if err != nil {
		res.SaveErr = err
		return res, nil
	}

	if err := t.history.SaveHistory(ctx, historyKind, row); err != nil {
		res.SaveErr = err
		return res, nil
	}

	res.Saved = true
	res.Row = row
	return res, nil
}

// HistoryRow maps a tool run onto the history table it is stored in
func HistoryRow(kind types.ToolKind, prompt string, data service.ToolData, text string) (string, interface{}, error) {
	switch kind {
	case types.ToolContent:
		d, _ := data.(service.ContentData)
		return "content", &models.ContentHistory{
			Description:      d.Descricao,
			Format:           d.Formato,
			Niche:            optional(d.Nicho),
			Objective:        optional(d.Objetivo),
			GeneratedContent: &text,
		}, nil

	case types.ToolPrompt:
		d, _ := data.(service.PromptData)
		return "prompts", &models.PromptHistory{
			Niche:           d.Nicho,
			Objective:       d.Objetivo,
			AIType:          d.AIType,
			Briefing:        d.Briefing,
			GeneratedPrompt: &text,
		}, nil

	case types.ToolCampaign:
		d, _ := data.(service.CampaignData)
		results, err := json.Marshal(campaignResults{
			Alcance:        d.Alcance,
			Cliques:        d.Cliques,
			CTR:            d.CTR,
			CPM:            d.CPM,
			Frequencia:     d.Frequencia,
			TaxaConversao:  d.TaxaConversao,
			CustoConversao: d.CustoConversao,
		})
		if err != nil {
			return "", nil, err
		}
		investment := d.InvestimentoTotal
		return "campaigns", &models.CampaignAnalysis{
			CampaignObjective: d.Objetivo,
			TargetAudience:    d.PublicoAlvo,
			AdTitle:           d.TituloAnuncio,
			AdText:            d.TextoAnuncio,
			LandingURL:        optional(d.LandingURL),
			TotalInvestment:   &investment,
			Results:           results,
			AIAnalysis:        &text,
		}, nil

	case types.ToolChat:
		return "chat", &models.ChatHistory{
			Message:  prompt,
			Response: &text,
		}, nil

	default:
		return "", nil, fmt.Errorf("unknown tool kind %q", kind)
	}
}

// campaignResults is the metric set stored with a campaign analysis
type campaignResults struct {
	Alcance        float64 `json:"alcance"`
	Cliques        float64 `json:"cliques"`
	CTR            float64 `json:"ctr"`
	CPM            float64 `json:"cpm"`
	Frequencia     float64 `json:"frequencia"`
	TaxaConversao  float64 `json:"taxaConversao"`
	CustoConversao float64 `json:"custoConversao"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
