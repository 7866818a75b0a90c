package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/llm"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/types"
)

const (
	unspecified = "Não especificado"

	// logged prompts are cut to this many runes
	promptLogLength = 100

	usageRecordTimeout = 2 * time.Second
)

// Completer is the language-model client
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
	Configured() bool
	Model() string
}

// UsageRecorder receives one event per successful generation
type UsageRecorder interface {
	Record(ctx context.Context, u *models.GenerationUsage) error
}

// GenerationResult is the AI proxy response body
type GenerationResult struct {
	GeneratedText string      `json:"generatedText"`
	Usage         types.Usage `json:"usage"`
}

// GenerationService turns a validated request into a single model call
type GenerationService struct {
	completer Completer
	usage     UsageRecorder
	logger    *logging.Logger
	now       func() time.Time
}

// NewGenerationService creates a new generation service. usage may be nil.
func NewGenerationService(completer Completer, usage UsageRecorder, logger *logging.Logger) *GenerationService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &GenerationService{
		completer: completer,
		usage:     usage,
		logger:    logger.WithField("component", "generation"),
		now:       time.Now,
	}
}

// Configured reports whether the model API key is present
func (s *GenerationService) Configured() bool {
	return s.completer != nil && s.completer.Configured()
}

// Generate builds the instruction for req and calls the model exactly once
func (s *GenerationService) Generate(ctx context.Context, userID string, req *GenerationRequest) (*GenerationResult, error) {
	if !s.Configured() {
		return nil, apperrors.NewConfigurationError("OPENAI_API_KEY")
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"kind":    string(req.Kind),
	})
	logger.Infof("Processing %s request with prompt: %s", req.Kind, logging.Truncate(req.Prompt, promptLogLength))

	completion, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Instruction: BuildInstruction(req),
		Prompt:      req.Prompt,
		UserID:      userID,
	})
	if err != nil {
		logger.WithError(err).Error("language model call failed")
		return nil, apperrors.NewUpstreamError("openai", err)
	}

	s.recordUsage(ctx, userID, req.Kind, completion)

	return &GenerationResult{
		GeneratedText: completion.Text,
		Usage:         completion.Usage,
	}, nil
}

// recordUsage never fails the request
func (s *GenerationService) recordUsage(ctx context.Context, userID string, kind types.ToolKind, c *llm.Completion) {
	if s.usage == nil {
		return
	}

	model := c.Model
	if model == "" {
		model = s.completer.Model()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageRecordTimeout)
	defer cancel()

	err := s.usage.Record(ctx, &models.GenerationUsage{
		UserID:           userID,
		Kind:             string(kind),
		Model:            model,
		PromptTokens:     uint32(c.Usage.PromptTokens),
		CompletionTokens: uint32(c.Usage.CompletionTokens),
		TotalTokens:      uint32(c.Usage.TotalTokens),
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to record generation usage")
	}
}

// BuildInstruction maps a request to its system instruction. It is deterministic.
func BuildInstruction(req *GenerationRequest) string {
	switch d := req.Data.(type) {
	case ContentData:
		return fmt.Sprintf(contentTemplate,
			orUnspecified(d.Nicho), orUnspecified(d.Objetivo), orUnspecified(d.Descricao), orUnspecified(d.Formato))
	case PromptData:
		return fmt.Sprintf(promptTemplate,
			orUnspecified(d.Nicho), orUnspecified(d.Objetivo), orUnspecified(d.AIType), orUnspecified(d.Briefing))
	case CampaignData:
		return fmt.Sprintf(campaignTemplate,
			orUnspecified(d.Objetivo), orUnspecified(d.PublicoAlvo),
			orUnspecified(d.TituloAnuncio), orUnspecified(d.TextoAnuncio),
			number(d.InvestimentoTotal), number(d.Alcance), number(d.Cliques), number(d.CTR),
			number(d.CPM), number(d.Frequencia), number(d.TaxaConversao), number(d.CustoConversao))
	default:
		return chatInstruction
	}
}

func orUnspecified(s string) string {
	if s == "" {
		return unspecified
	}
	return s
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

const contentTemplate = `Crie uma estratégia de conteúdo para Instagram com base no seguinte contexto:

Nicho: %s
Objetivo do conteúdo: %s
Descrição do usuário: %s
Formato: %s

Retorne:
- Tema estratégico do post
- Formato ideal
- Estrutura do conteúdo
- Legenda com copy persuasiva
- Hashtags otimizadas e atualizadas
- Melhor horário para postar

Seja específico e prático nas suas sugestões.`

const promptTemplate = `Crie um prompt profissional para IA com base no seguinte briefing:

Nicho: %s
Objetivo: %s
Tipo de IA: %s
Briefing do usuário: %s

Retorne um prompt claro, eficaz e bem estruturado que maximize os resultados da IA escolhida.`

const campaignTemplate = `Analise esta campanha de tráfego pago:

Objetivo da campanha: %s
Público-alvo: %s
Criativo: Título: "%s" | Texto: "%s"
Investimento: R$ %s

Resultados:
- Alcance: %s
- Cliques: %s
- CTR: %s%%
- CPM: R$ %s
- Frequência: %s
- Taxa de conversão: %s%%
- Custo por conversão: R$ %s

Retorne:
1. Diagnóstico da campanha
2. Ajustes estratégicos
3. Sugestões de novos criativos e segmentações
4. Recomendações de otimização de budget`

const chatInstruction = `Você é um assistente de marketing digital experiente e especialista em IA. Responda com foco em tráfego pago, conteúdo, social media e ferramentas de IA. Use linguagem estratégica, clara e sempre atualizada com os algoritmos das redes sociais. Seja prático e objetivo nas suas respostas.`
