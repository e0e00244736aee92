package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"TSIWatch/internal/model"
)

// Generator is the part of *genai.Models the LLM source needs.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

const (
	DefaultLLMModel  = "gemini-2.5-flash"
	DefaultLLMPrompt = "List the current holdings of the TSI USA portfolio. " +
		"Return one object per holding with its ticker symbol and company name."
	llmSystemPrompt = "You are a financial expert. Answer only with data you are confident about."
)

// LLMSource asks a Gemini model for the current portfolio membership. Answers
// are constrained to a JSON array; missing amounts use Defaults.
type LLMSource struct {
	Models   Generator
	Model    string
	Prompt   string
	Defaults Defaults
}

// NewLLMSource wires a genai client.
func NewLLMSource(client *genai.Client, modelName string, defaults Defaults) *LLMSource {
	if modelName == "" {
		modelName = DefaultLLMModel
	}
	return &LLMSource{Models: client.Models, Model: modelName, Prompt: DefaultLLMPrompt, Defaults: defaults}
}

func (s *LLMSource) Name() string { return "llm" }

func (s *LLMSource) Load(ctx context.Context) (*model.Portfolio, error) {
	prompt := s.Prompt
	if prompt == "" {
		prompt = DefaultLLMPrompt
	}
	resp, err := s.Models.GenerateContent(ctx, s.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(llmSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    holdingsSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("query portfolio model: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("query portfolio model: empty response")
	}
	return ParseLLMAnswer(resp.Text(), s.Defaults)
}

var holdingsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"ticker":     {Type: genai.TypeString, Description: "Exchange ticker symbol, e.g. AAPL."},
			"name":       {Type: genai.TypeString, Description: "Company name."},
			"investment": {Type: genai.TypeNumber, Description: "Invested amount in USD, if known."},
			"stop_loss":  {Type: genai.TypeNumber, Description: "Stop-loss threshold in percent, if known."},
		},
		Required: []string{"ticker"},
	},
}

type llmHolding struct {
	Ticker     string   `json:"ticker"`
	Name       string   `json:"name"`
	Investment *float64 `json:"investment"`
	StopLoss   *float64 `json:"stop_loss"`
}

// ParseLLMAnswer decodes the model's JSON answer. Markdown code fences around
// the JSON are tolerated.
func ParseLLMAnswer(text string, defaults Defaults) (*model.Portfolio, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var holdings []llmHolding
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &holdings); err != nil {
		return nil, &ValidationError{Field: "answer", Reason: fmt.Sprintf("not a JSON holdings list: %v", err)}
	}
	entries := make([]model.PortfolioEntry, len(holdings))
	for i, h := range holdings {
		entries[i] = model.PortfolioEntry{
			Ticker:     h.Ticker,
			Name:       h.Name,
			Investment: defaults.Investment,
			StopLoss:   defaults.StopLoss,
		}
		if h.Investment != nil && *h.Investment > 0 {
			entries[i].Investment = *h.Investment
		}
		if h.StopLoss != nil {
			entries[i].StopLoss = *h.StopLoss
		}
	}
	return Validate(entries)
}
