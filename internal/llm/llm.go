package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/maint/internal/models"
)

// Triage is the model's assessment of an issue report.
type Triage struct {
	Urgency int    `json:"urgency"`
	Summary string `json:"summary"`
	Reason  string `json:"reason"`
}

// Client wraps the Anthropic API for issue triage.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triage.
func buildTriagePrompt(title, description string, comments []string) (system string, user string) {
	system = fmt.Sprintf(`You triage facility maintenance reports for a multi-location business. Given an issue's title, description and any comments, return a JSON object with exactly three fields:

- "urgency": an integer from %d to %d. %d = cosmetic or can wait weeks, 3 = needs attention this week, %d = safety hazard, food safety risk or business cannot operate
- "summary": one sentence a technician can read at a glance
- "reason": one short sentence explaining the urgency

Rules:
- Water leaks near electrics, gas smells, broken refrigeration and blocked exits are always %d
- Prefer 3 when the report is too vague to judge
- Return valid JSON only, no markdown fencing or explanation`,
		models.MinUrgency, models.MaxUrgency, models.MinUrgency, models.MaxUrgency, models.MaxUrgency)

	var sb strings.Builder
	sb.WriteString("Issue title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	if len(comments) > 0 {
		sb.WriteString("\nComments:\n")
		for _, c := range comments {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	user = sb.String()
	return
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseTriage decodes and range-checks a triage response.
func parseTriage(text string) (*Triage, error) {
	text = stripFence(text)
	var t Triage
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if t.Urgency < models.MinUrgency || t.Urgency > models.MaxUrgency {
		return nil, fmt.Errorf("urgency %d out of range %d-%d", t.Urgency, models.MinUrgency, models.MaxUrgency)
	}
	return &t, nil
}

// Triage sends an issue to the LLM and returns its assessment.
func (c *Client) Triage(ctx context.Context, title, description string, comments []string) (*Triage, error) {
	systemPrompt, userPrompt := buildTriagePrompt(title, description, comments)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}
	return parseTriage(text)
}

// SuggestUrgency returns only the urgency, for reports created without one.
func (c *Client) SuggestUrgency(ctx context.Context, title, description string) (int, error) {
	t, err := c.Triage(ctx, title, description, nil)
	if err != nil {
		return 0, err
	}
	return t.Urgency, nil
}
