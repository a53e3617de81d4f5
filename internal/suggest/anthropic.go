package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goccy/go-json"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"

	// MaxSuggestions bounds the tags requested per cast.
	MaxSuggestions = 3

	maxTokens = 256
)

// AnthropicSuggester implements domain.TagSuggester with the Anthropic
// Messages API.
type AnthropicSuggester struct {
	client *anthropic.Client
	model  string
}

var _ domain.TagSuggester = (*AnthropicSuggester)(nil)

// NewAnthropicSuggester creates a suggester. Extra options are passed to
// the SDK client, for example option.WithBaseURL.
func NewAnthropicSuggester(apiKey, model string, opts ...option.RequestOption) *AnthropicSuggester {
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicSuggester{
		client: &client,
		model:  model,
	}
}

// SuggestTags asks the model for up to MaxSuggestions topical tags for
// text. The response is prefilled with "[" so the model continues a JSON
// array of strings.
func (s *AnthropicSuggester) SuggestTags(ctx context.Context, text string) ([]string, error) {
	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(text))),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("[")),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("call messages api: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("empty response")
	}

	return ParseSuggestions("[" + responseText)
}

// ParseSuggestions decodes a JSON array of tag strings. Anything after the
// closing bracket is ignored.
func ParseSuggestions(raw string) ([]string, error) {
	if end := strings.Index(raw, "]"); end >= 0 {
		raw = raw[:end+1]
	}

	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w (response was: %.200s)", err, raw)
	}
	if len(tags) > MaxSuggestions {
		tags = tags[:MaxSuggestions]
	}
	return tags, nil
}

func buildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You are tagging posts from Farcaster, a decentralized social network.\n\n")
	fmt.Fprintf(&sb, "Suggest up to %d topical tags for the post below. ", MaxSuggestions)
	sb.WriteString("Each tag must be a single word or hyphenated phrase that starts with a letter, without the leading '#'. ")
	sb.WriteString("Prefer broad topics (people, projects, sports teams, technologies) over generic words. ")
	sb.WriteString("If nothing fits, return an empty array.\n\n")
	sb.WriteString("Respond with a JSON array of strings only.\n\n")
	sb.WriteString("## Post\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	return sb.String()
}
