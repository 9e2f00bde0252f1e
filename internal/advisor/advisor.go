package advisor

import (
	"context"
	"fmt"
	"strings"

	"finsight/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/trace"
)

const answerSystemPrompt = `You are a personal financial advisor. Account names, balances and
merchants in the context appear as opaque markers like ⟦ACCT_1⟧ or ⟦BAL_2⟧; refer to them
verbatim and never invent values for them. Be concise and practical.`

const mergeSystemPrompt = `You maintain a short natural-language profile of durable facts about
a user (age, occupation, income, goals, risk tolerance, institutions, spending patterns).
Account names, institutions and dollar figures appear as opaque markers like ⟦ACCT_1⟧ or
⟦AMT_2⟧; carry them verbatim and never invent values for them.
Given the existing profile and one new conversation turn, return the updated profile.
Rules: keep every existing fact; only add facts that are durable and new; if the turn adds
nothing, reply with exactly NO_CHANGE.`

// noChangeSentinel is what the merge prompt asks for when a turn adds
// no new durable facts.
const noChangeSentinel = "NO_CHANGE"

// Client answers questions and merges profile facts through a chat
// completion model. It is the single outbound LLM surface.
type Client struct {
	oc     openai.Client
	model  string
	tracer trace.Tracer
}

func New(apiKey, model string, tracer trace.Tracer) *Client {
	return &Client{
		oc:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		tracer: tracer,
	}
}

// Complete sends one composed prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	_, span := c.tracer.Start(ctx, "advisor.complete")
	defer span.End()

	resp, err := c.oc.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(answerSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Merge folds one conversation turn into the existing profile. The
// contract is additive: when the model reports no new facts the
// existing profile comes back unchanged.
func (c *Client) Merge(ctx context.Context, existing string, turn domain.ConversationTurn) (string, error) {
	_, span := c.tracer.Start(ctx, "advisor.merge")
	defer span.End()

	prompt := fmt.Sprintf("Existing profile:\n%s\n\nNew conversation turn:\nQ: %s\nA: %s",
		orEmptyMarker(existing), turn.Question, turn.Answer)

	resp, err := c.oc.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(mergeSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("profile merge: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("profile merge: empty response")
	}

	merged := strings.TrimSpace(resp.Choices[0].Message.Content)
	if merged == "" || merged == noChangeSentinel {
		return existing, nil
	}
	return merged, nil
}

func orEmptyMarker(profile string) string {
	if strings.TrimSpace(profile) == "" {
		return "(empty)"
	}
	return profile
}
