package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"finsight/internal/domain"
	"finsight/internal/vault"

	"go.opentelemetry.io/otel/trace"
)

// AccountSource supplies the account/transaction snapshot for a user.
// The real implementation wraps the external aggregation layer; demo
// requests use the synthetic generator instead.
type AccountSource interface {
	Snapshot(ctx context.Context, userID string) (*domain.AccountSnapshot, error)
}

// ProfileSource is the slice of ProfileService the assembler needs.
// Updates receive the session vault so the learning step can mask the
// turn before its own outbound LLM call.
type ProfileSource interface {
	GetOrCreateProfile(ctx context.Context, userID string) (string, error)
	UpdateProfileFromConversation(ctx context.Context, userID string, turn domain.ConversationTurn, v *vault.Vault)
}

type MarketContextSource interface {
	GetMarketContext(ctx context.Context, tier domain.Tier, question string) (*domain.MarketContext, error)
}

// Completer is the outbound LLM surface for answering questions.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ConversationStore persists turns and serves the bounded history
// window that re-enters the prompt.
type ConversationStore interface {
	InsertTurn(ctx context.Context, turn domain.ConversationTurn) error
	ListRecent(ctx context.Context, sessionKey string, limit int) ([]domain.ConversationTurn, error)
	DeleteSession(ctx context.Context, sessionKey string) (int64, error)
}

// ContextService is the composition root of the pipeline: tier gate,
// profile decrypt, market fan-out, tokenization, the LLM call,
// detokenization and the asynchronous profile re-extraction, in that
// order.
type ContextService struct {
	tracer        trace.Tracer
	profiles      ProfileSource
	market        MarketContextSource
	accounts      AccountSource
	demoAccounts  AccountSource
	advisor       Completer
	conversations ConversationStore
	sessions      *vault.SessionRegistry
	answerTimeout time.Duration
	historyLimit  int
}

func NewContextService(
	tracer trace.Tracer,
	profiles ProfileSource,
	market MarketContextSource,
	accounts AccountSource,
	demoAccounts AccountSource,
	advisor Completer,
	conversations ConversationStore,
	sessions *vault.SessionRegistry,
	answerTimeout time.Duration,
	historyLimit int,
) *ContextService {
	return &ContextService{
		tracer:        tracer,
		profiles:      profiles,
		market:        market,
		accounts:      accounts,
		demoAccounts:  demoAccounts,
		advisor:       advisor,
		conversations: conversations,
		sessions:      sessions,
		answerTimeout: answerTimeout,
		historyLimit:  historyLimit,
	}
}

// Answer runs one question through the full pipeline. The caller gets
// the detokenized answer; profile learning continues in the background
// after return.
func (s *ContextService) Answer(ctx context.Context, req domain.QuestionRequest) (*domain.Answer, error) {
	ctx, span := s.tracer.Start(ctx, "context-service.answer")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.advisor == nil {
		return nil, fmt.Errorf("advisor is not configured")
	}

	caps := domain.CapabilitiesFor(req.Tier)

	profileText := ""
	if caps.ProfileEnrichment && !req.IsDemo && s.profiles != nil {
		var err error
		profileText, err = s.profiles.GetOrCreateProfile(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
	}

	var marketCtx *domain.MarketContext
	if caps.MarketContext && s.market != nil {
		var err error
		marketCtx, err = s.market.GetMarketContext(ctx, req.Tier, req.Question)
		if err != nil {
			// Market data is additive context; the question is still
			// answerable without it.
			log.Printf("market context unavailable: %v", err)
			marketCtx = nil
		}
	}

	snapshot, err := s.snapshot(ctx, req)
	if err != nil {
		log.Printf("account snapshot unavailable for %s: %v", req.SessionKey(), err)
		snapshot = nil
	}

	v := s.sessions.Get(req.SessionKey())
	payload := vault.Tokenize(v, profileText, snapshot)

	var history []domain.ConversationTurn
	if s.conversations != nil {
		history, err = s.conversations.ListRecent(ctx, req.SessionKey(), s.historyLimit)
		if err != nil {
			log.Printf("conversation history unavailable for %s: %v", req.SessionKey(), err)
			history = nil
		}
	}

	prompt := buildPrompt(req, caps, v, payload, marketCtx, history)

	answerCtx, cancel := context.WithTimeout(ctx, s.answerTimeout)
	defer cancel()
	raw, err := s.advisor.Complete(answerCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}

	text := v.Detokenize(raw)

	turn := domain.ConversationTurn{
		SessionKey: req.SessionKey(),
		Question:   req.Question,
		Answer:     text,
		CreatedAt:  time.Now().UTC(),
	}
	if s.conversations != nil {
		if err := s.conversations.InsertTurn(ctx, turn); err != nil {
			log.Printf("record conversation turn: %v", err)
		}
	}

	if caps.ProfileEnrichment && !req.IsDemo && s.profiles != nil {
		// Best-effort relative to answering; detached from the request
		// context so a finished request does not cancel the learning
		// step.
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), s.answerTimeout)
			defer cancel()
			s.profiles.UpdateProfileFromConversation(bg, req.UserID, turn, v)
		}()
	}

	out := &domain.Answer{
		Text:        text,
		Tier:        req.Tier,
		UsedProfile: profileText != "",
	}
	if marketCtx != nil {
		out.UsedMarketContext = len(marketCtx.Results) > 0
		out.DegradedProviders = marketCtx.Degraded
	}
	return out, nil
}

// InvalidateSession drops the session's token vault and its stored
// turns, forcing fresh tokenization after underlying account data
// changes.
func (s *ContextService) InvalidateSession(ctx context.Context, sessionKey string) {
	s.sessions.Invalidate(sessionKey)
	if s.conversations != nil {
		if _, err := s.conversations.DeleteSession(ctx, sessionKey); err != nil {
			log.Printf("delete conversation history for %s: %v", sessionKey, err)
		}
	}
}

func (s *ContextService) snapshot(ctx context.Context, req domain.QuestionRequest) (*domain.AccountSnapshot, error) {
	if req.IsDemo {
		if s.demoAccounts == nil {
			return nil, nil
		}
		return s.demoAccounts.Snapshot(ctx, req.DemoSessionID)
	}
	if s.accounts == nil {
		return nil, nil
	}
	return s.accounts.Snapshot(ctx, req.UserID)
}

func buildPrompt(
	req domain.QuestionRequest,
	caps domain.Capabilities,
	v *vault.Vault,
	payload *vault.TokenizedPayload,
	marketCtx *domain.MarketContext,
	history []domain.ConversationTurn,
) string {
	var b strings.Builder

	if payload.Profile != "" {
		b.WriteString("User profile:\n")
		b.WriteString(payload.Profile)
		b.WriteString("\n\n")
	}

	if len(payload.Accounts) > 0 {
		b.WriteString("Accounts:\n")
		for _, a := range payload.Accounts {
			fmt.Fprintf(&b, "- %s at %s (%s): balance %s %s\n",
				a.Name, a.Institution, a.Type, a.Balance, a.Currency)
		}
		b.WriteString("\n")
	}
	if len(payload.Transactions) > 0 {
		b.WriteString("Recent transactions:\n")
		for _, t := range payload.Transactions {
			fmt.Fprintf(&b, "- %s: %s at %s (%s)\n", t.Date, t.Amount, t.Merchant, t.Category)
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		// History arrives newest first; the prompt reads oldest first.
		// Stored turns are detokenized, so they pass back through the
		// session vault before re-entering a prompt.
		for i := len(history) - 1; i >= 0; i-- {
			turn := history[i]
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", v.Retokenize(turn.Question), v.Retokenize(turn.Answer))
		}
		b.WriteString("\n")
	}

	if summary := Summarize(marketCtx); summary != "" {
		b.WriteString("Current market data:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	if !caps.MarketContext {
		b.WriteString("Note: live market data is not included on the ")
		b.WriteString(string(req.Tier))
		b.WriteString(" plan; mention the upgrade when market data would have helped.\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(req.Question)
	return b.String()
}
