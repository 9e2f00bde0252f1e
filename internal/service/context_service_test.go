package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"finsight/internal/domain"
	"finsight/internal/vault"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type stubProfileSource struct {
	mu      sync.Mutex
	profile string
	err     error
	gets    int
	updates []domain.ConversationTurn
	vaults  []*vault.Vault
	updated chan struct{}
}

func (s *stubProfileSource) GetOrCreateProfile(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	return s.profile, s.err
}

func (s *stubProfileSource) UpdateProfileFromConversation(ctx context.Context, userID string, turn domain.ConversationTurn, v *vault.Vault) {
	s.mu.Lock()
	s.updates = append(s.updates, turn)
	s.vaults = append(s.vaults, v)
	s.mu.Unlock()
	if s.updated != nil {
		s.updated <- struct{}{}
	}
}

type stubMarketSource struct {
	mu    sync.Mutex
	ctx   *domain.MarketContext
	err   error
	calls int
	tiers []domain.Tier
}

func (s *stubMarketSource) GetMarketContext(ctx context.Context, tier domain.Tier, question string) (*domain.MarketContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.tiers = append(s.tiers, tier)
	return s.ctx, s.err
}

type stubCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	// echo copies the prompt back as the answer when set, so tests
	// can assert on detokenization of whatever markers went out.
	echo bool
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if s.echo {
		return prompt, nil
	}
	return s.answer, nil
}

func (s *stubCompleter) lastPrompt(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		t.Fatal("advisor was never called")
	}
	return s.prompts[len(s.prompts)-1]
}

type stubAccountSource struct {
	snapshot *domain.AccountSnapshot
	err      error
}

func (s *stubAccountSource) Snapshot(ctx context.Context, userID string) (*domain.AccountSnapshot, error) {
	return s.snapshot, s.err
}

type stubRecorder struct {
	mu    sync.Mutex
	turns []domain.ConversationTurn
	err   error
}

func (s *stubRecorder) InsertTurn(ctx context.Context, turn domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return s.err
}

func (s *stubRecorder) ListRecent(ctx context.Context, sessionKey string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	// Newest first, mirroring the repository ordering.
	var out []domain.ConversationTurn
	for i := len(s.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if s.turns[i].SessionKey == sessionKey {
			out = append(out, s.turns[i])
		}
	}
	return out, nil
}

func (s *stubRecorder) DeleteSession(ctx context.Context, sessionKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.ConversationTurn
	var removed int64
	for _, turn := range s.turns {
		if turn.SessionKey == sessionKey {
			removed++
			continue
		}
		kept = append(kept, turn)
	}
	s.turns = kept
	return removed, s.err
}

func testSnapshot() *domain.AccountSnapshot {
	return &domain.AccountSnapshot{
		Accounts: []domain.Account{
			{
				ID:          "acc-1",
				Name:        "Everyday Checking",
				Institution: "First National",
				Type:        "depository",
				Balance:     decimal.RequireFromString("8240.55"),
				Currency:    "USD",
			},
		},
		Transactions: []domain.Transaction{
			{
				ID:        "txn-1",
				AccountID: "acc-1",
				Merchant:  "Corner Grocery",
				Amount:    decimal.RequireFromString("-84.12"),
				Category:  "groceries",
				Date:      time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
			},
		},
	}
}

type contextFixture struct {
	svc      *ContextService
	profiles *stubProfileSource
	market   *stubMarketSource
	advisor  *stubCompleter
	accounts *stubAccountSource
	recorder *stubRecorder
}

func newContextFixture() *contextFixture {
	f := &contextFixture{
		profiles: &stubProfileSource{},
		market:   &stubMarketSource{ctx: &domain.MarketContext{}},
		advisor:  &stubCompleter{answer: "Here is some guidance."},
		accounts: &stubAccountSource{snapshot: testSnapshot()},
		recorder: &stubRecorder{},
	}
	f.svc = NewContextService(
		trace.NewNoopTracerProvider().Tracer("test"),
		f.profiles,
		f.market,
		f.accounts,
		NewDemoAccountSource(),
		f.advisor,
		f.recorder,
		vault.NewSessionRegistry(30*time.Minute),
		time.Second,
		20,
	)
	return f
}

func premiumReq(question string) domain.QuestionRequest {
	return domain.QuestionRequest{Question: question, Tier: domain.TierPremium, UserID: "user-1"}
}

func TestStarterQuestionSkipsMarketAndProfile(t *testing.T) {
	f := newContextFixture()

	ans, err := f.svc.Answer(context.Background(), domain.QuestionRequest{
		Question: "Should I worry about the market this week?",
		Tier:     domain.TierStarter,
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.market.calls != 0 {
		t.Fatalf("starter tier must not touch the market orchestrator, got %d calls", f.market.calls)
	}
	if f.profiles.gets != 0 {
		t.Fatal("starter tier must not load the profile")
	}

	prompt := f.advisor.lastPrompt(t)
	if !strings.Contains(prompt, "market data is not included on the starter plan") {
		t.Fatalf("prompt must mention the tier limitation:\n%s", prompt)
	}
	if ans.UsedMarketContext || ans.UsedProfile {
		t.Fatalf("starter answer flags wrong: %+v", ans)
	}
}

func TestPremiumPromptCarriesMarketDigests(t *testing.T) {
	f := newContextFixture()
	f.market.ctx = &domain.MarketContext{Results: []domain.MarketResult{
		{Provider: domain.ProviderIndicators, Digest: "unemployment rate: 4.2 (as of 2025-07)"},
	}}

	ans, err := f.svc.Answer(context.Background(), premiumReq("How is the economy?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := f.advisor.lastPrompt(t)
	if !strings.Contains(prompt, "unemployment rate: 4.2 (as of 2025-07)") {
		t.Fatalf("prompt missing cached indicator digest:\n%s", prompt)
	}
	if !ans.UsedMarketContext {
		t.Fatal("answer should report market context usage")
	}
	if len(f.market.tiers) != 1 || f.market.tiers[0] != domain.TierPremium {
		t.Fatalf("market source saw wrong tier: %v", f.market.tiers)
	}
}

func TestPromptNeverContainsRawSensitiveValues(t *testing.T) {
	f := newContextFixture()
	f.profiles.profile = "35-year-old engineer earning $150,000 per year."

	if _, err := f.svc.Answer(context.Background(), premiumReq("Can I afford a vacation?")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := f.advisor.lastPrompt(t)
	for _, sensitive := range []string{"Everyday Checking", "First National", "Corner Grocery", "8240.55", "84.12", "$150,000"} {
		if strings.Contains(prompt, sensitive) {
			t.Fatalf("raw value %q leaked into the outbound prompt:\n%s", sensitive, prompt)
		}
	}
	for _, passthrough := range []string{"depository", "groceries", "USD"} {
		if !strings.Contains(prompt, passthrough) {
			t.Fatalf("non-sensitive value %q should pass through:\n%s", passthrough, prompt)
		}
	}
	if !strings.Contains(prompt, "Can I afford a vacation?") {
		t.Fatal("question missing from prompt")
	}
}

func TestAnswerIsDetokenized(t *testing.T) {
	f := newContextFixture()
	f.advisor.echo = true

	ans, err := f.svc.Answer(context.Background(), premiumReq("Where do I bank?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ans.Text, "First National") {
		t.Fatalf("institution marker not restored in answer:\n%s", ans.Text)
	}
	if !strings.Contains(ans.Text, "8240.55") {
		t.Fatalf("balance marker not restored in answer:\n%s", ans.Text)
	}
	if strings.Contains(ans.Text, "⟦") {
		t.Fatalf("unresolved markers remain in answer:\n%s", ans.Text)
	}
}

func TestMarkersStableAcrossTurnsInSession(t *testing.T) {
	f := newContextFixture()
	ctx := context.Background()

	if _, err := f.svc.Answer(ctx, premiumReq("first question")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	first := f.advisor.lastPrompt(t)
	if _, err := f.svc.Answer(ctx, premiumReq("second question")); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	second := f.advisor.lastPrompt(t)

	marker := markerIn(t, first)
	if !strings.Contains(second, marker) {
		t.Fatalf("marker %q from turn 1 missing in turn 2 prompt:\n%s", marker, second)
	}

	f.svc.InvalidateSession(ctx, premiumReq("").SessionKey())
	if _, err := f.svc.Answer(ctx, premiumReq("third question")); err != nil {
		t.Fatalf("turn 3: %v", err)
	}
}

func TestStoredHistoryEntersPromptRetokenized(t *testing.T) {
	f := newContextFixture()
	ctx := context.Background()

	// Stored turns carry real values; they must come back as markers.
	f.recorder.turns = append(f.recorder.turns, domain.ConversationTurn{
		SessionKey: premiumReq("").SessionKey(),
		Question:   "How much is in Everyday Checking?",
		Answer:     "Everyday Checking at First National holds 8240.55.",
		CreatedAt:  time.Now().UTC(),
	})

	if _, err := f.svc.Answer(ctx, premiumReq("and how about this month?")); err != nil {
		t.Fatalf("answer: %v", err)
	}
	prompt := f.advisor.lastPrompt(t)
	if !strings.Contains(prompt, "Recent conversation:") {
		t.Fatalf("history section missing from prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "Everyday Checking") || strings.Contains(prompt, "First National") {
		t.Fatalf("stored turn leaked raw values into prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "⟦ACCT_") || !strings.Contains(prompt, "⟦INST_") {
		t.Fatalf("history values not retokenized:\n%s", prompt)
	}
}

func markerIn(t *testing.T, prompt string) string {
	t.Helper()
	start := strings.Index(prompt, "⟦")
	end := strings.Index(prompt, "⟧")
	if start < 0 || end < start {
		t.Fatalf("no marker found in prompt:\n%s", prompt)
	}
	return prompt[start : end+len("⟧")]
}

func TestNewFactsFlowIntoProfileUpdate(t *testing.T) {
	f := newContextFixture()
	f.profiles.updated = make(chan struct{}, 1)

	question := "I'm a 35-year-old engineer earning $150,000. Can I retire at 60?"
	if _, err := f.svc.Answer(context.Background(), premiumReq(question)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-f.profiles.updated:
	case <-time.After(2 * time.Second):
		t.Fatal("profile update never ran")
	}

	f.profiles.mu.Lock()
	defer f.profiles.mu.Unlock()
	if len(f.profiles.updates) != 1 {
		t.Fatalf("expected one profile update, got %d", len(f.profiles.updates))
	}
	if f.profiles.updates[0].Question != question {
		t.Fatalf("update carries wrong turn: %+v", f.profiles.updates[0])
	}
	if f.profiles.vaults[0] == nil || !f.profiles.vaults[0].Contains("Everyday Checking") {
		t.Fatal("update must carry the session vault that tokenized the snapshot")
	}
}

func TestDemoRequestsNeverTouchProfile(t *testing.T) {
	f := newContextFixture()
	f.profiles.updated = make(chan struct{}, 1)

	ans, err := f.svc.Answer(context.Background(), domain.QuestionRequest{
		Question:      "What does my spending look like?",
		Tier:          domain.TierPremium,
		IsDemo:        true,
		DemoSessionID: "demo-abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.profiles.gets != 0 {
		t.Fatal("demo request must not load a profile")
	}

	select {
	case <-f.profiles.updated:
		t.Fatal("demo request must not trigger profile learning")
	case <-time.After(100 * time.Millisecond):
	}
	if ans.UsedProfile {
		t.Fatal("demo answer must not claim profile usage")
	}
}

func TestMarketFailureDoesNotFailAnswer(t *testing.T) {
	f := newContextFixture()
	f.market.err = errors.New("redis down")

	ans, err := f.svc.Answer(context.Background(), premiumReq("Any advice?"))
	if err != nil {
		t.Fatalf("market failure must not fail the answer: %v", err)
	}
	if ans.UsedMarketContext {
		t.Fatal("answer should not claim market context")
	}
}

func TestAdvisorFailureFailsAnswer(t *testing.T) {
	f := newContextFixture()
	f.advisor.err = errors.New("model unavailable")

	if _, err := f.svc.Answer(context.Background(), premiumReq("Any advice?")); err == nil {
		t.Fatal("expected error when the advisor fails")
	}
}

func TestConversationTurnRecorded(t *testing.T) {
	f := newContextFixture()

	if _, err := f.svc.Answer(context.Background(), premiumReq("How am I doing?")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if len(f.recorder.turns) != 1 {
		t.Fatalf("expected one recorded turn, got %d", len(f.recorder.turns))
	}
	turn := f.recorder.turns[0]
	if turn.SessionKey != "user:user-1" || turn.Question != "How am I doing?" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
}

func TestInvalidRequestRejected(t *testing.T) {
	f := newContextFixture()

	cases := []domain.QuestionRequest{
		{Tier: domain.TierPremium, UserID: "user-1"},
		{Question: "hi", Tier: "platinum", UserID: "user-1"},
		{Question: "hi", Tier: domain.TierPremium},
		{Question: "hi", Tier: domain.TierPremium, IsDemo: true},
	}
	for i, req := range cases {
		if _, err := f.svc.Answer(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, req)
		}
	}
	if len(f.advisor.prompts) != 0 {
		t.Fatal("invalid requests must never reach the advisor")
	}
}
