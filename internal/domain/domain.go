package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account is one linked financial account as supplied by the upstream
// aggregation layer. Balances are exact decimals, never floats.
type Account struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Institution string          `json:"institution"`
	Type        string          `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
}

type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Merchant  string          `json:"merchant"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Date      time.Time       `json:"date"`
}

// AccountSnapshot is the account/transaction view for one user at the
// moment a question is asked. It is consumed as-is by the tokenization
// boundary; this pipeline never fetches it itself.
type AccountSnapshot struct {
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// MarketResult is one provider's normalized contribution to the market
// context, already condensed into a short digest with its as-of date.
type MarketResult struct {
	Provider  string    `json:"provider"`
	QueryKey  string    `json:"query_key"`
	Digest    string    `json:"digest"`
	AsOf      time.Time `json:"as_of"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale,omitempty"`
}

// MarketContext is the tier-filtered market snapshot handed to the
// context assembler. Providers that failed are listed in Degraded
// rather than failing the whole context.
type MarketContext struct {
	Results     []MarketResult `json:"results"`
	Degraded    []string       `json:"degraded,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type CacheStats struct {
	Entries     int            `json:"entries"`
	ByProvider  map[string]int `json:"by_provider"`
	Hits        int64          `json:"hits"`
	Misses      int64          `json:"misses"`
	StaleServes int64          `json:"stale_serves"`
}

// EncryptedProfile is the at-rest form of a user profile. Ciphertext is
// only ever produced by the algorithm/key-version pairing recorded with
// it; decrypting under any other key fails closed.
type EncryptedProfile struct {
	ProfileHash string
	Ciphertext  []byte
	IV          []byte
	Tag         []byte
	KeyVersion  int
	Algorithm   string
	UpdatedAt   time.Time
}

type ConversationTurn struct {
	SessionKey string
	Question   string
	Answer     string
	CreatedAt  time.Time
}

// QuestionRequest is the inbound contract from the HTTP/CRUD layer.
type QuestionRequest struct {
	Question      string `json:"question"`
	Tier          Tier   `json:"tier"`
	UserID        string `json:"user_id,omitempty"`
	DemoSessionID string `json:"demo_session_id,omitempty"`
	IsDemo        bool   `json:"is_demo,omitempty"`
}

// SessionKey identifies the conversation session a request belongs to.
// Token vaults are scoped to it so multi-turn conversations keep
// referring to the same tokenized account.
func (r QuestionRequest) SessionKey() string {
	if r.IsDemo {
		return "demo:" + r.DemoSessionID
	}
	return "user:" + r.UserID
}

func (r QuestionRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question is required")
	}
	if !r.Tier.IsValid() {
		return fmt.Errorf("invalid tier: %s", r.Tier)
	}
	if r.IsDemo {
		if r.DemoSessionID == "" {
			return fmt.Errorf("demo_session_id is required for demo requests")
		}
	} else if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

type Answer struct {
	Text              string   `json:"text"`
	Tier              Tier     `json:"tier"`
	UsedMarketContext bool     `json:"used_market_context"`
	UsedProfile       bool     `json:"used_profile"`
	DegradedProviders []string `json:"degraded_providers,omitempty"`
}
