package vault

import (
	"regexp"

	"finsight/internal/domain"
)

// dollarPattern finds dollar figures inside free-form profile text,
// e.g. "$150,000" or "$1,234.56". Those are sensitive even when the
// surrounding prose is not.
var dollarPattern = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)

// TokenizedAccount mirrors domain.Account with every sensitive scalar
// replaced by a marker. Balance becomes a string because the real
// figure must not survive in any numeric field.
type TokenizedAccount struct {
	Name        string
	Institution string
	Type        string
	Balance     string
	Currency    string
}

type TokenizedTransaction struct {
	Merchant string
	Amount   string
	Category string
	Date     string
}

// TokenizedPayload is the outbound form of the context: safe to embed
// in an LLM prompt, reversible only through the vault that produced it.
type TokenizedPayload struct {
	Profile      string
	Accounts     []TokenizedAccount
	Transactions []TokenizedTransaction
}

// Tokenize rewrites the profile text and account snapshot into marker
// form using v. Account type, category and currency are not sensitive
// and pass through; names, institutions, merchants and every dollar
// figure are replaced. The snapshot is tokenized first so prose that
// names an account or institution resolves to the same marker.
func Tokenize(v *Vault, profile string, snapshot *domain.AccountSnapshot) *TokenizedPayload {
	out := &TokenizedPayload{}
	if snapshot != nil {
		out.Accounts = make([]TokenizedAccount, 0, len(snapshot.Accounts))
		for _, a := range snapshot.Accounts {
			out.Accounts = append(out.Accounts, TokenizedAccount{
				Name:        v.Token(KindAccount, a.Name),
				Institution: v.Token(KindInstitution, a.Institution),
				Type:        a.Type,
				Balance:     v.Token(KindBalance, a.Balance.StringFixed(2)),
				Currency:    a.Currency,
			})
		}

		out.Transactions = make([]TokenizedTransaction, 0, len(snapshot.Transactions))
		for _, t := range snapshot.Transactions {
			out.Transactions = append(out.Transactions, TokenizedTransaction{
				Merchant: v.Token(KindMerchant, t.Merchant),
				Amount:   v.Token(KindAmount, t.Amount.StringFixed(2)),
				Category: t.Category,
				Date:     t.Date.Format("2006-01-02"),
			})
		}
	}

	out.Profile = v.Retokenize(TokenizeText(v, profile))
	return out
}

// TokenizeText replaces dollar figures in free text with amount
// markers. Used for profile prose, where structure is unknown.
func TokenizeText(v *Vault, text string) string {
	if text == "" {
		return ""
	}
	return dollarPattern.ReplaceAllStringFunc(text, func(match string) string {
		return v.Token(KindAmount, match)
	})
}
