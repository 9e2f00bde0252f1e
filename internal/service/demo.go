package service

import (
	"context"
	"hash/fnv"
	"time"

	"finsight/internal/domain"

	"github.com/shopspring/decimal"
)

// DemoAccountSource generates a deterministic synthetic snapshot per
// demo session. The tokenization path treats it exactly like real
// data; there is simply no real PII behind it.
type DemoAccountSource struct{}

func NewDemoAccountSource() *DemoAccountSource { return &DemoAccountSource{} }

var demoInstitutions = []string{"Harborview Bank", "Summit Credit Union", "Lakeside Trust"}

var demoMerchants = []string{"Corner Grocery", "Transit Authority", "Riverside Cafe", "City Utilities"}

func (d *DemoAccountSource) Snapshot(ctx context.Context, demoSessionID string) (*domain.AccountSnapshot, error) {
	h := fnv.New32a()
	h.Write([]byte(demoSessionID))
	seed := int64(h.Sum32())

	inst := demoInstitutions[seed%int64(len(demoInstitutions))]
	checking := decimal.New(150000+seed%900000, -2)
	savings := decimal.New(1000000+(seed*7)%4000000, -2)

	now := time.Now().UTC()
	snapshot := &domain.AccountSnapshot{
		Accounts: []domain.Account{
			{
				ID:          "demo-checking",
				Name:        "Demo Checking",
				Institution: inst,
				Type:        "depository",
				Balance:     checking,
				Currency:    "USD",
			},
			{
				ID:          "demo-savings",
				Name:        "Demo Savings",
				Institution: inst,
				Type:        "depository",
				Balance:     savings,
				Currency:    "USD",
			},
		},
	}

	for i := 0; i < 4; i++ {
		amount := decimal.New(-(2000 + (seed*int64(i+3))%15000), -2)
		snapshot.Transactions = append(snapshot.Transactions, domain.Transaction{
			ID:        "demo-txn-" + string(rune('a'+i)),
			AccountID: "demo-checking",
			Merchant:  demoMerchants[(int(seed)+i)%len(demoMerchants)],
			Amount:    amount,
			Category:  "everyday",
			Date:      now.AddDate(0, 0, -i),
		})
	}
	return snapshot, nil
}
