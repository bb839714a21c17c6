package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type simTransaction struct {
	id          string
	amount      decimal.Decimal
	description string
	returnURL   string
	status      Status
	createdAt   time.Time
	updatedAt   time.Time
}

type simRefund struct {
	id            string
	transactionID string
	amount        decimal.Decimal
	createdAt     time.Time
}

// SimulatedGateway is an in-memory processor. Transactions stay pending until
// Complete settles them, so outcomes are deterministic.
type SimulatedGateway struct {
	mu           sync.Mutex
	checkoutURL  string
	transactions map[string]*simTransaction
	refunds      map[string]*simRefund
}

// NewSimulatedGateway creates a simulator whose payment URLs point at checkoutURL
func NewSimulatedGateway(checkoutURL string) *SimulatedGateway {
	if checkoutURL == "" {
		checkoutURL = "http://mock-payment.local/pay"
	}
	return &SimulatedGateway{
		checkoutURL:  checkoutURL,
		transactions: make(map[string]*simTransaction),
		refunds:      make(map[string]*simRefund),
	}
}

// CreatePayment opens a pending transaction
func (g *SimulatedGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, description, returnURL string) (*CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}

	now := time.Now().UTC()
	tx := &simTransaction{
		id:          uuid.NewString(),
		amount:      amount,
		description: description,
		returnURL:   returnURL,
		status:      StatusPending,
		createdAt:   now,
		updatedAt:   now,
	}

	g.mu.Lock()
	g.transactions[tx.id] = tx
	g.mu.Unlock()

	q := url.Values{}
	q.Set("id", tx.id)
	q.Set("amount", amount.String())
	q.Set("redirect", returnURL)

	return &CreateResult{
		TransactionID: tx.id,
		PaymentURL:    g.checkoutURL + "?" + q.Encode(),
		Status:        StatusPending,
	}, nil
}

// VerifyPayment reports the current status of a transaction
func (g *SimulatedGateway) VerifyPayment(ctx context.Context, transactionID string) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", transactionID, ErrUnknownTransaction)
	}
	return &VerifyResult{TransactionID: tx.id, Amount: tx.amount, Status: tx.status}, nil
}

// ProcessRefund refunds a successful transaction. A declined refund is
// reported through the result, not the error.
func (g *SimulatedGateway) ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.transactions[transactionID]
	if !ok {
		return &RefundResult{Status: RefundError, TransactionID: transactionID, Message: "transaction does not exist"}, nil
	}
	if tx.status != StatusSuccess {
		return &RefundResult{Status: RefundError, TransactionID: transactionID, Message: "only successful transactions can be refunded"}, nil
	}
	if amount.IsNegative() || amount.GreaterThan(tx.amount) {
		return &RefundResult{Status: RefundError, TransactionID: transactionID, Message: "refund amount exceeds transaction amount"}, nil
	}

	now := time.Now().UTC()
	refund := &simRefund{id: uuid.NewString(), transactionID: transactionID, amount: amount, createdAt: now}
	g.refunds[refund.id] = refund
	tx.status = StatusRefunded
	tx.updatedAt = now

	return &RefundResult{
		Status:        RefundSuccess,
		RefundID:      refund.id,
		TransactionID: transactionID,
		Amount:        amount,
	}, nil
}

// Complete settles a pending transaction as paid or failed
func (g *SimulatedGateway) Complete(transactionID string, success bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.transactions[transactionID]
	if !ok {
		return fmt.Errorf("%s: %w", transactionID, ErrUnknownTransaction)
	}
	if tx.status != StatusPending {
		return fmt.Errorf("transaction %s is %s, not pending", transactionID, tx.status)
	}
	tx.status = StatusFailed
	if success {
		tx.status = StatusSuccess
	}
	tx.updatedAt = time.Now().UTC()
	return nil
}
