// Package treasury is the thin back-office business layer: payment approvals,
// account limits, user onboarding, and admin adjustments. State is in-memory —
// the point of these services is to exercise the gating subsystem in front of
// them, not to be a ledger.
package treasury

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kordun/tresor/internal/idgen"
)

// Typed business errors.
var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAlreadyDecided     = errors.New("payment already decided")
	ErrAccountNotFound    = errors.New("account not found")
	ErrOnboardingNotFound = errors.New("onboarding request not found")
)

// PaymentStatus is the lifecycle state of an outgoing payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment is one outgoing payment awaiting back-office approval.
type Payment struct {
	ID          string        `json:"id"`
	FromAccount string        `json:"fromAccount"`
	Beneficiary string        `json:"beneficiary"`
	AmountCents int64         `json:"amountCents"`
	Currency    string        `json:"currency"`
	Reference   string        `json:"reference"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	DecidedAt   *time.Time    `json:"decidedAt,omitempty"`
	DecidedBy   string        `json:"decidedBy,omitempty"`
}

// Account is a treasury account with a daily payment limit.
type Account struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Currency        string    `json:"currency"`
	BalanceCents    int64     `json:"balanceCents"`
	DailyLimitCents int64     `json:"dailyLimitCents"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// OnboardingStatus is the lifecycle state of a user onboarding request.
type OnboardingStatus string

const (
	OnboardingPending  OnboardingStatus = "pending"
	OnboardingApproved OnboardingStatus = "approved"
	OnboardingRejected OnboardingStatus = "rejected"
)

// Onboarding is one pending back-office user awaiting approval.
type Onboarding struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	FullName  string           `json:"fullName"`
	Role      string           `json:"role"`
	Status    OnboardingStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	DecidedBy string           `json:"decidedBy,omitempty"`
}

// Service holds the back-office state.
type Service struct {
	mu          sync.RWMutex
	payments    map[string]*Payment
	accounts    map[string]*Account
	onboardings map[string]*Onboarding
}

// NewService creates a service seeded with demo data.
func NewService() *Service {
	s := &Service{
		payments:    make(map[string]*Payment),
		accounts:    make(map[string]*Account),
		onboardings: make(map[string]*Onboarding),
	}
	s.seed()
	return s
}

func (s *Service) seed() {
	for _, a := range []*Account{
		{ID: "acct_operating", Name: "Operating", Currency: "EUR", BalanceCents: 12_500_000_00, DailyLimitCents: 500_000_00},
		{ID: "acct_payroll", Name: "Payroll", Currency: "EUR", BalanceCents: 3_200_000_00, DailyLimitCents: 1_000_000_00},
		{ID: "acct_reserve", Name: "Reserve", Currency: "USD", BalanceCents: 48_000_000_00, DailyLimitCents: 250_000_00},
	} {
		a.UpdatedAt = time.Now()
		s.accounts[a.ID] = a
	}

	s.SubmitPayment("acct_operating", "Nordwind Logistics GmbH", 48_250_00, "EUR", "INV-2024-1187")
	s.SubmitPayment("acct_operating", "Clearstream Services SA", 310_000_00, "EUR", "settlement batch 88")
	s.SubmitPayment("acct_payroll", "Payroll run 2024-06", 1_184_400_00, "EUR", "monthly payroll")

	for _, o := range []*Onboarding{
		{UserID: "mkline", FullName: "M. Kline", Role: "operator"},
		{UserID: "rsato", FullName: "R. Sato", Role: "treasurer"},
	} {
		o.ID = idgen.WithPrefix("onb_")
		o.Status = OnboardingPending
		o.CreatedAt = time.Now()
		s.onboardings[o.ID] = o
	}
}

// SubmitPayment queues a new pending payment.
func (s *Service) SubmitPayment(fromAccount, beneficiary string, amountCents int64, currency, reference string) *Payment {
	p := &Payment{
		ID:          idgen.WithPrefix("pay_"),
		FromAccount: fromAccount,
		Beneficiary: beneficiary,
		AmountCents: amountCents,
		Currency:    currency,
		Reference:   reference,
		Status:      PaymentPending,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.payments[p.ID] = p
	s.mu.Unlock()
	return p
}

// ListPayments returns payments, newest first, optionally filtered by status.
func (s *Service) ListPayments(status PaymentStatus) []*Payment {
	s.mu.RLock()
	out := make([]*Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetPayment returns one payment.
func (s *Service) GetPayment(id string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

// ApprovePayment releases a pending payment and debits the source account.
func (s *Service) ApprovePayment(id, decidedBy string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if p.Status != PaymentPending {
		return nil, ErrAlreadyDecided
	}

	if a, ok := s.accounts[p.FromAccount]; ok {
		a.BalanceCents -= p.AmountCents
		a.UpdatedAt = time.Now()
	}

	now := time.Now()
	p.Status = PaymentApproved
	p.DecidedAt = &now
	p.DecidedBy = decidedBy
	cp := *p
	return &cp, nil
}

// RejectPayment declines a pending payment.
func (s *Service) RejectPayment(id, decidedBy string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if p.Status != PaymentPending {
		return nil, ErrAlreadyDecided
	}

	now := time.Now()
	p.Status = PaymentRejected
	p.DecidedAt = &now
	p.DecidedBy = decidedBy
	cp := *p
	return &cp, nil
}

// ListAccounts returns all accounts.
func (s *Service) ListAccounts() []*Account {
	s.mu.RLock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAccount returns one account.
func (s *Service) GetAccount(id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// UpdateLimit changes an account's daily payment limit.
func (s *Service) UpdateLimit(id string, dailyLimitCents int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a.DailyLimitCents = dailyLimitCents
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

// AdjustBalance applies an admin balance correction (signed delta).
func (s *Service) AdjustBalance(id string, deltaCents int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a.BalanceCents += deltaCents
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

// ListOnboardings returns onboarding requests, newest first.
func (s *Service) ListOnboardings(status OnboardingStatus) []*Onboarding {
	s.mu.RLock()
	out := make([]*Onboarding, 0, len(s.onboardings))
	for _, o := range s.onboardings {
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// DecideOnboarding approves or rejects a pending onboarding request.
func (s *Service) DecideOnboarding(id string, approve bool, decidedBy string) (*Onboarding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.onboardings[id]
	if !ok {
		return nil, ErrOnboardingNotFound
	}
	if o.Status != OnboardingPending {
		return nil, ErrAlreadyDecided
	}

	if approve {
		o.Status = OnboardingApproved
	} else {
		o.Status = OnboardingRejected
	}
	o.DecidedBy = decidedBy
	cp := *o
	return &cp, nil
}
