package treasury

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Simulator feeds the payment queue with synthetic traffic for demos and
// load exercises.
type Simulator struct {
	mu       sync.Mutex
	svc      *Service
	interval time.Duration
	maxCents int64
	stop     chan struct{}
	running  bool
}

// NewSimulator creates a stopped simulator over the service.
func NewSimulator(svc *Service) *Simulator {
	return &Simulator{
		svc:      svc,
		interval: 15 * time.Second,
		maxCents: 250_000_00,
	}
}

var simBeneficiaries = []string{
	"Nordwind Logistics GmbH",
	"Helix Data Services Ltd",
	"Clearstream Services SA",
	"Meridian Office Supply",
	"Atlas Freight BV",
}

// Configure sets the generation interval and the amount ceiling. Takes
// effect on the next Start; a running simulator keeps its current settings.
func (s *Simulator) Configure(interval time.Duration, maxCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval > 0 {
		s.interval = interval
	}
	if maxCents > 0 {
		s.maxCents = maxCents
	}
}

// Running reports whether the simulator is generating traffic.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins generating synthetic payments. Idempotent.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.run(s.stop, s.interval, s.maxCents)
}

// Stop halts generation. Idempotent.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

func (s *Simulator) run(stop chan struct{}, interval time.Duration, maxCents int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	accounts := s.svc.ListAccounts()
	for {
		select {
		case <-ticker.C:
			if len(accounts) == 0 {
				continue
			}
			from := accounts[rand.IntN(len(accounts))]
			p := s.svc.SubmitPayment(
				from.ID,
				simBeneficiaries[rand.IntN(len(simBeneficiaries))],
				1_00+rand.Int64N(maxCents),
				from.Currency,
				"simulated traffic",
			)
			slog.Debug("simulator queued payment", "payment_id", p.ID, "amount_cents", p.AmountCents)
		case <-stop:
			return
		}
	}
}
