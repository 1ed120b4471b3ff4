package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kustodia/settlement-service/internal/config"
	"github.com/kustodia/settlement-service/internal/domain"
	"github.com/kustodia/settlement-service/internal/store"
	"github.com/kustodia/settlement-service/pkg/chainclient"
	"github.com/kustodia/settlement-service/pkg/junoclient"
)

// fakeRepo is an in-memory store.Repository with the same conditional-write
// semantics as the Postgres implementation.
type fakeRepo struct {
	mu         sync.Mutex
	payments   map[uuid.UUID]*domain.Payment
	users      map[uuid.UUID]*domain.User
	escrows    map[uuid.UUID]*domain.Escrow
	events     []*domain.PaymentEvent
	approvals  map[uuid.UUID]*domain.ApprovalRequest
	signatures map[uuid.UUID][]*domain.ApprovalSignature
	owners     map[string]map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments:   make(map[uuid.UUID]*domain.Payment),
		users:      make(map[uuid.UUID]*domain.User),
		escrows:    make(map[uuid.UUID]*domain.Escrow),
		approvals:  make(map[uuid.UUID]*domain.ApprovalRequest),
		signatures: make(map[uuid.UUID][]*domain.ApprovalSignature),
		owners:     make(map[string]map[string]bool),
	}
}

var _ store.Repository = (*fakeRepo)(nil)

func (r *fakeRepo) addOwner(walletType, addr string) {
	if r.owners[walletType] == nil {
		r.owners[walletType] = make(map[string]bool)
	}
	r.owners[walletType][strings.ToLower(addr)] = true
}

func (r *fakeRepo) FindPaymentByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakeRepo) FindPendingDepositPayments(context.Context) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.PaymentStatusPending && p.DepositCLABE != "" {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindProcessingPayments(context.Context) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.PaymentStatusProcessing {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkPaymentFunded(_ context.Context, id uuid.UUID, reference, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	p.Status = domain.PaymentStatusFunded
	p.DepositReference = &reference
	p.DepositTransaction = &transactionID
	return true, nil
}

func (r *fakeRepo) UpdatePaymentStatus(_ context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error) {
	if _, err := from.Transition(to); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (r *fakeRepo) FindUserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeRepo) FindEscrowByID(_ context.Context, id uuid.UUID) (*domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, store.ErrEscrowNotFound
	}
	clone := *e
	return &clone, nil
}

func (r *fakeRepo) FindEscrowByPaymentID(_ context.Context, paymentID uuid.UUID) (*domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.escrows {
		if e.PaymentID == paymentID {
			clone := *e
			return &clone, nil
		}
	}
	return nil, store.ErrEscrowNotFound
}

func (r *fakeRepo) FindFundableEscrows(context.Context) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		p := r.payments[e.PaymentID]
		if e.Status == domain.EscrowStatusPending && e.SmartContractEscrowID == nil && p != nil && p.Status == domain.PaymentStatusFunded {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindReleasableEscrows(_ context.Context, now time.Time) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		if e.Status == domain.EscrowStatusActive && !e.CustodyEnd.After(now) && e.ReleaseTxHash == nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindReleasedEscrows(context.Context) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		if e.Status == domain.EscrowStatusReleased {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) RecordFundingTxSubmitted(_ context.Context, id uuid.UUID, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if ok && e.FundingTxHash == nil {
		e.FundingTxHash = &txHash
		e.UpdatedAt = time.Now()
	}
	return nil
}

func (r *fakeRepo) AttachEscrowContract(_ context.Context, id uuid.UUID, contractEscrowID, fundingTxHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok || e.SmartContractEscrowID != nil {
		return false, nil
	}
	e.SmartContractEscrowID = &contractEscrowID
	e.FundingTxHash = &fundingTxHash
	e.Status = domain.EscrowStatusActive
	return true, nil
}

func (r *fakeRepo) MarkEscrowReleased(_ context.Context, id uuid.UUID, releaseTxHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok || e.ReleaseTxHash != nil {
		return false, nil
	}
	e.ReleaseTxHash = &releaseTxHash
	e.Status = domain.EscrowStatusReleased
	return true, nil
}

func (r *fakeRepo) UpdateEscrowStatus(_ context.Context, id uuid.UUID, from, to domain.EscrowStatus) (bool, error) {
	if _, err := from.Transition(to); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (r *fakeRepo) FindEscrowsMissingContractID(_ context.Context, submittedBefore time.Time) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		if e.FundingTxHash != nil && e.SmartContractEscrowID == nil && !e.UpdatedAt.After(submittedBefore) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindOverdueActiveEscrows(_ context.Context, custodyEndBefore time.Time) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		if e.Status == domain.EscrowStatusActive && !e.CustodyEnd.After(custodyEndBefore) && e.ReleaseTxHash == nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindLegacyStatusEscrows(context.Context) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		if e.Status == domain.EscrowStatusLegacyFunded {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) AppendEvent(_ context.Context, event *domain.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(event)
}

func (r *fakeRepo) appendLocked(event *domain.PaymentEvent) error {
	clone := *event
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	r.events = append(r.events, &clone)
	return nil
}

func (r *fakeRepo) AppendEventOnce(_ context.Context, event *domain.PaymentEvent) (bool, error) {
	if !domain.EventAtMostOnce(event.Type) {
		return false, fmt.Errorf("event type %q is not registered as at-most-once", event.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.events {
		if existing.PaymentID == event.PaymentID && existing.Type == event.Type {
			return false, nil
		}
	}
	return true, r.appendLocked(event)
}

func (r *fakeRepo) HasEvent(_ context.Context, paymentID uuid.UUID, eventType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.PaymentID == paymentID && e.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) FindLatestEvent(_ context.Context, paymentID uuid.UUID, eventType string) (*domain.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.PaymentEvent
	for _, e := range r.events {
		if e.PaymentID == paymentID && e.Type == eventType {
			if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
				latest = e
			}
		}
	}
	if latest == nil {
		return nil, store.ErrEventNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *fakeRepo) CountEventsSince(_ context.Context, paymentID uuid.UUID, eventType string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.PaymentID == paymentID && e.Type == eventType && e.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) countEvents(paymentID uuid.UUID, eventType string) int {
	n, _ := r.CountEventsSince(context.Background(), paymentID, eventType, time.Time{})
	return n
}

func (r *fakeRepo) CreatePendingApprovalRequest(_ context.Context, req *domain.ApprovalRequest) (*domain.ApprovalRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.approvals {
		if existing.PaymentID == req.PaymentID && existing.Status == domain.ApprovalStatusPending {
			clone := *existing
			return &clone, false, nil
		}
	}
	clone := *req
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	clone.Status = domain.ApprovalStatusPending
	clone.CreatedAt = time.Now()
	r.approvals[clone.ID] = &clone
	result := clone
	return &result, true, nil
}

func (r *fakeRepo) FindApprovalRequestByID(_ context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.approvals[id]
	if !ok {
		return nil, store.ErrApprovalRequestNotFound
	}
	clone := *req
	return &clone, nil
}

func (r *fakeRepo) FindApprovalRequestForPayment(_ context.Context, paymentID uuid.UUID) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.ApprovalRequest
	for _, req := range r.approvals {
		if req.PaymentID == paymentID {
			if newest == nil || req.CreatedAt.After(newest.CreatedAt) {
				newest = req
			}
		}
	}
	if newest == nil {
		return nil, store.ErrApprovalRequestNotFound
	}
	clone := *newest
	return &clone, nil
}

func (r *fakeRepo) ListApprovalRequests(_ context.Context, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, req := range r.approvals {
		if req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *fakeRepo) AddApprovalSignature(_ context.Context, sig *domain.ApprovalSignature) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.signatures[sig.RequestID] {
		if strings.EqualFold(existing.SignerAddress, sig.SignerAddress) {
			return false, nil
		}
	}
	clone := *sig
	clone.SignedAt = time.Now()
	r.signatures[sig.RequestID] = append(r.signatures[sig.RequestID], &clone)
	return true, nil
}

func (r *fakeRepo) CountApprovalSignatures(_ context.Context, requestID uuid.UUID, kind domain.SignatureKind) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, sig := range r.signatures[requestID] {
		if sig.Kind == kind {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) UpdateApprovalStatus(_ context.Context, requestID uuid.UUID, from, to domain.ApprovalStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.approvals[requestID]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	return true, nil
}

func (r *fakeRepo) ExpirePendingApprovals(_ context.Context, now time.Time) ([]domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.ApprovalRequest
	for _, req := range r.approvals {
		if req.Status == domain.ApprovalStatusPending && !req.ExpiresAt.After(now) {
			req.Status = domain.ApprovalStatusExpired
			expired = append(expired, *req)
		}
	}
	return expired, nil
}

func (r *fakeRepo) RequeueExpiredApproval(_ context.Context, requestID uuid.UUID, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.approvals[requestID]
	if !ok || req.Status != domain.ApprovalStatusExpired {
		return false, nil
	}
	req.Status = domain.ApprovalStatusPending
	req.ExpiresAt = expiresAt
	return true, nil
}

func (r *fakeRepo) IsWalletOwner(_ context.Context, walletType, signerAddress string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[walletType][strings.ToLower(signerAddress)], nil
}

// stubChain is a scripted ChainGateway.
type stubChain struct {
	mu          sync.Mutex
	nextID      int
	created     []chainclient.CreateEscrowParams
	funded      []string
	released    []string
	states      map[string]*chainclient.EscrowState
	statesByTx  map[string]*chainclient.EscrowState
	createErr   error
	fundErr     error
	releaseErr  error
	getErr      error
	getByTxErr  error
}

func newStubChain() *stubChain {
	return &stubChain{
		nextID:     1,
		states:     make(map[string]*chainclient.EscrowState),
		statesByTx: make(map[string]*chainclient.EscrowState),
	}
}

func (c *stubChain) CreateEscrow(_ context.Context, params chainclient.CreateEscrowParams) (*chainclient.EscrowCreated, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, params)
	id := fmt.Sprintf("%d", c.nextID)
	c.nextID++
	txHash := "0xcreate" + id
	c.states[id] = &chainclient.EscrowState{EscrowID: id, Amount: params.Amount, Deadline: params.Deadline}
	c.statesByTx[txHash] = c.states[id]
	return &chainclient.EscrowCreated{EscrowID: id, TxHash: txHash}, nil
}

func (c *stubChain) FundEscrow(_ context.Context, escrowID string, amount int64) (*chainclient.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fundErr != nil {
		return nil, c.fundErr
	}
	c.funded = append(c.funded, escrowID)
	if state, ok := c.states[escrowID]; ok {
		state.IsFunded = true
	}
	return &chainclient.TxResult{TxHash: "0xfund" + escrowID}, nil
}

func (c *stubChain) ReleaseEscrow(_ context.Context, escrowID string) (*chainclient.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releaseErr != nil {
		return nil, c.releaseErr
	}
	c.released = append(c.released, escrowID)
	if state, ok := c.states[escrowID]; ok {
		state.IsReleased = true
	}
	return &chainclient.TxResult{TxHash: "0xrelease" + escrowID}, nil
}

func (c *stubChain) GetEscrow(_ context.Context, escrowID string) (*chainclient.EscrowState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	state, ok := c.states[escrowID]
	if !ok {
		return nil, fmt.Errorf("escrow %s not found on chain", escrowID)
	}
	clone := *state
	return &clone, nil
}

func (c *stubChain) GetEscrowByTx(_ context.Context, txHash string) (*chainclient.EscrowState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getByTxErr != nil {
		return nil, c.getByTxErr
	}
	state, ok := c.statesByTx[txHash]
	if !ok {
		return nil, fmt.Errorf("no escrow for tx %s", txHash)
	}
	clone := *state
	return &clone, nil
}

// stubFiat is a scripted FiatGateway.
type stubFiat struct {
	mu           sync.Mutex
	deposits     []junoclient.SpeiDeposit
	withdrawals  []decimal.Decimal
	redemptions  []string // idempotency keys
	registered   []string // CLABEs
	transactions []junoclient.Transaction
	redeemErr    error
	withdrawErr  error
	nextRedeemID int
}

func newStubFiat() *stubFiat {
	return &stubFiat{nextRedeemID: 1}
}

func (f *stubFiat) ListSpeiDeposits(context.Context) ([]junoclient.SpeiDeposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]junoclient.SpeiDeposit(nil), f.deposits...), nil
}

func (f *stubFiat) RegisterBankAccount(_ context.Context, clabe, recipientName, tag, idempotencyKey string) (*junoclient.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, clabe)
	return &junoclient.BankAccount{ID: "bank-" + clabe, CLABE: clabe}, nil
}

func (f *stubFiat) GetRegisteredBankAccounts(context.Context) ([]junoclient.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	accounts := make([]junoclient.BankAccount, 0, len(f.registered))
	for _, clabe := range f.registered {
		accounts = append(accounts, junoclient.BankAccount{ID: "bank-" + clabe, CLABE: clabe})
	}
	return accounts, nil
}

func (f *stubFiat) RedeemMXNB(_ context.Context, amount decimal.Decimal, bankAccountID, idempotencyKey string) (*junoclient.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	f.redemptions = append(f.redemptions, idempotencyKey)
	id := fmt.Sprintf("red-%d", f.nextRedeemID)
	f.nextRedeemID++
	return &junoclient.Redemption{ID: id, Amount: amount, Status: "IN_PROGRESS"}, nil
}

func (f *stubFiat) WithdrawToBridge(_ context.Context, amount decimal.Decimal, bridgeAddress, idempotencyKey string) (*junoclient.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.withdrawErr != nil {
		return nil, f.withdrawErr
	}
	f.withdrawals = append(f.withdrawals, amount)
	return &junoclient.Withdrawal{ID: "wd-1", Amount: amount, Status: "SUCCEEDED"}, nil
}

func (f *stubFiat) GetTransactionStatus(context.Context) ([]junoclient.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]junoclient.Transaction(nil), f.transactions...), nil
}

// stubPublisher records published events.
type stubPublisher struct {
	mu     sync.Mutex
	routes []string
}

func (p *stubPublisher) Publish(_ context.Context, _, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, routingKey)
	return nil
}

func (p *stubPublisher) Close() {}

func testConfig() config.Config {
	return config.Config{
		EventExchange:                "kustodia.settlement",
		BridgeWallet:                 "0xbridge",
		TokenAddress:                 "0xmxnb",
		FundingGraceMinutes:          10,
		ReleaseGraceMinutes:          30,
		FundingTimeoutMinutes:        20,
		MaxFundingAttempts:           3,
		BackoffBaseMinutes:           5,
		FXMXNPerUSD:                  18.0,
		HighValueThresholdUSD:        1000.0,
		EnterpriseThresholdUSD:       10000.0,
		HighValueRequiredSignatures:  2,
		EnterpriseRequiredSignatures: 2,
		ApprovalExpiryHours:          72,
	}
}

type fixture struct {
	repo     *fakeRepo
	chain    *stubChain
	fiat     *stubFiat
	producer *stubPublisher
	gate     *MultiSigGate
	engine   *Engine
	safety   *SafetyService
}

func newFixture() *fixture {
	repo := newFakeRepo()
	chain := newStubChain()
	fiat := newStubFiat()
	producer := &stubPublisher{}
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := NewMultiSigGate(repo, producer, logger, cfg)
	engine := NewEngine(repo, chain, fiat, producer, gate, logger, cfg)
	safety := NewSafetyService(repo, chain, producer, logger, cfg)
	return &fixture{repo: repo, chain: chain, fiat: fiat, producer: producer, gate: gate, engine: engine, safety: safety}
}

func (f *fixture) addPayment(amount string, status domain.PaymentStatus) *domain.Payment {
	payee := &domain.User{ID: uuid.New(), Email: "seller@example.com"}
	clabe := "710969000000351083"
	bankID := "bank-registered"
	payee.PayoutCLABE = &clabe
	payee.JunoBankAccountID = &bankID
	f.repo.users[payee.ID] = payee

	p := &domain.Payment{
		ID:           uuid.New(),
		Amount:       decimal.RequireFromString(amount),
		Currency:     "MXN",
		Status:       status,
		PayerID:      uuid.New(),
		PayeeID:      payee.ID,
		DepositCLABE: "710969000000396022",
		VerticalType: "general",
	}
	f.repo.payments[p.ID] = p
	return p
}

func (f *fixture) addEscrow(p *domain.Payment, status domain.EscrowStatus, custodyEnd time.Time) *domain.Escrow {
	e := &domain.Escrow{
		ID:            uuid.New(),
		PaymentID:     p.ID,
		CustodyAmount: p.Amount,
		CustodyEnd:    custodyEnd,
		Status:        status,
		UpdatedAt:     time.Now(),
	}
	f.repo.escrows[e.ID] = e
	return e
}

func (f *fixture) attachContract(e *domain.Escrow, contractID string, funded bool) {
	id := contractID
	tx := "0xfunding" + contractID
	f.repo.escrows[e.ID].SmartContractEscrowID = &id
	f.repo.escrows[e.ID].FundingTxHash = &tx
	f.chain.states[contractID] = &chainclient.EscrowState{EscrowID: contractID, IsFunded: funded}
}
