package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"
	"settlement-service/internal/events"
	"settlement-service/internal/repository"
	"settlement-service/internal/security"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================================================
// IN-MEMORY STORE
// ============================================================================

// memStore mimics READ COMMITTED: writes inside WithTx land in an overlay that is
// merged on commit and dropped on rollback, pool writes are visible immediately
type memStore struct {
	mu sync.Mutex

	wallets  map[int64]*domain.TempWallet
	balances map[string]*domain.Balance
	txs      map[int64]*domain.Transaction
	intents  map[uuid.UUID]*domain.TransferIntent
	order    map[uuid.UUID]int64

	nextWallet int64
	nextTx     int64
	nextIntent int64

	failures map[string]error
	hooks    map[string]func()
}

type memOverlay struct {
	wallets  map[int64]*domain.TempWallet
	balances map[string]*domain.Balance
	txs      map[int64]*domain.Transaction
	intents  map[uuid.UUID]*domain.TransferIntent
}

func newMemStore() *memStore {
	return &memStore{
		wallets:  map[int64]*domain.TempWallet{},
		balances: map[string]*domain.Balance{},
		txs:      map[int64]*domain.Transaction{},
		intents:  map[uuid.UUID]*domain.TransferIntent{},
		order:    map[uuid.UUID]int64{},
		failures: map[string]error{},
		hooks:    map[string]func(){},
	}
}

func (s *memStore) Repositories() repository.Repositories {
	return s.repos(nil)
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	ov := &memOverlay{
		wallets:  map[int64]*domain.TempWallet{},
		balances: map[string]*domain.Balance{},
		txs:      map[int64]*domain.Transaction{},
		intents:  map[uuid.UUID]*domain.TransferIntent{},
	}
	if err := fn(ctx, s.repos(ov)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["commit"]; err != nil {
		return err
	}
	for k, v := range ov.wallets {
		s.wallets[k] = v
	}
	for k, v := range ov.balances {
		s.balances[k] = v
	}
	for k, v := range ov.txs {
		s.txs[k] = v
	}
	for k, v := range ov.intents {
		s.intents[k] = v
	}
	return nil
}

func (s *memStore) repos(ov *memOverlay) repository.Repositories {
	return repository.Repositories{
		Wallets:      &memWallets{s: s, ov: ov},
		Balances:     &memBalances{s: s, ov: ov},
		Transactions: &memTransactions{s: s, ov: ov},
		Intents:      &memIntents{s: s, ov: ov},
	}
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *memStore) onCall(op string, hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = hook
}

// enter runs the op's hook and returns its injected failure; the caller then holds mu
func (s *memStore) enter(op string) error {
	s.mu.Lock()
	hook := s.hooks[op]
	if hook != nil {
		delete(s.hooks, op)
		s.mu.Unlock()
		hook()
		s.mu.Lock()
	}
	return s.failures[op]
}

func (s *memStore) balance(userID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[userID]; ok {
		return b.Amount
	}
	return decimal.Zero
}

func (s *memStore) wallet(id int64) *domain.TempWallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := *s.wallets[id]
	return &w
}

func (s *memStore) transaction(id int64) *domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *s.txs[id]
	return &t
}

func (s *memStore) intentsOf(kind domain.TransferKind) []*domain.TransferIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TransferIntent
	for _, i := range s.intents {
		if i.Kind == kind {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return s.order[out[a].ID] < s.order[out[b].ID] })
	return out
}

func (s *memStore) transactionsOf(userID string, txType domain.TransactionType) []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range s.txs {
		if t.ClientID == userID && t.Type == txType {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// --- wallets ---

type memWallets struct {
	s  *memStore
	ov *memOverlay
}

func (r *memWallets) get(id int64) (*domain.TempWallet, bool) {
	if r.ov != nil {
		if w, ok := r.ov.wallets[id]; ok {
			cp := *w
			return &cp, true
		}
	}
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, false
	}
	cp := *w
	return &cp, true
}

func (r *memWallets) put(w *domain.TempWallet) {
	cp := *w
	if r.ov != nil {
		r.ov.wallets[w.ID] = &cp
		return
	}
	r.s.wallets[w.ID] = &cp
}

func (r *memWallets) all() []*domain.TempWallet {
	out := make([]*domain.TempWallet, 0, len(r.s.wallets))
	for id := range r.s.wallets {
		w, _ := r.get(id)
		out = append(out, w)
	}
	if r.ov != nil {
		for id := range r.ov.wallets {
			if _, ok := r.s.wallets[id]; !ok {
				w, _ := r.get(id)
				out = append(out, w)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memWallets) Create(_ context.Context, wallet *domain.TempWallet) error {
	err := r.s.enter("wallets.create")
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, w := range r.all() {
		if w.Address == wallet.Address {
			return fmt.Errorf("duplicate address: %w", domain.ErrWalletExists)
		}
		if w.IsActive() && w.UserID == wallet.UserID && w.Network == wallet.Network {
			return fmt.Errorf("wallet for user %s: %w", wallet.UserID, domain.ErrWalletExists)
		}
	}
	r.s.nextWallet++
	wallet.ID = r.s.nextWallet
	wallet.CreatedAt = time.Now()
	wallet.UpdatedAt = wallet.CreatedAt
	if wallet.Status == "" {
		wallet.Status = domain.TempWalletActive
	}
	r.put(wallet)
	return nil
}

func (r *memWallets) GetByID(_ context.Context, id int64) (*domain.TempWallet, error) {
	err := r.s.enter("wallets.get")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if w, ok := r.get(id); ok {
		return w, nil
	}
	return nil, domain.ErrWalletNotFound
}

func (r *memWallets) GetByIDForUpdate(ctx context.Context, id int64) (*domain.TempWallet, error) {
	return r.GetByID(ctx, id)
}

func (r *memWallets) GetByAddress(_ context.Context, address string) (*domain.TempWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.all() {
		if w.Address == address {
			return w, nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (r *memWallets) GetActive(_ context.Context, userID string, network domain.Network) (*domain.TempWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.all() {
		if w.UserID == userID && w.Network == network && w.IsActive() {
			return w, nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (r *memWallets) ListByUser(_ context.Context, userID string) ([]*domain.TempWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.TempWallet
	for _, w := range r.all() {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *memWallets) ListSweepCandidates(_ context.Context, filter repository.SweepCandidateFilter) ([]*domain.TempWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.TempWallet
	for _, w := range r.all() {
		if !w.IsActive() {
			continue
		}
		if w.LastCheckedAt != nil && !w.LastCheckedAt.Before(filter.CheckedBefore) {
			continue
		}
		if len(filter.Networks) > 0 && !containsNetwork(filter.Networks, w.Network) {
			continue
		}
		out = append(out, w)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memWallets) ListStaleKeys(_ context.Context, currentHash string, limit int) ([]*domain.TempWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.TempWallet
	for _, w := range r.all() {
		if w.KeyHash() == currentHash {
			continue
		}
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memWallets) update(op string, id int64, fn func(w *domain.TempWallet)) error {
	err := r.s.enter(op)
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	w, ok := r.get(id)
	if !ok {
		return domain.ErrWalletNotFound
	}
	fn(w)
	w.UpdatedAt = time.Now()
	r.put(w)
	return nil
}

func (r *memWallets) UpdateStatus(_ context.Context, id int64, status domain.TempWalletStatus) error {
	return r.update("wallets.update_status", id, func(w *domain.TempWallet) { w.Status = status })
}

func (r *memWallets) AddReceived(_ context.Context, id int64, amount decimal.Decimal) error {
	return r.update("wallets.add_received", id, func(w *domain.TempWallet) { w.TotalReceived = w.TotalReceived.Add(amount) })
}

func (r *memWallets) TouchChecked(_ context.Context, id int64, at time.Time) error {
	return r.update("wallets.touch", id, func(w *domain.TempWallet) { w.LastCheckedAt = &at })
}

func (r *memWallets) UpdateKey(_ context.Context, id int64, ciphertext, keyHash string) error {
	return r.update("wallets.update_key", id, func(w *domain.TempWallet) {
		w.PrivateKey = ciphertext
		w.EncryptionKeyHash = &keyHash
	})
}

// --- balances ---

type memBalances struct {
	s  *memStore
	ov *memOverlay
}

func (r *memBalances) get(userID string) (*domain.Balance, bool) {
	if r.ov != nil {
		if b, ok := r.ov.balances[userID]; ok {
			cp := *b
			return &cp, true
		}
	}
	b, ok := r.s.balances[userID]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

func (r *memBalances) put(b *domain.Balance) {
	cp := *b
	if r.ov != nil {
		r.ov.balances[b.UserID] = &cp
		return
	}
	r.s.balances[b.UserID] = &cp
}

func (r *memBalances) Get(_ context.Context, userID string) (*domain.Balance, error) {
	err := r.s.enter("balances.get")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if b, ok := r.get(userID); ok {
		return b, nil
	}
	return nil, domain.ErrBalanceNotFound
}

func (r *memBalances) GetForUpdate(ctx context.Context, userID string) (*domain.Balance, error) {
	return r.Get(ctx, userID)
}

func (r *memBalances) Credit(_ context.Context, userID string, amount decimal.Decimal) (*domain.Balance, error) {
	err := r.s.enter("balances.credit")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := r.get(userID)
	if !ok {
		b = &domain.Balance{UserID: userID, Amount: decimal.Zero}
	}
	b.Amount = b.Amount.Add(amount)
	b.UpdatedAt = time.Now()
	r.put(b)
	return b, nil
}

func (r *memBalances) Debit(_ context.Context, userID string, amount decimal.Decimal) (*domain.Balance, error) {
	err := r.s.enter("balances.debit")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := r.get(userID)
	if !ok || b.Amount.LessThan(amount) {
		return nil, &domain.InsufficientFundsError{Scope: "ledger", Asset: "balance", Required: amount.String()}
	}
	b.Amount = b.Amount.Sub(amount)
	b.UpdatedAt = time.Now()
	r.put(b)
	return b, nil
}

// --- transactions ---

type memTransactions struct {
	s  *memStore
	ov *memOverlay
}

func (r *memTransactions) get(id int64) (*domain.Transaction, bool) {
	if r.ov != nil {
		if t, ok := r.ov.txs[id]; ok {
			cp := *t
			return &cp, true
		}
	}
	t, ok := r.s.txs[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (r *memTransactions) put(t *domain.Transaction) {
	cp := *t
	if r.ov != nil {
		r.ov.txs[t.ID] = &cp
		return
	}
	r.s.txs[t.ID] = &cp
}

func (r *memTransactions) Create(_ context.Context, tx *domain.Transaction) error {
	err := r.s.enter("transactions.create")
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	r.s.nextTx++
	tx.ID = r.s.nextTx
	tx.Amount = domain.LedgerAmount(tx.Amount)
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	r.put(tx)
	return nil
}

func (r *memTransactions) GetByID(_ context.Context, id int64) (*domain.Transaction, error) {
	err := r.s.enter("transactions.get")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if t, ok := r.get(id); ok {
		return t, nil
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *memTransactions) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *memTransactions) List(_ context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Transaction
	for id := range r.s.txs {
		t, _ := r.get(id)
		if filter.ClientID != nil && t.ClientID != *filter.ClientID {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memTransactions) UpdateStatus(_ context.Context, id int64, from, to domain.TransactionStatus, txHash *string) error {
	err := r.s.enter("transactions.update_status")
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	t, ok := r.get(id)
	if !ok || t.Status != from {
		return fmt.Errorf("transaction %d is not %s: %w", id, from, domain.ErrInvalidTransactionState)
	}
	t.Status = to
	if txHash != nil {
		t.TransactionHash = txHash
	}
	t.UpdatedAt = time.Now()
	r.put(t)
	return nil
}

// --- intents ---

type memIntents struct {
	s  *memStore
	ov *memOverlay
}

func (r *memIntents) get(id uuid.UUID) (*domain.TransferIntent, bool) {
	if r.ov != nil {
		if i, ok := r.ov.intents[id]; ok {
			cp := *i
			return &cp, true
		}
	}
	i, ok := r.s.intents[id]
	if !ok {
		return nil, false
	}
	cp := *i
	return &cp, true
}

func (r *memIntents) put(i *domain.TransferIntent) {
	cp := *i
	if r.ov != nil {
		r.ov.intents[i.ID] = &cp
		return
	}
	r.s.intents[i.ID] = &cp
}

func (r *memIntents) Create(_ context.Context, intent *domain.TransferIntent) error {
	err := r.s.enter("intents.create")
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	r.s.nextIntent++
	r.s.order[intent.ID] = r.s.nextIntent
	r.put(intent)
	return nil
}

func (r *memIntents) GetByID(_ context.Context, id uuid.UUID) (*domain.TransferIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i, ok := r.get(id); ok {
		return i, nil
	}
	return nil, domain.ErrIntentNotFound
}

func (r *memIntents) ListByReference(_ context.Context, kind domain.TransferKind, reference string) ([]*domain.TransferIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.TransferIntent
	for id := range r.s.intents {
		i, _ := r.get(id)
		if i.Kind == kind && i.Reference == reference {
			out = append(out, i)
		}
	}
	if r.ov != nil {
		for id := range r.ov.intents {
			if _, committed := r.s.intents[id]; committed {
				continue
			}
			i, _ := r.get(id)
			if i.Kind == kind && i.Reference == reference {
				out = append(out, i)
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return r.s.order[out[a].ID] < r.s.order[out[b].ID] })
	return out, nil
}

func (r *memIntents) ListOpen(_ context.Context, updatedBefore time.Time, limit int) ([]*domain.TransferIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.TransferIntent
	for id := range r.s.intents {
		i, _ := r.get(id)
		if i.Open() && !i.UpdatedAt.After(updatedBefore) {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return r.s.order[out[a].ID] < r.s.order[out[b].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memIntents) Transition(_ context.Context, id uuid.UUID, update repository.IntentUpdate) error {
	err := r.s.enter("intents.transition")
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	i, ok := r.get(id)
	if !ok {
		return domain.ErrIntentNotFound
	}
	allowed := false
	for _, s := range update.From {
		if i.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return fmt.Errorf("intent %s is %s: %w", id, i.Status, domain.ErrInvalidTransactionState)
	}
	i.Status = update.To
	if update.TxHash != nil {
		i.TxHash = update.TxHash
	}
	if update.Error != nil {
		i.Error = update.Error
	}
	i.UpdatedAt = time.Now()
	r.put(i)
	return nil
}

func containsNetwork(networks []domain.Network, n domain.Network) bool {
	for _, x := range networks {
		if x == n {
			return true
		}
	}
	return false
}

// ============================================================================
// SCRIPTED CHAIN
// ============================================================================

type fakeTransfer struct {
	Native   bool
	From     string
	To       string
	Amount   decimal.Decimal
	Contract string
	Nonce    *uint64
	Gas      *domain.GasEstimate
	TxHash   string
}

// fakeChain moves balances between addresses on every successful transfer.
// Stablecoin transfers burn gasCost of native from the sender.
type fakeChain struct {
	mu sync.Mutex

	network domain.Network
	stable  map[string]decimal.Decimal
	native  map[string]decimal.Decimal
	gasCost decimal.Decimal
	nonces  map[string]*domain.NonceState

	transfers []fakeTransfer
	seq       int

	balanceErr   error
	stableErrs   []error
	revertStable int
	stuckStable  int
	revertHashes map[string]bool
	pendingHash  map[string]bool
	estimateCall int
}

func newFakeChain(network domain.Network) *fakeChain {
	return &fakeChain{
		network:      network,
		stable:       map[string]decimal.Decimal{},
		native:       map[string]decimal.Decimal{},
		gasCost:      decimal.RequireFromString("14.205"),
		nonces:       map[string]*domain.NonceState{},
		revertHashes: map[string]bool{},
		pendingHash:  map[string]bool{},
	}
}

func (c *fakeChain) Network() domain.Network  { return c.network }
func (c *fakeChain) NativeSymbol() string     { return "TRX" }
func (c *fakeChain) StablecoinSymbol() string { return "USDT" }

func (c *fakeChain) GenerateWallet(context.Context) (*domain.GeneratedWallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return &domain.GeneratedWallet{
		Address:    fmt.Sprintf("Tgen%04d", c.seq),
		PrivateKey: fmt.Sprintf("%064x", c.seq),
		PublicKey:  fmt.Sprintf("pub-%d", c.seq),
		Network:    c.network,
	}, nil
}

func (c *fakeChain) ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "T") || len(address) < 6 {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	return nil
}

func (c *fakeChain) GetNativeBalance(_ context.Context, address string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr != nil {
		return decimal.Zero, c.balanceErr
	}
	return c.native[address], nil
}

func (c *fakeChain) GetStablecoinBalance(_ context.Context, address string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr != nil {
		return decimal.Zero, c.balanceErr
	}
	return c.stable[address], nil
}

func (c *fakeChain) TransferStablecoin(_ context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stableErrs) > 0 {
		err := c.stableErrs[0]
		c.stableErrs = c.stableErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if c.stable[req.From].LessThan(req.Amount) {
		return nil, &domain.InsufficientFundsError{Scope: "on-chain", Asset: "USDT", Err: errors.New("transfer amount exceeds balance")}
	}
	if c.native[req.From].LessThan(c.gasCost) {
		return nil, &domain.InsufficientFundsError{Scope: "on-chain", Asset: "TRX", Err: errors.New("not enough energy")}
	}
	c.native[req.From] = c.native[req.From].Sub(c.gasCost)
	if c.revertStable > 0 {
		c.revertStable--
		res := c.record(false, req)
		c.revertHashes[res.TxHash] = true
		return res, nil
	}
	c.stable[req.From] = c.stable[req.From].Sub(req.Amount)
	c.stable[req.To] = c.stable[req.To].Add(req.Amount)
	res := c.record(false, req)
	if c.stuckStable > 0 {
		c.stuckStable--
		c.pendingHash[res.TxHash] = true
	}
	return res, nil
}

func (c *fakeChain) TransferNative(_ context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.native[req.From].LessThan(req.Amount) {
		return nil, &domain.InsufficientFundsError{Scope: "on-chain", Asset: "TRX", Err: errors.New("balance is not sufficient")}
	}
	c.native[req.From] = c.native[req.From].Sub(req.Amount)
	c.native[req.To] = c.native[req.To].Add(req.Amount)
	return c.record(true, req), nil
}

func (c *fakeChain) record(native bool, req *domain.TransferRequest) *domain.TransferResult {
	c.seq++
	hash := fmt.Sprintf("tx%04d", c.seq)
	c.transfers = append(c.transfers, fakeTransfer{
		Native:   native,
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		Contract: req.Contract,
		Nonce:    req.Nonce,
		Gas:      req.Gas,
		TxHash:   hash,
	})
	return &domain.TransferResult{
		TxHash:      hash,
		Network:     c.network,
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		Nonce:       req.Nonce,
		SubmittedAt: time.Now(),
	}
}

func (c *fakeChain) WaitForConfirmation(_ context.Context, txHash string, timeout time.Duration) (*domain.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pendingHash[txHash]:
		return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusPending},
			fmt.Errorf("%w: %s after %s", domain.ErrConfirmationTimeout, txHash, timeout)
	case c.revertHashes[txHash]:
		return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusFailed},
			fmt.Errorf("%w: %s", domain.ErrTransactionFailed, txHash)
	}
	return &domain.Confirmation{TxHash: txHash, Status: domain.TxStatusConfirmed, BlockNumber: 100}, nil
}

func (c *fakeChain) EstimateRequiredGas(context.Context, *domain.GasEstimateRequest) (*domain.GasEstimate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimateCall++
	return &domain.GasEstimate{
		Units:      33000,
		UnitPrice:  big.NewInt(420),
		NativeCost: c.gasCost,
		Simulated:  true,
	}, nil
}

func (c *fakeChain) GetNonceState(_ context.Context, address string) (*domain.NonceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nonces[address]; ok {
		cp := *n
		return &cp, nil
	}
	return &domain.NonceState{}, nil
}

func (c *fakeChain) setBalances(address string, stable, native string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stable[address] = decimal.RequireFromString(stable)
	c.native[address] = decimal.RequireFromString(native)
}

func (c *fakeChain) sent() []fakeTransfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakeTransfer(nil), c.transfers...)
}

func (c *fakeChain) sentFrom(address string, native bool) []fakeTransfer {
	var out []fakeTransfer
	for _, t := range c.sent() {
		if t.From == address && t.Native == native {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeChain) script(fn func(c *fakeChain)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *fakeChain) markPending(hash string, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingHash[hash] = pending
}

// splitChain holds each address's stablecoin on several token contracts, like native
// USDC and USDC.e on Polygon. One transfer sends from a single contract.
type splitChain struct {
	*fakeChain

	contracts []string
	holdings  map[string]map[string]decimal.Decimal
}

var _ domain.StablecoinSplitter = (*splitChain)(nil)

func newSplitChain(base *fakeChain, contracts ...string) *splitChain {
	return &splitChain{
		fakeChain: base,
		contracts: contracts,
		holdings:  map[string]map[string]decimal.Decimal{},
	}
}

// hold sets the per-contract balances of address, in contract order, and its summed balance
func (c *splitChain) hold(address string, amounts ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := map[string]decimal.Decimal{}
	total := decimal.Zero
	for i, a := range amounts {
		held[c.contracts[i]] = decimal.RequireFromString(a)
		total = total.Add(held[c.contracts[i]])
	}
	c.holdings[address] = held
	c.stable[address] = total
}

func (c *splitChain) held(address, contract string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdings[address][contract]
}

func (c *splitChain) PlanStablecoinTransfer(_ context.Context, from string, amount decimal.Decimal) ([]domain.TransferLeg, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := c.holdings[from]
	for _, contract := range c.contracts {
		if held[contract].GreaterThanOrEqual(amount) {
			return []domain.TransferLeg{{Contract: contract, Amount: amount}}, nil
		}
	}

	var legs []domain.TransferLeg
	remaining := amount
	for _, contract := range c.contracts {
		part := decimal.Min(held[contract], remaining)
		if !part.IsPositive() {
			continue
		}
		legs = append(legs, domain.TransferLeg{Contract: contract, Amount: part})
		remaining = remaining.Sub(part)
	}
	if remaining.IsPositive() {
		return nil, &domain.InsufficientFundsError{Scope: "on-chain", Asset: "USDC", Available: amount.Sub(remaining).String(), Required: amount.String()}
	}
	return legs, nil
}

func (c *splitChain) TransferStablecoin(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	c.mu.Lock()
	source := ""
	largest := decimal.Zero
	for _, contract := range c.contracts {
		if req.Contract != "" && contract != req.Contract {
			continue
		}
		held := c.holdings[req.From][contract]
		if held.GreaterThanOrEqual(req.Amount) {
			source = contract
			break
		}
		largest = decimal.Max(largest, held)
	}
	c.mu.Unlock()

	if source == "" {
		return nil, &domain.InsufficientFundsError{Scope: "on-chain", Asset: "USDC", Available: largest.String(), Required: req.Amount.String()}
	}

	res, err := c.fakeChain.TransferStablecoin(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.revertHashes[res.TxHash] {
		c.holdings[req.From][source] = c.holdings[req.From][source].Sub(req.Amount)
		if c.holdings[req.To] == nil {
			c.holdings[req.To] = map[string]decimal.Decimal{}
		}
		c.holdings[req.To][source] = c.holdings[req.To][source].Add(req.Amount)
	}
	return res, nil
}

// ============================================================================
// TEST ENVIRONMENT
// ============================================================================

const (
	testVaultKey   = "0101010101010101010101010101010101010101010101010101010101010101"
	testMasterAddr = "TMaster0001"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.SettlementEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *events.SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *event
	p.events = append(p.events, &cp)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type testEnv struct {
	store     *memStore
	chain     *fakeChain
	registry  *chains.Registry
	vault     *security.KeyVault
	wallets   *WalletUsecase
	sweeper   *SweepUsecase
	ledger    *LedgerUsecase
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	vault, err := security.NewKeyVault(testVaultKey, nil, logger)
	require.NoError(t, err)

	chain := newFakeChain(domain.NetworkTron)
	registry := chains.NewRegistry()
	registry.Register(chain)

	store := newMemStore()
	wallets := NewWalletUsecase(store, registry, vault, logger)

	sweeper := NewSweepUsecase(store, registry, wallets,
		map[domain.Network]*domain.MasterWallet{
			domain.NetworkTron: {Network: domain.NetworkTron, Address: testMasterAddr, PrivateKey: "master-key"},
		},
		chains.NewLocalLocker(),
		SweepConfig{
			Networks: map[domain.Network]SweepSettings{
				domain.NetworkTron: {
					NativeReserve: decimal.RequireFromString("1"),
					MinTopUp:      decimal.RequireFromString("20"),
					TopUpMargin:   decimal.RequireFromString("1.5"),
				},
			},
			ConfirmTimeout:     50 * time.Millisecond,
			TopUpSettleTimeout: 20 * time.Millisecond,
			NonceWaitTimeout:   20 * time.Millisecond,
			PollInterval:       time.Millisecond,
		},
		logger,
	)

	publisher := &recordingPublisher{}
	ledger := NewLedgerUsecase(store, sweeper, registry, publisher, LedgerConfig{
		ReconcileGrace: time.Nanosecond,
		SettleTimeout:  50 * time.Millisecond,
	}, logger)

	chain.setBalances(testMasterAddr, "100000", "10000")

	return &testEnv{
		store:     store,
		chain:     chain,
		registry:  registry,
		vault:     vault,
		wallets:   wallets,
		sweeper:   sweeper,
		ledger:    ledger,
		publisher: publisher,
	}
}

// withSplitChain swaps the chain for one holding the stablecoin on two contracts,
// USDC-A then USDC-B. The master starts with everything on USDC-A.
func (e *testEnv) withSplitChain() *splitChain {
	split := newSplitChain(e.chain, "USDC-A", "USDC-B")
	split.hold(testMasterAddr, "100000", "0")
	e.registry.Register(split)
	return split
}

// fundedWallet creates a temp wallet for userID holding the given on-chain balances
func (e *testEnv) fundedWallet(t *testing.T, userID, stable, native string) *domain.TempWallet {
	t.Helper()
	w, err := e.wallets.GetOrCreate(context.Background(), userID, domain.NetworkTron)
	require.NoError(t, err)
	e.chain.setBalances(w.Address, stable, native)
	return w
}

// insertWallet writes a wallet straight into committed state, as another replica would
func (e *testEnv) insertWallet(w *domain.TempWallet) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.nextWallet++
	w.ID = e.store.nextWallet
	cp := *w
	e.store.wallets[w.ID] = &cp
}

func (e *testEnv) seedBalance(userID, amount string) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.balances[userID] = &domain.Balance{UserID: userID, Amount: decimal.RequireFromString(amount), UpdatedAt: time.Now()}
}
