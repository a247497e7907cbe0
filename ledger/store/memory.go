// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hosthub/owner-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	owners       map[ledger.OwnerID]ledger.Owner
	properties   map[ledger.PropertyID]ledger.Property
	bookings     map[ledger.BookingID]ledger.Booking
	expenses     map[ledger.ExpenseID]ledger.Expense
	transactions map[ledger.OwnerID][]ledger.Transaction
	idempotency  map[string]bool
	wallets      map[ledger.OwnerID]ledger.Wallet
	statements   map[ledger.StatementID]ledger.Statement
}

func NewMemory() *Memory {
	return &Memory{
		owners:       make(map[ledger.OwnerID]ledger.Owner),
		properties:   make(map[ledger.PropertyID]ledger.Property),
		bookings:     make(map[ledger.BookingID]ledger.Booking),
		expenses:     make(map[ledger.ExpenseID]ledger.Expense),
		transactions: make(map[ledger.OwnerID][]ledger.Transaction),
		idempotency:  make(map[string]bool),
		wallets:      make(map[ledger.OwnerID]ledger.Wallet),
		statements:   make(map[ledger.StatementID]ledger.Statement),
	}
}

// ===== TRANSACTIONS =====

// AppendTransaction adds a single transaction. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx ledger.Transaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}

	txs := m.transactions[tx.OwnerID]

	// Keep the slice ordered by Date, then CreatedAt
	i := sort.Search(len(txs), func(i int) bool {
		if txs[i].Date.Equal(tx.Date) {
			return txs[i].CreatedAt.After(tx.CreatedAt)
		}
		return txs[i].Date.After(tx.Date)
	})

	txs = append(txs, ledger.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.OwnerID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

// removeLocked drops a transaction by ID. Only used to undo an append
// inside a failed unit.
func (m *Memory) removeLocked(tx ledger.Transaction) {
	txs := m.transactions[tx.OwnerID]
	for i := range txs {
		if txs[i].ID == tx.ID {
			m.transactions[tx.OwnerID] = append(txs[:i:i], txs[i+1:]...)
			break
		}
	}
	if tx.IdempotencyKey != "" {
		delete(m.idempotency, tx.IdempotencyKey)
	}
}

func (m *Memory) ListTransactions(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Transaction, len(m.transactions[ownerID]))
	copy(result, m.transactions[ownerID])
	return result, nil
}

func (m *Memory) TransactionExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// ===== WALLETS =====

func (m *Memory) GetWallet(_ context.Context, ownerID ledger.OwnerID) (*ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[ownerID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// SaveWallet stores w. An existing wallet is only replaced by the next
// version; anything else is ErrConcurrentModification.
func (m *Memory) SaveWallet(_ context.Context, w ledger.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveWalletLocked(w)
}

func (m *Memory) saveWalletLocked(w ledger.Wallet) error {
	if stored, ok := m.wallets[w.OwnerID]; ok && w.Version != stored.Version+1 {
		return ledger.ErrConcurrentModification
	}
	m.wallets[w.OwnerID] = w
	return nil
}

func (m *Memory) ListWallets(_ context.Context) ([]ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OwnerID < result[j].OwnerID })
	return result, nil
}

// ===== OWNERS / PROPERTIES =====

func (m *Memory) GetOwner(_ context.Context, id ledger.OwnerID) (*ledger.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.owners[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) ListOwners(_ context.Context) ([]ledger.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Owner, 0, len(m.owners))
	for _, o := range m.owners {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveOwner(_ context.Context, o ledger.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[o.ID] = o
	return nil
}

func (m *Memory) GetProperty(_ context.Context, id ledger.PropertyID) (*ledger.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.properties[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) SaveProperty(_ context.Context, p ledger.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
	return nil
}

// ===== BOOKINGS / EXPENSES =====

func (m *Memory) GetBooking(_ context.Context, id ledger.BookingID) (*ledger.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) ListBookings(_ context.Context, f ledger.BookingFilter) ([]ledger.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Booking
	for _, b := range m.bookings {
		if f.OwnerID != nil && b.OwnerID != *f.OwnerID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.CheckIn != nil && !f.CheckIn.Contains(b.CheckInDate) {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CheckInDate.Equal(result[j].CheckInDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].CheckInDate.Before(result[j].CheckInDate)
	})
	return result, nil
}

func (m *Memory) SaveBooking(_ context.Context, b ledger.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

func (m *Memory) ListExpenses(_ context.Context, f ledger.ExpenseFilter) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Expense
	for _, e := range m.expenses {
		if f.OwnerID != nil && e.OwnerID != *f.OwnerID {
			continue
		}
		if f.Date != nil && !f.Date.Contains(e.Date) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (m *Memory) SaveExpense(_ context.Context, e ledger.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[e.ID] = e
	return nil
}

// ===== STATEMENTS =====

// SaveStatement inserts or replaces a statement. Finalized statements are
// never replaced.
func (m *Memory) SaveStatement(_ context.Context, st ledger.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStatementLocked(st)
}

func (m *Memory) saveStatementLocked(st ledger.Statement) error {
	if stored, ok := m.statements[st.ID]; ok && stored.IsFinalized() {
		return ledger.ErrStatementFinalized
	}
	st.Lines = append([]ledger.StatementLine(nil), st.Lines...)
	m.statements[st.ID] = st
	return nil
}

func (m *Memory) GetStatement(_ context.Context, id ledger.StatementID) (*ledger.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.statements[id]
	if !ok {
		return nil, nil
	}
	st.Lines = append([]ledger.StatementLine(nil), st.Lines...)
	return &st, nil
}

func (m *Memory) ListStatements(_ context.Context, f ledger.StatementFilter) ([]ledger.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Statement
	for _, st := range m.statements {
		if f.OwnerID != nil && st.OwnerID != *f.OwnerID {
			continue
		}
		if f.Status != nil && st.Status != *f.Status {
			continue
		}
		st.Lines = append([]ledger.StatementLine(nil), st.Lines...)
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PeriodStart.Equal(result[j].PeriodStart) {
			return result[i].ID < result[j].ID
		}
		return result[i].PeriodStart.Before(result[j].PeriodStart)
	})
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with per-owner atomic units.
type TxMemory struct {
	*Memory

	locksMu sync.Mutex
	locks   map[ledger.OwnerID]*sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{
		Memory: NewMemory(),
		locks:  make(map[ledger.OwnerID]*sync.Mutex),
	}
}

func (tm *TxMemory) ownerLock(ownerID ledger.OwnerID) *sync.Mutex {
	tm.locksMu.Lock()
	defer tm.locksMu.Unlock()

	l, ok := tm.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		tm.locks[ownerID] = l
	}
	return l
}

// WithTx executes fn holding the owner's lock.
// For the memory store, rollback replays an undo journal of the writes made
// through the view, newest first. Other owners' writes are untouched.
func (tm *TxMemory) WithTx(ctx context.Context, ownerID ledger.OwnerID, fn func(ledger.Store) error) error {
	lock := tm.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	view := &txMemoryView{Memory: tm.Memory}
	if err := fn(view); err != nil {
		view.rollback()
		return err
	}
	return nil
}

// txMemoryView reads through to Memory and journals every write.
type txMemoryView struct {
	*Memory
	undo []func()
}

func (tv *txMemoryView) rollback() {
	tv.Memory.mu.Lock()
	defer tv.Memory.mu.Unlock()
	for i := len(tv.undo) - 1; i >= 0; i-- {
		tv.undo[i]()
	}
	tv.undo = nil
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.appendLocked(tx); err != nil {
		return err
	}
	tv.undo = append(tv.undo, func() { m.removeLocked(tx) })
	return nil
}

func (tv *txMemoryView) SaveWallet(_ context.Context, w ledger.Wallet) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.wallets[w.OwnerID]
	if err := m.saveWalletLocked(w); err != nil {
		return err
	}
	tv.undo = append(tv.undo, func() {
		if had {
			m.wallets[w.OwnerID] = prev
		} else {
			delete(m.wallets, w.OwnerID)
		}
	})
	return nil
}

func (tv *txMemoryView) SaveOwner(_ context.Context, o ledger.Owner) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.owners[o.ID]
	m.owners[o.ID] = o
	tv.undo = append(tv.undo, func() {
		if had {
			m.owners[o.ID] = prev
		} else {
			delete(m.owners, o.ID)
		}
	})
	return nil
}

func (tv *txMemoryView) SaveProperty(_ context.Context, p ledger.Property) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.properties[p.ID]
	m.properties[p.ID] = p
	tv.undo = append(tv.undo, func() {
		if had {
			m.properties[p.ID] = prev
		} else {
			delete(m.properties, p.ID)
		}
	})
	return nil
}

func (tv *txMemoryView) SaveBooking(_ context.Context, b ledger.Booking) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.bookings[b.ID]
	m.bookings[b.ID] = b
	tv.undo = append(tv.undo, func() {
		if had {
			m.bookings[b.ID] = prev
		} else {
			delete(m.bookings, b.ID)
		}
	})
	return nil
}

func (tv *txMemoryView) SaveExpense(_ context.Context, e ledger.Expense) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.expenses[e.ID]
	m.expenses[e.ID] = e
	tv.undo = append(tv.undo, func() {
		if had {
			m.expenses[e.ID] = prev
		} else {
			delete(m.expenses, e.ID)
		}
	})
	return nil
}

func (tv *txMemoryView) SaveStatement(_ context.Context, st ledger.Statement) error {
	m := tv.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.statements[st.ID]
	if err := m.saveStatementLocked(st); err != nil {
		return err
	}
	tv.undo = append(tv.undo, func() {
		if had {
			m.statements[st.ID] = prev
		} else {
			delete(m.statements, st.ID)
		}
	})
	return nil
}

var (
	_ ledger.TxStore = (*TxMemory)(nil)
	_ ledger.Store   = (*txMemoryView)(nil)
)
