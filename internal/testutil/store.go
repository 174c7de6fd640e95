package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/inbox"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/google/uuid"
)

type inboxKey struct {
	consumer  string
	messageID uuid.UUID
}

type storeState struct {
	transactions map[uuid.UUID]transaction.Transaction
	payments     map[uuid.UUID]payment.Payment
	paymentByTx  map[uuid.UUID]uuid.UUID
	outbox       []outbox.Entry
	inbox        map[inboxKey]inbox.Entry
	sequence     int64
}

func newStoreState() storeState {
	return storeState{
		transactions: map[uuid.UUID]transaction.Transaction{},
		payments:     map[uuid.UUID]payment.Payment{},
		paymentByTx:  map[uuid.UUID]uuid.UUID{},
		inbox:        map[inboxKey]inbox.Entry{},
	}
}

func (s storeState) clone() storeState {
	c := storeState{
		transactions: make(map[uuid.UUID]transaction.Transaction, len(s.transactions)),
		payments:     make(map[uuid.UUID]payment.Payment, len(s.payments)),
		paymentByTx:  make(map[uuid.UUID]uuid.UUID, len(s.paymentByTx)),
		outbox:       make([]outbox.Entry, len(s.outbox)),
		inbox:        make(map[inboxKey]inbox.Entry, len(s.inbox)),
		sequence:     s.sequence,
	}
	for k, v := range s.transactions {
		v.Items = slices.Clone(v.Items)
		c.transactions[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.paymentByTx {
		c.paymentByTx[k] = v
	}
	copy(c.outbox, s.outbox)
	for k, v := range s.inbox {
		c.inbox[k] = v
	}
	return c
}

type txKey struct{}

type memTx struct {
	state *storeState
}

// Store is an in-memory stand-in for one service database. WithTransaction works on a
// snapshot that replaces the committed state only when fn succeeds; nested calls behave
// as savepoints. Top-level transactions are serialized, which also stands in for row locks.
// Writes outside WithTransaction go straight to the committed state.
type Store struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state storeState

	// CommitFunc, if set, runs just before a top-level commit. A non-nil error aborts it.
	CommitFunc func(ctx context.Context) error

	transactions *TransactionRepository
	payments     *PaymentRepository
	outbox       *OutboxRepository
	inbox        *InboxRepository
}

func NewStore() *Store {
	s := &Store{state: newStoreState()}
	s.transactions = &TransactionRepository{s: s}
	s.payments = &PaymentRepository{s: s}
	s.outbox = &OutboxRepository{s: s}
	s.inbox = &InboxRepository{s: s}
	return s
}

func (s *Store) Transactions() *TransactionRepository { return s.transactions }
func (s *Store) Payments() *PaymentRepository         { return s.payments }
func (s *Store) Outbox() *OutboxRepository            { return s.outbox }
func (s *Store) Inbox() *InboxRepository              { return s.inbox }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		saved := tx.state.clone()
		if err := fn(ctx); err != nil {
			*tx.state = saved
			return err
		}
		return nil
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.state.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, &memTx{state: &work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.CommitFunc != nil {
		if err := s.CommitFunc(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *Store) view(ctx context.Context, fn func(st *storeState) error) error {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(tx.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// OutboxEntries returns the committed outbox in sequence order.
func (s *Store) OutboxEntries() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.outbox)
}

// InboxCount returns how many committed inbox rows exist for the message.
func (s *Store) InboxCount(consumer string, messageID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.inbox[inboxKey{consumer, messageID}]; ok {
		return 1
	}
	return 0
}

// PaymentCount returns the number of committed payments.
func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.payments)
}

func copyTransaction(t *transaction.Transaction) transaction.Transaction {
	return transaction.Transaction{
		ID:          t.ID,
		CustomerID:  t.CustomerID,
		Status:      t.Status,
		Items:       slices.Clone(t.Items),
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		SubmittedAt: t.SubmittedAt,
		CompletedAt: t.CompletedAt,
	}
}

func copyPayment(p *payment.Payment) payment.Payment {
	return payment.Payment{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		CustomerID:    p.CustomerID,
		Amount:        p.Amount,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		CompletedAt:   p.CompletedAt,
	}
}

// --- Transaction Repository ---

// TransactionRepository implements transaction.Repository on a Store.
type TransactionRepository struct {
	s *Store

	// UpdateFunc, if set, runs first; a non-nil error is returned without touching the store.
	UpdateFunc func(ctx context.Context, t *transaction.Transaction) error
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	return r.s.view(ctx, func(st *storeState) error {
		st.transactions[t.ID] = copyTransaction(t)
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	var out *transaction.Transaction
	err := r.s.view(ctx, func(st *storeState) error {
		stored, ok := st.transactions[id]
		if !ok {
			return domainErrors.ErrTransactionNotFound
		}
		c := copyTransaction(&stored)
		out = &c
		return nil
	})
	return out, err
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	if r.UpdateFunc != nil {
		if err := r.UpdateFunc(ctx, t); err != nil {
			return err
		}
	}
	return r.s.view(ctx, func(st *storeState) error {
		stored, ok := st.transactions[t.ID]
		if !ok || stored.Version != t.Version {
			return domainErrors.ErrOptimisticLockFailed
		}
		t.Version++
		st.transactions[t.ID] = copyTransaction(t)
		return nil
	})
}

// --- Payment Repository ---

// PaymentRepository implements payment.Repository on a Store. Payments are unique per
// transaction ID like the payments table.
type PaymentRepository struct {
	s *Store

	// CreateFunc, if set, runs first; a non-nil error is returned without touching the store.
	CreateFunc func(ctx context.Context, p *payment.Payment) error
	// GetByTransactionIDFunc, if set, replaces the lookup.
	GetByTransactionIDFunc func(ctx context.Context, transactionID uuid.UUID) (*payment.Payment, error)
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if r.CreateFunc != nil {
		if err := r.CreateFunc(ctx, p); err != nil {
			return err
		}
	}
	return r.s.view(ctx, func(st *storeState) error {
		if _, exists := st.paymentByTx[p.TransactionID]; exists {
			return domainErrors.ErrDuplicatePayment
		}
		st.payments[p.ID] = copyPayment(p)
		st.paymentByTx[p.TransactionID] = p.ID
		return nil
	})
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.s.view(ctx, func(st *storeState) error {
		stored, ok := st.payments[id]
		if !ok {
			return domainErrors.ErrPaymentNotFound
		}
		c := copyPayment(&stored)
		out = &c
		return nil
	})
	return out, err
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*payment.Payment, error) {
	if r.GetByTransactionIDFunc != nil {
		return r.GetByTransactionIDFunc(ctx, transactionID)
	}
	return r.LookupByTransactionID(ctx, transactionID)
}

// LookupByTransactionID is the unhooked lookup, for hooks that delegate.
func (r *PaymentRepository) LookupByTransactionID(ctx context.Context, transactionID uuid.UUID) (*payment.Payment, error) {
	var id uuid.UUID
	err := r.s.view(ctx, func(st *storeState) error {
		found, ok := st.paymentByTx[transactionID]
		if !ok {
			return domainErrors.ErrPaymentNotFound
		}
		id = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *PaymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	return r.s.view(ctx, func(st *storeState) error {
		if _, ok := st.payments[p.ID]; !ok {
			return domainErrors.ErrPaymentNotFound
		}
		st.payments[p.ID] = copyPayment(p)
		return nil
	})
}

// --- Outbox Repository ---

// OutboxRepository implements outbox.Repository on a Store.
type OutboxRepository struct {
	s *Store

	// MarkSentFunc, if set, runs first; a non-nil error is returned without touching the store.
	MarkSentFunc func(ctx context.Context, sequence int64) error
}

func (r *OutboxRepository) Insert(ctx context.Context, entries ...*outbox.Entry) error {
	return r.s.view(ctx, func(st *storeState) error {
		for _, e := range entries {
			st.sequence++
			e.Sequence = st.sequence
			st.outbox = append(st.outbox, *e)
		}
		return nil
	})
}

func (r *OutboxRepository) FetchUndelivered(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*outbox.Entry
	err := r.s.view(ctx, func(st *storeState) error {
		for _, e := range st.outbox {
			if e.SentAt != nil {
				continue
			}
			if len(out) == limit {
				break
			}
			c := e
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, sequence int64, sentAt time.Time) error {
	if r.MarkSentFunc != nil {
		if err := r.MarkSentFunc(ctx, sequence); err != nil {
			return err
		}
	}
	return r.update(ctx, sequence, func(e *outbox.Entry) {
		e.SentAt = &sentAt
	})
}

func (r *OutboxRepository) RecordFailure(ctx context.Context, sequence int64, reason string) error {
	return r.update(ctx, sequence, func(e *outbox.Entry) {
		e.Attempts++
		e.LastError = &reason
	})
}

func (r *OutboxRepository) update(ctx context.Context, sequence int64, fn func(e *outbox.Entry)) error {
	return r.s.view(ctx, func(st *storeState) error {
		for i := range st.outbox {
			if st.outbox[i].Sequence == sequence {
				fn(&st.outbox[i])
				return nil
			}
		}
		return nil
	})
}

func (r *OutboxRepository) CountUndelivered(ctx context.Context) (int64, error) {
	var n int64
	err := r.s.view(ctx, func(st *storeState) error {
		for _, e := range st.outbox {
			if e.SentAt == nil {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *OutboxRepository) RecentUndelivered(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*outbox.Entry
	err := r.s.view(ctx, func(st *storeState) error {
		for _, e := range st.outbox {
			if e.SentAt == nil {
				c := e
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// --- Inbox Repository ---

// InboxRepository implements inbox.Repository on a Store.
type InboxRepository struct {
	s *Store

	// TryInsertFunc, if set, runs first; a non-nil error is returned without touching the store.
	TryInsertFunc func(ctx context.Context, entry *inbox.Entry) error
}

func (r *InboxRepository) TryInsert(ctx context.Context, entry *inbox.Entry) (bool, error) {
	if r.TryInsertFunc != nil {
		if err := r.TryInsertFunc(ctx, entry); err != nil {
			return false, err
		}
	}
	inserted := false
	err := r.s.view(ctx, func(st *storeState) error {
		key := inboxKey{entry.Consumer, entry.MessageID}
		if _, exists := st.inbox[key]; exists {
			return nil
		}
		st.inbox[key] = *entry
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *InboxRepository) Exists(ctx context.Context, consumer string, messageID uuid.UUID) (bool, error) {
	exists := false
	err := r.s.view(ctx, func(st *storeState) error {
		_, exists = st.inbox[inboxKey{consumer, messageID}]
		return nil
	})
	return exists, err
}
