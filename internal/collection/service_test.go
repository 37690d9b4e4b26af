package collection

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/dispatch"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// fakeStock tracks per-product totals; enough to observe releases.
type fakeStock struct {
	totals map[int64]float64
}

func newFakeStock() *fakeStock {
	return &fakeStock{totals: make(map[int64]float64)}
}

func (f *fakeStock) InsertBatch(_ context.Context, b stock.Batch) (int64, error) {
	f.totals[b.ProductID] += b.Remaining
	return 1, nil
}

func (f *fakeStock) GetBatchForUpdate(_ context.Context, _ int64) (*stock.Batch, error) {
	return nil, stock.ErrBatchNotFound
}

func (f *fakeStock) OpenBatchesForUpdate(_ context.Context, _ int64) ([]stock.Batch, error) {
	return nil, nil
}

func (f *fakeStock) LatestBatchForUpdate(_ context.Context, productID int64) (*stock.Batch, error) {
	if _, ok := f.totals[productID]; !ok {
		return nil, stock.ErrBatchNotFound
	}
	return &stock.Batch{ID: productID, ProductID: productID}, nil
}

func (f *fakeStock) DeductFromBatch(_ context.Context, batchID int64, qty float64) error {
	f.totals[batchID] -= qty
	return nil
}

func (f *fakeStock) AddToBatch(_ context.Context, batchID int64, qty float64) error {
	f.totals[batchID] += qty
	return nil
}

func (f *fakeStock) MarkDamaged(_ context.Context, _ stock.WriteOffInput) error { return nil }

// memRepo is an in-memory Repository and TxRepository. WithTx snapshots
// and restores state when the callback fails.
type memRepo struct {
	stock       *fakeStock
	dispatches  map[int64]*dispatch.Dispatch
	collections map[int64]*Collection
	nextID      int64
	nextSeq     int
}

func newMemRepo() *memRepo {
	return &memRepo{
		stock:       newFakeStock(),
		dispatches:  make(map[int64]*dispatch.Dispatch),
		collections: make(map[int64]*Collection),
		nextID:      1,
	}
}

func (m *memRepo) WithTx(_ context.Context, fn func(context.Context, TxRepository) error) error {
	dispatchSnap := make(map[int64]*dispatch.Dispatch, len(m.dispatches))
	for id, d := range m.dispatches {
		cp := *d
		cp.Items = append([]dispatch.Item(nil), d.Items...)
		dispatchSnap[id] = &cp
	}
	collSnap := make(map[int64]*Collection, len(m.collections))
	for id, c := range m.collections {
		cp := *c
		collSnap[id] = &cp
	}
	stockSnap := make(map[int64]float64, len(m.stock.totals))
	for k, v := range m.stock.totals {
		stockSnap[k] = v
	}

	if err := fn(context.Background(), m); err != nil {
		m.dispatches = dispatchSnap
		m.collections = collSnap
		m.stock.totals = stockSnap
		return err
	}
	return nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (*Collection, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) GetDispatchForUpdate(_ context.Context, dispatchID int64) (*dispatch.Dispatch, error) {
	d, ok := m.dispatches[dispatchID]
	if !ok {
		return nil, dispatch.ErrNotFound
	}
	cp := *d
	cp.Items = append([]dispatch.Item(nil), d.Items...)
	return &cp, nil
}

func (m *memRepo) InsertCollection(_ context.Context, c Collection) (int64, error) {
	for _, existing := range m.collections {
		if existing.DispatchID == c.DispatchID && existing.Status != StatusCancelled {
			return 0, ErrDuplicate
		}
	}
	c.ID = m.nextID
	m.nextID++
	c.CreatedAt = time.Now()
	m.collections[c.ID] = &c
	return c.ID, nil
}

func (m *memRepo) UpdateCollection(_ context.Context, c Collection) error {
	if _, ok := m.collections[c.ID]; !ok {
		return ErrNotFound
	}
	m.collections[c.ID] = &c
	return nil
}

func (m *memRepo) DeleteCollection(_ context.Context, id int64) error {
	if _, ok := m.collections[id]; !ok {
		return ErrNotFound
	}
	delete(m.collections, id)
	return nil
}

func (m *memRepo) SetVerified(_ context.Context, id int64, verifiedBy int64, notes string) error {
	c, ok := m.collections[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	c.Status = StatusVerified
	c.VerifiedBy = verifiedBy
	c.VerificationNotes = notes
	c.VerifiedAt = &now
	return nil
}

func (m *memRepo) SetReconciled(_ context.Context, id int64) error {
	c, ok := m.collections[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	c.Status = StatusReconciled
	c.ReconciledAt = &now
	return nil
}

func (m *memRepo) SetCancelled(_ context.Context, id int64, reason string) error {
	c, ok := m.collections[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	c.Status = StatusCancelled
	c.CancelReason = reason
	c.CancelledAt = &now
	return nil
}

func (m *memRepo) PreviousCumulative(_ context.Context, driverID int64) (float64, error) {
	var latest *Collection
	for _, c := range m.collections {
		if c.DriverID != driverID || c.Status == StatusCancelled {
			continue
		}
		if latest == nil || c.Date.After(latest.Date) ||
			(c.Date.Equal(latest.Date) && c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return 0, nil
	}
	return latest.CumulativeVariance, nil
}

func (m *memRepo) ZeroDispatchItemRemaining(_ context.Context, itemID int64) error {
	for _, d := range m.dispatches {
		for i := range d.Items {
			if d.Items[i].ID == itemID {
				d.Items[i].Remaining = 0
				return nil
			}
		}
	}
	return dispatch.ErrNotFound
}

func (m *memRepo) SetDispatchStatus(_ context.Context, dispatchID int64, status dispatch.Status) error {
	d, ok := m.dispatches[dispatchID]
	if !ok {
		return dispatch.ErrNotFound
	}
	d.Status = status
	return nil
}

func (m *memRepo) NextCollectionNo(_ context.Context, date time.Time) (string, error) {
	m.nextSeq++
	return fmt.Sprintf("COL-%s-%04d", date.Format("20060102"), m.nextSeq), nil
}

func (m *memRepo) Stock() stock.TxRepository { return m.stock }

func (m *memRepo) GetByID(_ context.Context, id int64) (*Collection, error) {
	c, ok := m.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) GetByDispatch(_ context.Context, dispatchID int64) (*Collection, error) {
	for _, c := range m.collections {
		if c.DispatchID == dispatchID && c.Status != StatusCancelled {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) List(_ context.Context, _ ListFilter) ([]Collection, int, error) {
	return nil, 0, nil
}

func (m *memRepo) DriverStats(_ context.Context, driverID int64) (*DriverStats, error) {
	s := DriverStats{DriverID: driverID}
	for _, c := range m.collections {
		if c.DriverID != driverID {
			continue
		}
		s.Collections++
	}
	s.CumulativeVariance, _ = m.PreviousCumulative(context.Background(), driverID)
	return &s, nil
}

func (m *memRepo) addDispatch(id, driverID int64, totalValue float64, items []dispatch.Item) {
	m.dispatches[id] = &dispatch.Dispatch{
		ID: id, DriverID: driverID, Status: dispatch.StatusActive,
		DispatchDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		TotalValue:   totalValue, Items: items,
	}
}

func newFixture() (*memRepo, *Service) {
	repo := newMemRepo()
	repo.addDispatch(1, 1, 5000, []dispatch.Item{
		{ID: 1, DispatchID: 1, ProductID: 10, Quantity: 100, Remaining: 0, Rate: 40},
		{ID: 2, DispatchID: 1, ProductID: 11, Quantity: 20, Remaining: 15, Rate: 50},
	})
	return repo, NewService(repo, slog.Default())
}

func TestSubmitComputesTotals(t *testing.T) {
	repo, svc := newFixture()

	c, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 1, DriverID: 1,
		Denominations: []Denomination{
			{Value: 500, Count: 6}, // 3000
			{Value: 100, Count: 8}, // 800
			{Value: 20, Count: 5},  // 100
		},
		Coins:       35.5,
		ChequeTotal: 600,
		OnlineTotal: 250,
		CreditGiven: 200,
	})
	require.NoError(t, err)

	require.Equal(t, 3935.5, c.CashTotal)
	require.Equal(t, 4785.5, c.TotalReceived)
	require.Equal(t, 5000.0, c.ExpectedCash)
	// (4785.5 + 200) - 5000
	require.InDelta(t, -14.5, c.Variance, 1e-9)
	require.Equal(t, 0.0, c.PreviousVariance)
	require.InDelta(t, -14.5, c.CumulativeVariance, 1e-9)
	require.Equal(t, StatusSubmitted, c.Status)

	// Submitting moves the dispatch to COMPLETED.
	require.Equal(t, dispatch.StatusCompleted, repo.dispatches[1].Status)
}

func TestSubmitChainsCumulativeVariance(t *testing.T) {
	repo, svc := newFixture()
	repo.addDispatch(2, 1, 1000, nil)
	repo.addDispatch(3, 1, 1000, nil)

	// First day short by 100.
	c1, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 2, DriverID: 1,
		Denominations: []Denomination{{Value: 100, Count: 9}},
	})
	require.NoError(t, err)
	require.Equal(t, -100.0, c1.Variance)
	require.Equal(t, -100.0, c1.CumulativeVariance)

	// Second day over by 30: cumulative carries the chain.
	c2, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 3, DriverID: 1,
		Denominations: []Denomination{{Value: 500, Count: 2}},
		Coins:         30,
	})
	require.NoError(t, err)
	require.Equal(t, 30.0, c2.Variance)
	require.Equal(t, -100.0, c2.PreviousVariance)
	require.Equal(t, -70.0, c2.CumulativeVariance)

	// Associativity: the running total equals the sum of per-day variances.
	require.InDelta(t, c1.Variance+c2.Variance, c2.CumulativeVariance, 1e-9)
}

func TestSubmitDuplicateCollection(t *testing.T) {
	_, svc := newFixture()

	req := SubmitRequest{
		DispatchID: 1, DriverID: 1,
		Denominations: []Denomination{{Value: 500, Count: 10}},
	}
	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestSubmitDriverMismatch(t *testing.T) {
	_, svc := newFixture()

	_, err := svc.Submit(context.Background(), SubmitRequest{DispatchID: 1, DriverID: 9})
	require.ErrorIs(t, err, ErrDriverMismatch)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	_, svc := newFixture()

	_, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 1, DriverID: 1,
		Denominations: []Denomination{{Value: 300, Count: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidNoteValue)

	_, err = svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 1, DriverID: 1, ChequeTotal: -5,
	})
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestUpdateRecomputesAndGuardsStatus(t *testing.T) {
	_, svc := newFixture()

	c, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 1, DriverID: 1,
		Denominations: []Denomination{{Value: 500, Count: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, c.Variance)

	c, err = svc.Update(context.Background(), c.ID, UpdateRequest{
		Denominations: []Denomination{{Value: 500, Count: 9}},
		CreditGiven:   300,
	})
	require.NoError(t, err)
	require.Equal(t, 4500.0, c.CashTotal)
	// (4500 + 300) - 5000
	require.Equal(t, -200.0, c.Variance)
	require.Equal(t, -200.0, c.CumulativeVariance)

	_, err = svc.Verify(context.Background(), c.ID, 2, "counted twice")
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), c.ID, UpdateRequest{})
	require.ErrorIs(t, err, ErrNotEditable)
	err = svc.Delete(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestVerifyReconcileLifecycle(t *testing.T) {
	repo, svc := newFixture()

	c, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 1, DriverID: 1,
		Denominations: []Denomination{{Value: 500, Count: 10}},
	})
	require.NoError(t, err)

	// Cannot reconcile before verification.
	_, err = svc.Reconcile(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrCannotReconcile)

	c, err = svc.Verify(context.Background(), c.ID, 2, "")
	require.NoError(t, err)
	require.Equal(t, StatusVerified, c.Status)
	require.Equal(t, int64(2), c.VerifiedBy)

	c, err = svc.Reconcile(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReconciled, c.Status)
	require.Equal(t, dispatch.StatusSettled, repo.dispatches[1].Status)

	// Terminal.
	_, err = svc.Verify(context.Background(), c.ID, 2, "")
	require.ErrorIs(t, err, ErrCannotVerify)
	_, err = svc.Cancel(context.Background(), c.ID, "late void")
	require.ErrorIs(t, err, ErrCannotCancel)
}

func TestCancelReleasesUnsoldStockOnce(t *testing.T) {
	repo, svc := newFixture()
	repo.stock.totals[11] = 40

	c, err := svc.Submit(context.Background(), SubmitRequest{
		DispatchID: 1, DriverID: 1,
		Denominations: []Denomination{{Value: 500, Count: 10}},
	})
	require.NoError(t, err)

	c, err = svc.Cancel(context.Background(), c.ID, "double entry")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, c.Status)
	require.Equal(t, "double entry", c.CancelReason)

	// 15 unsold units of product 11 returned to the ledger, item zeroed.
	require.Equal(t, 55.0, repo.stock.totals[11])
	require.Equal(t, 0.0, repo.dispatches[1].Items[1].Remaining)

	// A second cancellation fails and must not double-release.
	_, err = svc.Cancel(context.Background(), c.ID, "again")
	require.ErrorIs(t, err, ErrCannotCancel)
	require.Equal(t, 55.0, repo.stock.totals[11])
}

func TestCancelRequiresReason(t *testing.T) {
	_, svc := newFixture()
	_, err := svc.Cancel(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrReasonRequired)
}
