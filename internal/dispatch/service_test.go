package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/drivers"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// fakeStock is an in-memory stock.TxRepository shared with the dispatch
// repository fake so allocations roll back together with dispatch writes.
type fakeStock struct {
	batches map[int64]*stock.Batch
	nextID  int64
}

func newFakeStock() *fakeStock {
	return &fakeStock{batches: make(map[int64]*stock.Batch), nextID: 1}
}

func (f *fakeStock) seed(productID int64, batchNo string, qty, rate float64, receivedAt time.Time) {
	id := f.nextID
	f.nextID++
	f.batches[id] = &stock.Batch{
		ID: id, ProductID: productID, BatchNo: batchNo,
		Received: qty, Remaining: qty, PurchaseRate: rate, ReceivedAt: receivedAt,
	}
}

func (f *fakeStock) total(productID int64) float64 {
	var sum float64
	for _, b := range f.batches {
		if b.ProductID == productID {
			sum += b.Remaining
		}
	}
	return sum
}

func (f *fakeStock) InsertBatch(_ context.Context, b stock.Batch) (int64, error) {
	id := f.nextID
	f.nextID++
	b.ID = id
	f.batches[id] = &b
	return id, nil
}

func (f *fakeStock) GetBatchForUpdate(_ context.Context, id int64) (*stock.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, stock.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStock) OpenBatchesForUpdate(_ context.Context, productID int64) ([]stock.Batch, error) {
	var out []stock.Batch
	for _, b := range f.batches {
		if b.ProductID == productID && b.Remaining > 0 && !b.IsDamaged {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}

func (f *fakeStock) LatestBatchForUpdate(_ context.Context, productID int64) (*stock.Batch, error) {
	var latest *stock.Batch
	for _, b := range f.batches {
		if b.ProductID != productID {
			continue
		}
		if latest == nil || b.ReceivedAt.After(latest.ReceivedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, stock.ErrBatchNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStock) DeductFromBatch(_ context.Context, batchID int64, qty float64) error {
	b, ok := f.batches[batchID]
	if !ok || b.Remaining < qty {
		return stock.ErrNegativeStock
	}
	b.Remaining -= qty
	return nil
}

func (f *fakeStock) AddToBatch(_ context.Context, batchID int64, qty float64) error {
	b, ok := f.batches[batchID]
	if !ok {
		return stock.ErrBatchNotFound
	}
	b.Remaining += qty
	return nil
}

func (f *fakeStock) MarkDamaged(_ context.Context, _ stock.WriteOffInput) error {
	return nil
}

// memRepo is an in-memory Repository and TxRepository. WithTx snapshots
// state and restores it when the callback fails, mirroring transactional
// rollback.
type memRepo struct {
	stock      *fakeStock
	dispatches map[int64]*Dispatch
	nextID     int64
	nextSeq    map[string]int
}

func newMemRepo(fs *fakeStock) *memRepo {
	return &memRepo{
		stock:      fs,
		dispatches: make(map[int64]*Dispatch),
		nextID:     1,
		nextSeq:    make(map[string]int),
	}
}

func (m *memRepo) WithTx(_ context.Context, fn func(context.Context, TxRepository) error) error {
	dispatchSnap := make(map[int64]*Dispatch, len(m.dispatches))
	for id, d := range m.dispatches {
		cp := *d
		cp.Items = append([]Item(nil), d.Items...)
		cp.CashFloat = append([]Denomination(nil), d.CashFloat...)
		dispatchSnap[id] = &cp
	}
	stockSnap := make(map[int64]*stock.Batch, len(m.stock.batches))
	for id, b := range m.stock.batches {
		cp := *b
		stockSnap[id] = &cp
	}

	if err := fn(context.Background(), m); err != nil {
		m.dispatches = dispatchSnap
		m.stock.batches = stockSnap
		return err
	}
	return nil
}

func (m *memRepo) InsertDispatch(_ context.Context, d Dispatch) (int64, error) {
	day := d.DispatchDate.Format("2006-01-02")
	for _, existing := range m.dispatches {
		if existing.DriverID == d.DriverID && existing.Status == StatusActive &&
			existing.DispatchDate.Format("2006-01-02") == day {
			return 0, ErrActiveExists
		}
	}
	d.ID = m.nextID
	m.nextID++
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.dispatches[d.ID] = &d
	return d.ID, nil
}

func (m *memRepo) InsertItem(_ context.Context, item Item) (int64, error) {
	d, ok := m.dispatches[item.DispatchID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ID = int64(len(d.Items) + 1)
	d.Items = append(d.Items, item)
	return item.ID, nil
}

func (m *memRepo) InsertCashFloat(_ context.Context, dispatchID int64, denoms []Denomination) error {
	d, ok := m.dispatches[dispatchID]
	if !ok {
		return ErrNotFound
	}
	for _, den := range denoms {
		if den.Count == 0 {
			continue
		}
		d.CashFloat = append(d.CashFloat, den)
	}
	return nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (*Dispatch, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) UpdateStatus(_ context.Context, id int64, status Status, reason string) error {
	d, ok := m.dispatches[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	d.Status = status
	d.CancelReason = reason
	switch status {
	case StatusCompleted:
		d.CompletedAt = &now
	case StatusSettled:
		d.SettledAt = &now
	case StatusCancelled:
		d.CancelledAt = &now
	}
	return nil
}

func (m *memRepo) NextDispatchNo(_ context.Context, date time.Time) (string, error) {
	key := date.Format("2006-01-02")
	m.nextSeq[key]++
	return fmt.Sprintf("DSP-%s-%04d", date.Format("20060102"), m.nextSeq[key]), nil
}

func (m *memRepo) Stock() stock.TxRepository { return m.stock }

func (m *memRepo) GetByID(_ context.Context, id int64) (*Dispatch, error) {
	d, ok := m.dispatches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	cp.Items = append([]Item(nil), d.Items...)
	cp.CashFloat = append([]Denomination(nil), d.CashFloat...)
	return &cp, nil
}

func (m *memRepo) GetActiveByDriver(_ context.Context, driverID int64, date time.Time) (*Dispatch, error) {
	day := date.Format("2006-01-02")
	for _, d := range m.dispatches {
		if d.DriverID == driverID && d.Status == StatusActive &&
			d.DispatchDate.Format("2006-01-02") == day {
			cp := *d
			cp.Items = append([]Item(nil), d.Items...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) List(_ context.Context, _ ListFilter) ([]Dispatch, int, error) {
	return nil, 0, nil
}

func (m *memRepo) Stats(_ context.Context, _, _ time.Time) (*Stats, error) {
	return &Stats{}, nil
}

// fakeDrivers and fakeProducts stub master data lookups.
type fakeDrivers map[int64]drivers.Driver

func (f fakeDrivers) Get(_ context.Context, id int64) (drivers.Driver, error) {
	d, ok := f[id]
	if !ok {
		return drivers.Driver{}, drivers.ErrNotFound
	}
	return d, nil
}

type fakeProducts map[int64]products.Product

func (f fakeProducts) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := f[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

func (f fakeProducts) FindByItemCode(_ context.Context, code string) (products.Product, error) {
	for _, p := range f {
		if p.Code == code {
			return p, nil
		}
	}
	return products.Product{}, products.ErrNotFound
}

type fixture struct {
	stock   *fakeStock
	repo    *memRepo
	service *Service
}

func newFixture() *fixture {
	fs := newFakeStock()
	repo := newMemRepo(fs)
	dr := fakeDrivers{
		1: {ID: 1, Name: "Ravi", IsActive: true},
		2: {ID: 2, Name: "Former driver", IsActive: false},
	}
	pr := fakeProducts{
		10: {ID: 10, Code: "SPR200", Name: "Sparkle 200ml", Price: 20, IsActive: true},
		11: {ID: 11, Code: "SPR1L", Name: "Sparkle 1L", Price: 60, IsActive: true},
		12: {ID: 12, Code: "OLD500", Name: "Retired 500ml", Price: 30, IsActive: false},
	}
	return &fixture{
		stock:   fs,
		repo:    repo,
		service: NewService(repo, dr, pr, slog.Default()),
	}
}

func TestCreateDispatchAllocatesFIFO(t *testing.T) {
	f := newFixture()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.stock.seed(10, "B-1", 30, 14, base)
	f.stock.seed(10, "B-2", 50, 16, base.AddDate(0, 0, 3))

	d, err := f.service.Create(context.Background(), CreateRequest{
		DriverID:     1,
		DispatchDate: "2026-03-10",
		Items:        []CreateItemRequest{{ProductID: 10, Quantity: 40}},
	}, 7)
	require.NoError(t, err)

	require.Equal(t, StatusActive, d.Status)
	require.Equal(t, "DSP-20260310-0001", d.DispatchNo)
	require.Len(t, d.Items, 1)
	require.Equal(t, 40.0, d.Items[0].Quantity)
	require.Equal(t, 40.0, d.Items[0].Remaining)
	require.Equal(t, 20.0, d.Items[0].Rate)
	require.Equal(t, 800.0, d.Items[0].Value)
	require.Equal(t, 800.0, d.TotalValue)

	// 30 drained from the older batch, 10 from the newer.
	require.Equal(t, 40.0, f.stock.total(10))
	// Weighted cost: (30*14 + 10*16) / 40.
	require.InDelta(t, 14.5, d.Items[0].UnitCost, 1e-9)
}

func TestCreateDispatchInsufficientStockRollsBack(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())
	f.stock.seed(11, "B-2", 5, 40, time.Now())

	_, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 1,
		Items: []CreateItemRequest{
			{ProductID: 10, Quantity: 50},
			{ProductID: 11, Quantity: 20},
		},
	}, 7)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.ErrorContains(t, err, "Sparkle 1L")

	// First item's deduction must not stick.
	require.Equal(t, 100.0, f.stock.total(10))
	require.Equal(t, 5.0, f.stock.total(11))
	require.Empty(t, f.repo.dispatches)
}

func TestCreateDispatchOnePerDriverPerDay(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())

	req := CreateRequest{
		DriverID:     1,
		DispatchDate: "2026-03-10",
		Items:        []CreateItemRequest{{ProductID: 10, Quantity: 10}},
	}
	_, err := f.service.Create(context.Background(), req, 7)
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, ErrActiveExists)

	// The rejected dispatch must not consume stock.
	require.Equal(t, 90.0, f.stock.total(10))
}

func TestCreateDispatchRecordsCashFloat(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())

	d, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 1,
		Items:    []CreateItemRequest{{ProductID: 10, Quantity: 10}},
		CashFloat: []Denomination{
			{Value: 500, Count: 2},
			{Value: 100, Count: 5},
			{Value: 10, Count: 0},
		},
	}, 7)
	require.NoError(t, err)
	require.Equal(t, 1500.0, d.TotalCashValue)
	// Zero-count rows are dropped; the rest persist with the dispatch.
	require.Equal(t, []Denomination{{Value: 500, Count: 2}, {Value: 100, Count: 5}}, d.CashFloat)
}

func TestCreateDispatchRejectsBadNoteValue(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())

	_, err := f.service.Create(context.Background(), CreateRequest{
		DriverID:  1,
		Items:     []CreateItemRequest{{ProductID: 10, Quantity: 10}},
		CashFloat: []Denomination{{Value: 300, Count: 1}},
	}, 7)
	require.ErrorIs(t, err, ErrInvalidNoteValue)
	require.Equal(t, 100.0, f.stock.total(10))
}

func TestCreateDispatchInactiveProductRollsBack(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())
	f.stock.seed(12, "B-2", 50, 25, time.Now())

	_, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 1,
		Items: []CreateItemRequest{
			{ProductID: 10, Quantity: 10},
			{ProductID: 12, Quantity: 5},
		},
	}, 7)
	require.ErrorIs(t, err, ErrProductInactive)
	require.ErrorContains(t, err, "Retired 500ml")

	// The first item's allocation must not stick.
	require.Equal(t, 100.0, f.stock.total(10))
	require.Empty(t, f.repo.dispatches)
}

func TestCreateDispatchInactiveDriver(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())

	_, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 2,
		Items:    []CreateItemRequest{{ProductID: 10, Quantity: 10}},
	}, 7)
	require.ErrorIs(t, err, ErrDriverInactive)
}

func TestCreateDispatchRejectsDuplicateProduct(t *testing.T) {
	f := newFixture()
	_, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 1,
		Items: []CreateItemRequest{
			{ProductID: 10, Quantity: 10},
			{ProductID: 10, Quantity: 5},
		},
	}, 7)
	require.ErrorIs(t, err, ErrDuplicateProduct)
}

func TestDispatchLifecycle(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())

	d, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 1,
		Items:    []CreateItemRequest{{ProductID: 10, Quantity: 10}},
	}, 7)
	require.NoError(t, err)

	// Cannot settle an active dispatch.
	_, err = f.service.Settle(context.Background(), d.ID)
	require.ErrorIs(t, err, ErrCannotSettle)

	d, err = f.service.Complete(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, d.Status)
	require.NotNil(t, d.CompletedAt)

	d, err = f.service.Settle(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSettled, d.Status)

	// Terminal: no further transitions.
	_, err = f.service.Complete(context.Background(), d.ID)
	require.ErrorIs(t, err, ErrCannotComplete)
}

func TestCancelReleasesRemainingStock(t *testing.T) {
	f := newFixture()
	f.stock.seed(10, "B-1", 100, 14, time.Now())

	d, err := f.service.Create(context.Background(), CreateRequest{
		DriverID: 1,
		Items:    []CreateItemRequest{{ProductID: 10, Quantity: 40}},
	}, 7)
	require.NoError(t, err)
	require.Equal(t, 60.0, f.stock.total(10))

	d, err = f.service.Cancel(context.Background(), d.ID, "vehicle breakdown")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, d.Status)
	require.Equal(t, "vehicle breakdown", d.CancelReason)
	require.Equal(t, 100.0, f.stock.total(10))

	// Cancelling twice fails and must not double-release.
	_, err = f.service.Cancel(context.Background(), d.ID, "again")
	require.ErrorIs(t, err, ErrCannotCancel)
	require.Equal(t, 100.0, f.stock.total(10))
}

func TestCancelRequiresReason(t *testing.T) {
	f := newFixture()
	_, err := f.service.Cancel(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrReasonRequired)
}
