package picklist

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/stock"
)

// fakeStock is an in-memory batch ledger implementing stock.TxRepository.
type fakeStock struct {
	batches map[int64][]*stock.Batch
	nextID  int64
}

func newFakeStock() *fakeStock {
	return &fakeStock{batches: make(map[int64][]*stock.Batch), nextID: 100}
}

func (f *fakeStock) add(productID int64, remaining float64) {
	f.nextID++
	f.batches[productID] = append(f.batches[productID], &stock.Batch{
		ID: f.nextID, ProductID: productID, Remaining: remaining,
	})
}

func (f *fakeStock) remaining(productID int64) float64 {
	var total float64
	for _, b := range f.batches[productID] {
		total += b.Remaining
	}
	return total
}

func (f *fakeStock) InsertBatch(_ context.Context, b stock.Batch) (int64, error) {
	f.nextID++
	b.ID = f.nextID
	f.batches[b.ProductID] = append(f.batches[b.ProductID], &b)
	return b.ID, nil
}

func (f *fakeStock) GetBatchForUpdate(_ context.Context, id int64) (*stock.Batch, error) {
	for _, list := range f.batches {
		for _, b := range list {
			if b.ID == id {
				return b, nil
			}
		}
	}
	return nil, stock.ErrBatchNotFound
}

func (f *fakeStock) OpenBatchesForUpdate(_ context.Context, productID int64) ([]stock.Batch, error) {
	var out []stock.Batch
	for _, b := range f.batches[productID] {
		if b.Remaining > 0 {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStock) LatestBatchForUpdate(_ context.Context, productID int64) (*stock.Batch, error) {
	list := f.batches[productID]
	if len(list) == 0 {
		return nil, stock.ErrBatchNotFound
	}
	return list[len(list)-1], nil
}

func (f *fakeStock) DeductFromBatch(_ context.Context, batchID int64, qty float64) error {
	for _, list := range f.batches {
		for _, b := range list {
			if b.ID == batchID {
				if b.Remaining < qty {
					return stock.ErrNegativeStock
				}
				b.Remaining -= qty
				return nil
			}
		}
	}
	return stock.ErrBatchNotFound
}

func (f *fakeStock) AddToBatch(_ context.Context, batchID int64, qty float64) error {
	for _, list := range f.batches {
		for _, b := range list {
			if b.ID == batchID {
				b.Remaining += qty
				return nil
			}
		}
	}
	return stock.ErrBatchNotFound
}

func (f *fakeStock) MarkDamaged(_ context.Context, _ stock.WriteOffInput) error { return nil }

// fakeProducts resolves item codes the way the SQL lookup does, including
// either side of a compound code.
type fakeProducts struct {
	byID map[int64]products.Product
}

func (f *fakeProducts) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) FindByItemCode(_ context.Context, code string) (products.Product, error) {
	for _, p := range f.byID {
		if p.Code == code {
			return p, nil
		}
	}
	for _, p := range f.byID {
		for _, part := range strings.Split(p.Code, "/") {
			if part == code {
				return p, nil
			}
		}
	}
	return products.Product{}, products.ErrNotFound
}

// memRepo is an in-memory Repository and TxRepository.
type memRepo struct {
	lists  map[int64]*PickList
	nextID int64
	stock  *fakeStock
}

func newMemRepo(st *fakeStock) *memRepo {
	return &memRepo{lists: make(map[int64]*PickList), stock: st}
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*PickList, error) {
	p, ok := m.lists[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Items = append([]Item(nil), p.Items...)
	return &cp, nil
}

func (m *memRepo) GetByNumber(ctx context.Context, number string) (*PickList, error) {
	for id, p := range m.lists {
		if p.Number == number {
			return m.GetByID(ctx, id)
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) List(_ context.Context, _ ListFilter) ([]PickList, int, error) {
	var out []PickList
	for _, p := range m.lists {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	listSnap := make(map[int64]*PickList, len(m.lists))
	for id, p := range m.lists {
		cp := *p
		cp.Items = append([]Item(nil), p.Items...)
		listSnap[id] = &cp
	}
	stockSnap := make(map[int64][]*stock.Batch, len(m.stock.batches))
	for pid, list := range m.stock.batches {
		cps := make([]*stock.Batch, len(list))
		for i, b := range list {
			cb := *b
			cps[i] = &cb
		}
		stockSnap[pid] = cps
	}

	if err := fn(ctx, m); err != nil {
		m.lists = listSnap
		m.stock.batches = stockSnap
		return err
	}
	return nil
}

func (m *memRepo) InsertPickList(_ context.Context, p PickList) (int64, error) {
	for _, existing := range m.lists {
		if existing.Number == p.Number {
			return 0, ErrDuplicateNumber
		}
	}
	m.nextID++
	p.ID = m.nextID
	p.ReconStatus = ReconPending
	m.lists[p.ID] = &p
	return p.ID, nil
}

func (m *memRepo) InsertItem(_ context.Context, it Item) (int64, error) {
	p, ok := m.lists[it.PickListID]
	if !ok {
		return 0, ErrNotFound
	}
	m.nextID++
	it.ID = m.nextID
	p.Items = append(p.Items, it)
	return it.ID, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (*PickList, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) SetStockReduced(_ context.Context, id int64, reduced bool) error {
	p, ok := m.lists[id]
	if !ok {
		return ErrNotFound
	}
	p.StockReduced = reduced
	if reduced {
		now := time.Now()
		p.ReducedAt = &now
	} else {
		p.ReducedAt = nil
	}
	return nil
}

func (m *memRepo) SetItemReducedQty(_ context.Context, itemID int64, qty float64) error {
	for _, p := range m.lists {
		for i := range p.Items {
			if p.Items[i].ID == itemID {
				p.Items[i].ReducedQty = qty
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *memRepo) Stock() stock.TxRepository { return m.stock }

func newFixture() (*memRepo, *fakeStock, *Service) {
	st := newFakeStock()
	st.add(10, 60)
	st.add(10, 40)
	st.add(11, 20)

	repo := newMemRepo(st)
	pr := &fakeProducts{byID: map[int64]products.Product{
		10: {ID: 10, Code: "SPR200/SPR200P", Name: "Sparkle 200ml", Price: 10, IsActive: true},
		11: {ID: 11, Code: "SPR1L", Name: "Sparkle 1L", Price: 55, IsActive: true},
	}}
	svc := NewService(repo, pr, slog.Default())
	return repo, st, svc
}

func ingestReq() IngestRequest {
	return IngestRequest{
		Number:       "PL-2041",
		Vehicle:      "KA01-AB-1234",
		Route:        "North loop",
		Salesman:     "Ravi",
		LoadOutDate:  "2026-03-10",
		CratesLoaded: 52,
		// SellQty differs from LoQty: reduction consumes what was loaded.
		Items: []IngestItemRequest{
			{ItemCode: "SPR200", ItemName: "Sparkle 200ml", SellQty: 75, LoQty: 80, MRP: 10},
			{ItemCode: "SPR1L", ItemName: "Sparkle 1L", SellQty: 12, LoQty: 15, MRP: 55},
		},
	}
}

func TestIngest(t *testing.T) {
	_, _, svc := newFixture()

	p, err := svc.Ingest(context.Background(), ingestReq())
	require.NoError(t, err)
	require.Equal(t, "PL-2041", p.Number)
	require.Equal(t, ReconPending, p.ReconStatus)
	require.False(t, p.StockReduced)
	require.Len(t, p.Items, 2)
	require.Equal(t, "2026-03-10", p.LoadOutDate.Format("2006-01-02"))
}

func TestIngestDuplicateNumber(t *testing.T) {
	_, _, svc := newFixture()

	_, err := svc.Ingest(context.Background(), ingestReq())
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), ingestReq())
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestIngestRequiresItems(t *testing.T) {
	_, _, svc := newFixture()

	req := ingestReq()
	req.Items = nil
	_, err := svc.Ingest(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestReduceStockFull(t *testing.T) {
	_, st, svc := newFixture()

	p, err := svc.Ingest(context.Background(), ingestReq())
	require.NoError(t, err)

	report, err := svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, report.AlreadyDone)
	require.True(t, report.FullyReduced)
	require.Len(t, report.Lines, 2)
	require.Equal(t, 80.0, report.Lines[0].Reduced)
	require.Equal(t, 0.0, report.Lines[0].Short)

	// FIFO: the 80 for product 10 drains the 60 batch first.
	require.Equal(t, 0.0, st.batches[10][0].Remaining)
	require.Equal(t, 20.0, st.batches[10][1].Remaining)
	require.Equal(t, 5.0, st.remaining(11))

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, got.StockReduced)
	require.Equal(t, 80.0, got.Items[0].ReducedQty)
	require.Equal(t, 15.0, got.Items[1].ReducedQty)
}

func TestReduceStockPartialShortfall(t *testing.T) {
	_, st, svc := newFixture()

	req := ingestReq()
	req.Items[1].LoQty = 35 // only 20 on hand
	p, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	report, err := svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, report.FullyReduced)
	require.Equal(t, 20.0, report.Lines[1].Reduced)
	require.Equal(t, 15.0, report.Lines[1].Short)
	require.Equal(t, 0.0, st.remaining(11))

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.Items[1].ReducedQty)
}

func TestReduceStockUnknownItemCode(t *testing.T) {
	_, st, svc := newFixture()

	req := ingestReq()
	req.Items[1].ItemCode = "NOPE99"
	p, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	report, err := svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, report.FullyReduced)
	require.Equal(t, 0.0, report.Lines[1].Reduced)
	require.Equal(t, 15.0, report.Lines[1].Short)
	require.NotEmpty(t, report.Lines[1].Note)
	// The unknown line must not touch the ledger.
	require.Equal(t, 20.0, st.remaining(11))
}

func TestReduceStockIdempotent(t *testing.T) {
	_, st, svc := newFixture()

	p, err := svc.Ingest(context.Background(), ingestReq())
	require.NoError(t, err)

	_, err = svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	before := st.remaining(10)

	report, err := svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, report.AlreadyDone)
	require.Empty(t, report.Lines)
	require.Equal(t, before, st.remaining(10))
}

func TestReverseReduction(t *testing.T) {
	_, st, svc := newFixture()

	p, err := svc.Ingest(context.Background(), ingestReq())
	require.NoError(t, err)
	_, err = svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, st.remaining(10))

	got, err := svc.ReverseReduction(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, got.StockReduced)
	require.Equal(t, 0.0, got.Items[0].ReducedQty)
	require.Equal(t, 100.0, st.remaining(10))
	require.Equal(t, 20.0, st.remaining(11))

	// Flag cleared, so a fresh reduction runs again.
	report, err := svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, report.AlreadyDone)
	require.True(t, report.FullyReduced)
}

func TestReverseBeforeReduce(t *testing.T) {
	_, _, svc := newFixture()

	p, err := svc.Ingest(context.Background(), ingestReq())
	require.NoError(t, err)

	_, err = svc.ReverseReduction(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrNotReduced)
}

func TestCompoundItemCodeResolution(t *testing.T) {
	_, st, svc := newFixture()

	req := ingestReq()
	req.Items = req.Items[:1]
	req.Items[0].ItemCode = "SPR200P" // right side of "SPR200/SPR200P"
	req.Items[0].LoQty = 10
	p, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	report, err := svc.ReduceStock(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, report.FullyReduced)
	require.Equal(t, 90.0, st.remaining(10))
}
