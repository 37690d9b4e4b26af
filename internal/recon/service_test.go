package recon

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/collection"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/picklist"
)

type fakeProducts struct {
	byCode map[string]products.Product
}

func (f *fakeProducts) Get(_ context.Context, id int64) (products.Product, error) {
	for _, p := range f.byCode {
		if p.ID == id {
			return p, nil
		}
	}
	return products.Product{}, products.ErrNotFound
}

func (f *fakeProducts) FindByItemCode(_ context.Context, code string) (products.Product, error) {
	p, ok := f.byCode[code]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

// memRepo is an in-memory Repository and TxRepository.
type memRepo struct {
	pickLists   map[int64]*picklist.PickList
	collections map[int64]*collection.Collection
	pairs       []Pair
}

func newMemRepo() *memRepo {
	return &memRepo{
		pickLists:   make(map[int64]*picklist.PickList),
		collections: make(map[int64]*collection.Collection),
	}
}

func (m *memRepo) Reports(_ context.Context, filter ReportFilter) ([]picklist.PickList, int, error) {
	var out []picklist.PickList
	for _, p := range m.pickLists {
		if filter.Status != "" && p.ReconStatus != filter.Status {
			continue
		}
		if filter.Status == "" && p.ReconStatus == picklist.ReconPending {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memRepo) Stats(_ context.Context) (*Stats, error) {
	s := &Stats{}
	for _, p := range m.pickLists {
		s.Total++
		switch p.ReconStatus {
		case picklist.ReconPending:
			s.Pending++
			continue
		case picklist.ReconMatched:
			s.Matched++
		case picklist.ReconExcess:
			s.Excess++
		case picklist.ReconShortage:
			s.Shortage++
		}
		s.TotalExpected += p.ReconExpected
		s.TotalActual += p.ReconActual
		s.TotalVariance += p.ReconVariance
	}
	return s, nil
}

func (m *memRepo) Candidates(_ context.Context, _ time.Time) ([]Pair, error) {
	var out []Pair
	for _, pair := range m.pairs {
		p, ok := m.pickLists[pair.PickListID]
		if ok && p.ReconStatus != picklist.ReconPending {
			continue
		}
		out = append(out, pair)
	}
	return out, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := make(map[int64]*picklist.PickList, len(m.pickLists))
	for id, p := range m.pickLists {
		cp := *p
		snap[id] = &cp
	}
	if err := fn(ctx, m); err != nil {
		m.pickLists = snap
		return err
	}
	return nil
}

func (m *memRepo) GetPickListForUpdate(_ context.Context, id int64) (*picklist.PickList, error) {
	p, ok := m.pickLists[id]
	if !ok {
		return nil, picklist.ErrNotFound
	}
	cp := *p
	cp.Items = append([]picklist.Item(nil), p.Items...)
	return &cp, nil
}

func (m *memRepo) GetCollection(_ context.Context, id int64) (*collection.Collection, error) {
	c, ok := m.collections[id]
	if !ok {
		return nil, collection.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) SaveResult(_ context.Context, res Result) error {
	p, ok := m.pickLists[res.PickListID]
	if !ok {
		return picklist.ErrNotFound
	}
	p.ReconStatus = res.Status
	p.ReconExpected = res.ExpectedTotal
	p.ReconActual = res.ActualTotal
	p.ReconVariance = res.Variance
	p.ReconVariancePct = res.VariancePct
	p.ReconCollectionID = res.CollectionID
	at := res.ReconciledAt
	p.ReconciledAt = &at
	return nil
}

func newFixture(tol Tolerances) (*memRepo, *Service) {
	repo := newMemRepo()
	repo.pickLists[1] = &picklist.PickList{
		ID:          1,
		Number:      "PL-2041",
		Vehicle:     "KA01-AB-1234",
		LoadOutDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ReconStatus: picklist.ReconPending,
		Items: []picklist.Item{
			{ID: 21, PickListID: 1, ItemCode: "SPR200", SellQty: 100, MRP: 90},
		},
	}
	repo.collections[5] = &collection.Collection{
		ID:          5,
		Status:      collection.StatusVerified,
		CashTotal:   9000,
		ChequeTotal: 800,
		OnlineTotal: 150,
		CreditGiven: 100,
	}

	pr := &fakeProducts{byCode: map[string]products.Product{
		"SPR200": {ID: 10, Code: "SPR200", Name: "Sparkle 200ml", Price: 100},
	}}
	svc := NewService(repo, pr, tol, 500, slog.Default())
	return repo, svc
}

func TestReconcileMatchedAndPersisted(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})

	res, err := svc.Reconcile(context.Background(), 1, 5)
	require.NoError(t, err)
	// 100 units at current price 100 = 10000 expected; 10050 actual.
	require.Equal(t, 10000.0, res.ExpectedTotal)
	require.Equal(t, 10050.0, res.ActualTotal)
	require.Equal(t, 50.0, res.Variance)
	require.InDelta(t, 0.5, res.VariancePct, 0.0001)
	require.Equal(t, picklist.ReconMatched, res.Status)

	p := repo.pickLists[1]
	require.Equal(t, picklist.ReconMatched, p.ReconStatus)
	require.Equal(t, int64(5), p.ReconCollectionID)
	require.Equal(t, 50.0, p.ReconVariance)
	require.NotNil(t, p.ReconciledAt)
}

func TestToleranceMatrix(t *testing.T) {
	cases := []struct {
		name   string
		tol    Tolerances
		cash   float64
		want   picklist.ReconStatus
	}{
		{"within absolute", Tolerances{Amount: 100, Percent: 0}, 9000, picklist.ReconMatched},
		{"within percent only", Tolerances{Amount: 100, Percent: 2}, 9100, picklist.ReconMatched},
		{"exceeds both, over", Tolerances{Amount: 10, Percent: 0.1}, 9000, picklist.ReconExcess},
		{"exceeds both, under", Tolerances{Amount: 10, Percent: 0.1}, 8800, picklist.ReconShortage},
		{"exact match", Tolerances{Amount: 0, Percent: 0}, 8950, picklist.ReconMatched},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, svc := newFixture(tc.tol)
			repo.collections[5].CashTotal = tc.cash

			res, err := svc.Reconcile(context.Background(), 1, 5)
			require.NoError(t, err)
			require.Equal(t, tc.want, res.Status)
		})
	}
}

func TestIdempotentRerunOverwrites(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})

	first, err := svc.Reconcile(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, picklist.ReconMatched, first.Status)

	repo.collections[6] = &collection.Collection{
		ID: 6, Status: collection.StatusVerified, CashTotal: 8000,
	}
	second, err := svc.Reconcile(context.Background(), 1, 6)
	require.NoError(t, err)
	require.Equal(t, picklist.ReconShortage, second.Status)

	p := repo.pickLists[1]
	require.Equal(t, int64(6), p.ReconCollectionID)
	require.Equal(t, picklist.ReconShortage, p.ReconStatus)
	require.Equal(t, 8000.0, p.ReconActual)
}

func TestEffectivePriceFallsBackToManifest(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})
	// Second line's code resolves to no product; its MRP prices it.
	repo.pickLists[1].Items = append(repo.pickLists[1].Items, picklist.Item{
		ID: 22, PickListID: 1, ItemCode: "UNKNOWN9", SellQty: 10, MRP: 55,
	})

	res, err := svc.Reconcile(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, 10550.0, res.ExpectedTotal)
}

func TestZeroExpectedHasZeroPct(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})
	repo.pickLists[1].Items = nil
	repo.collections[5].CashTotal = 0
	repo.collections[5].ChequeTotal = 0
	repo.collections[5].OnlineTotal = 0
	repo.collections[5].CreditGiven = 0

	res, err := svc.Reconcile(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, 0.0, res.ExpectedTotal)
	require.Equal(t, 0.0, res.VariancePct)
	require.Equal(t, picklist.ReconMatched, res.Status)
}

func TestCancelledCollectionRejected(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})
	repo.collections[5].Status = collection.StatusCancelled

	_, err := svc.Reconcile(context.Background(), 1, 5)
	require.ErrorIs(t, err, ErrCollectionCancelled)
	require.Equal(t, picklist.ReconPending, repo.pickLists[1].ReconStatus)
}

func TestBreakdown(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})
	repo.collections[5].CashTotal = 9000 - 700 // shortage of 650 after credit
	repo.collections[5].CratesReturnedFull = 1

	_, err := svc.Reconcile(context.Background(), 1, 5)
	require.NoError(t, err)

	b, err := svc.Breakdown(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, -650.0, b.Variance)
	require.Equal(t, 100.0, b.CreditGiven)
	require.Equal(t, 500.0, b.FullCratesValue)
	require.Equal(t, 50.0, b.Unexplained)
	require.True(t, b.Significant)
}

func TestBreakdownFullyExplained(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})
	repo.collections[5].CashTotal = 9000 - 600
	repo.collections[5].CratesReturnedFull = 1

	_, err := svc.Reconcile(context.Background(), 1, 5)
	require.NoError(t, err)

	b, err := svc.Breakdown(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, -550.0, b.Variance)
	require.Equal(t, 0.0, b.Unexplained)
	require.False(t, b.Significant)
}

func TestBreakdownRequiresReconciliation(t *testing.T) {
	_, svc := newFixture(Tolerances{Amount: 100, Percent: 2})

	_, err := svc.Breakdown(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotReconciled)
}

func TestAutoReconcileSweep(t *testing.T) {
	repo, svc := newFixture(Tolerances{Amount: 100, Percent: 2})
	repo.pickLists[2] = &picklist.PickList{
		ID: 2, Number: "PL-2042", ReconStatus: picklist.ReconPending,
		Items: []picklist.Item{{ID: 31, PickListID: 2, ItemCode: "SPR200", SellQty: 50, MRP: 90}},
	}
	repo.collections[6] = &collection.Collection{
		ID: 6, Status: collection.StatusSubmitted, CashTotal: 4990,
	}
	repo.pairs = []Pair{
		{PickListID: 1, CollectionID: 5},
		{PickListID: 2, CollectionID: 6},
		{PickListID: 99, CollectionID: 5}, // missing pick list: skipped
	}

	n, err := svc.AutoReconcile(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, picklist.ReconMatched, repo.pickLists[1].ReconStatus)
	require.Equal(t, picklist.ReconMatched, repo.pickLists[2].ReconStatus)

	// A second sweep finds nothing pending.
	n, err = svc.AutoReconcile(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
