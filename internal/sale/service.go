package sale

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/products"
	"github.com/meridian-dms/meridian-dms/internal/masterdata/retailers"
)

// paymentTolerance absorbs float rounding when checking cash + credit
// against the computed total.
const paymentTolerance = 0.01

// Service provides business logic for sales.
type Service struct {
	repo      Repository
	products  products.Repository
	retailers retailers.Repository
	logger    *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, pr products.Repository, rr retailers.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, products: pr, retailers: rr, logger: logger}
}

// Record books a sale against an active dispatch. Each line consumes the
// dispatch item's remaining quantity at the frozen rate; the decrement and
// the sale insert commit atomically, and any shortfall rejects the whole
// sale.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Sale, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, it.ProductID)
		}
	}
	if req.CashAmount < 0 || req.CreditAmount < 0 || req.EmptyBottles < 0 {
		return nil, ErrNegativePayment
	}
	var chequeTotal float64
	for _, c := range req.Cheques {
		if strings.TrimSpace(c.Number) == "" || c.Amount <= 0 {
			return nil, ErrInvalidCheque
		}
		chequeTotal += c.Amount
	}

	retailer, err := s.retailers.Get(ctx, req.RetailerID)
	if err != nil {
		return nil, fmt.Errorf("get retailer: %w", err)
	}
	if !retailer.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrRetailerInactive, retailer.Name)
	}

	var saleID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDispatchForUpdate(ctx, req.DispatchID)
		if err != nil {
			return err
		}
		if !d.Status.CanSell() {
			return fmt.Errorf("%w: status %s", ErrDispatchNotSellable, d.Status)
		}
		if d.DriverID != req.DriverID {
			return ErrDriverMismatch
		}

		byProduct := make(map[int64]*struct {
			itemID    int64
			remaining float64
			rate      float64
		}, len(d.Items))
		for i := range d.Items {
			it := d.Items[i]
			byProduct[it.ProductID] = &struct {
				itemID    int64
				remaining float64
				rate      float64
			}{it.ID, it.Remaining, it.Rate}
		}

		var lines []Item
		var total float64
		for _, reqItem := range req.Items {
			di, ok := byProduct[reqItem.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %d", ErrProductNotOnDispatch, reqItem.ProductID)
			}
			if di.remaining < reqItem.Quantity {
				product, perr := s.products.Get(ctx, reqItem.ProductID)
				name := fmt.Sprintf("product %d", reqItem.ProductID)
				if perr == nil {
					name = product.Name
				}
				return fmt.Errorf("%w: %s: requested %.0f, remaining %.0f",
					ErrInsufficientDispatchStock, name, reqItem.Quantity, di.remaining)
			}
			// A product may appear on several request lines; track the
			// running remainder so the second line sees the first.
			di.remaining -= reqItem.Quantity

			amount := reqItem.Quantity * di.rate
			total += amount
			lines = append(lines, Item{
				ProductID: reqItem.ProductID,
				Quantity:  reqItem.Quantity,
				Rate:      di.rate,
				Amount:    amount,
			})
			if err := tx.DecrementItemRemaining(ctx, di.itemID, reqItem.Quantity); err != nil {
				return err
			}
		}

		cash, credit := req.CashAmount, req.CreditAmount
		if cash == 0 && chequeTotal == 0 && credit == 0 {
			cash = total
		} else if math.Abs(cash+chequeTotal+credit-total) > paymentTolerance {
			return fmt.Errorf("%w: cash %.2f + cheques %.2f + credit %.2f != total %.2f",
				ErrPaymentMismatch, cash, chequeTotal, credit, total)
		}

		now := time.Now().UTC()
		no, err := tx.NextSaleNo(ctx, now)
		if err != nil {
			return err
		}

		saleID, err = tx.InsertSale(ctx, Sale{
			SaleNo:       no,
			DispatchID:   req.DispatchID,
			DriverID:     req.DriverID,
			RetailerID:   req.RetailerID,
			SaleDate:     now,
			TotalAmount:  total,
			CashAmount:   cash,
			ChequeAmount: chequeTotal,
			CreditAmount: credit,
			TotalPaid:    cash + chequeTotal,
			EmptyBottles: req.EmptyBottles,
			Notes:        req.Notes,
		})
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].SaleID = saleID
			if _, err := tx.InsertItem(ctx, lines[i]); err != nil {
				return err
			}
		}
		for _, c := range req.Cheques {
			if _, err := tx.InsertCheque(ctx, Cheque{
				SaleID:   saleID,
				Number:   strings.TrimSpace(c.Number),
				Amount:   c.Amount,
				PhotoURL: c.PhotoURL,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale recorded",
		"sale_id", saleID, "dispatch_id", req.DispatchID,
		"retailer_id", req.RetailerID, "items", len(req.Items))

	return s.repo.GetByID(ctx, saleID)
}

// Get returns one sale with items.
func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a filtered sale page.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.repo.List(ctx, filter)
}

// DailySummary aggregates one driver's sales for a day.
func (s *Service) DailySummary(ctx context.Context, driverID int64, date time.Time) (*DailySummary, error) {
	return s.repo.DailySummary(ctx, driverID, date)
}

// SettlementReport is the end-of-day loaded vs sold picture for a dispatch.
func (s *Service) SettlementReport(ctx context.Context, dispatchID int64) (*SettlementReport, error) {
	return s.repo.SettlementReport(ctx, dispatchID)
}
