package viewmodel

import (
	"strings"
	"sync"

	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/ikkim/storefront-cart/internal/app/service"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of decimal places money values are rounded to.
const moneyPlaces = 2

// LineView is one display-ready cart row.
type LineView struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"product_id"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug,omitempty"`
	ImageURL       string           `json:"image_url,omitempty"`
	Quantity       int              `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	DiscountPrice  *decimal.Decimal `json:"discount_price,omitempty"`
	EffectivePrice decimal.Decimal  `json:"effective_price"`
	LineTotal      decimal.Decimal  `json:"line_total"`
	Stock          int              `json:"stock"`
	CanIncrement   bool             `json:"can_increment"`
	Pending        bool             `json:"pending"`
}

// ErrorView is the toast-ready form of the last operation error.
type ErrorView struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
}

// CartView is what cart UI surfaces render.
type CartView struct {
	Mode       model.CartMode  `json:"mode"`
	State      service.State   `json:"state"`
	Lines      []*LineView     `json:"lines"`
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	IsEmpty    bool            `json:"is_empty"`
	IsGuest    bool            `json:"is_guest"`
	Loading    bool            `json:"loading"`
	Error      *ErrorView      `json:"error,omitempty"`
	Version    uint64          `json:"version"`
}

// Build derives a CartView from an engine snapshot.
func Build(snap service.Snapshot) *CartView {
	return build(snap, nil)
}

func build(snap service.Snapshot, reuse func(*model.CartLine) *LineView) *CartView {
	cart := snap.Cart
	if cart == nil {
		cart = model.NewGuestCart()
	}

	view := &CartView{
		Mode:       cart.Mode,
		State:      snap.State,
		Lines:      make([]*LineView, 0, len(cart.Lines)),
		TotalItems: cart.TotalItems(),
		Subtotal:   cart.Subtotal().Round(moneyPlaces),
		IsEmpty:    cart.IsEmpty(),
		IsGuest:    snap.State != service.StateAuthenticated,
		Loading:    snap.Loading,
		Error:      errorView(snap.Err),
		Version:    snap.Version,
	}
	if view.Mode == "" {
		view.Mode = model.CartModeGuest
	}

	for _, line := range cart.Lines {
		var lv *LineView
		if reuse != nil {
			lv = reuse(line)
		}
		if lv == nil {
			lv = lineView(line)
		}
		view.Lines = append(view.Lines, lv)
	}
	return view
}

func lineView(line *model.CartLine) *LineView {
	lv := &LineView{
		ID:             line.ID,
		ProductID:      line.ProductID,
		Name:           line.Product.Name,
		Slug:           line.Product.Slug,
		ImageURL:       line.Product.ImageURL,
		Quantity:       line.Quantity,
		UnitPrice:      decimal.NewFromFloat(line.UnitPrice).Round(moneyPlaces),
		EffectivePrice: line.EffectivePrice().Round(moneyPlaces),
		LineTotal:      line.LineTotal().Round(moneyPlaces),
		Stock:          line.Product.Stock,
		CanIncrement:   line.Product.Stock <= 0 || line.Quantity < line.Product.Stock,
		Pending:        strings.HasPrefix(line.ID, service.PendingLinePrefix),
	}
	if line.DiscountPrice != nil {
		d := decimal.NewFromFloat(*line.DiscountPrice).Round(moneyPlaces)
		lv.DiscountPrice = &d
	}
	return lv
}

func errorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	info := apperrors.ParseError(err)
	view := &ErrorView{Code: info.Code, Message: info.Message}
	if ce, ok := apperrors.AsCartError(err); ok {
		view.ProductID = ce.ProductID
	}
	return view
}

// Projector builds successive views of one engine and hands back the same
// *LineView for lines whose source *CartLine did not change.
type Projector struct {
	mu   sync.Mutex
	prev map[*model.CartLine]*LineView
}

func NewProjector() *Projector {
	return &Projector{prev: make(map[*model.CartLine]*LineView)}
}

func (p *Projector) Project(snap service.Snapshot) *CartView {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[*model.CartLine]*LineView)
	view := build(snap, func(line *model.CartLine) *LineView {
		lv, ok := p.prev[line]
		if !ok {
			lv = lineView(line)
		}
		next[line] = lv
		return lv
	})
	p.prev = next
	return view
}
