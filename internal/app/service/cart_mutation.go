package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ikkim/storefront-cart/internal/app/model"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
)

// PendingLinePrefix marks optimistic lines that the server has not assigned an ID yet.
const PendingLinePrefix = "pending:"

// guestMutation applies op to the local store. The store is re-read first so
// it stays the source of truth in guest mode.
func (e *CartEngine) guestMutation(op *operation) opResult {
	base := model.ReuseLines(e.Cart(), e.local.Load(op.ctx))

	next, err := e.applyGuest(base, op)
	if err != nil {
		e.log.Debug("Guest cart operation rejected", map[string]interface{}{
			"op":    op.kind.String(),
			"error": err.Error(),
		})
		e.update(func() {
			e.cart = base
			e.lastErr = err
		})
		return opResult{cart: base, err: err}
	}

	if op.kind == opClear {
		e.local.Clear(op.ctx)
	} else {
		e.local.Save(op.ctx, next)
	}

	e.update(func() {
		e.cart = next
		e.lastErr = nil
	})
	return opResult{cart: next}
}

func (e *CartEngine) applyGuest(base *model.Cart, op *operation) (*model.Cart, error) {
	now := e.now()

	switch op.kind {
	case opAdd:
		p := op.product
		if !p.InStock() {
			return nil, apperrors.OutOfStock("add", p.ID, "product is out of stock")
		}
		existing := base.Line(p.ID)
		current := 0
		if existing != nil {
			current = existing.Quantity
		}
		quantity := model.ClampQuantity(current+op.quantity, p.Stock)
		if existing != nil && quantity <= existing.Quantity {
			return nil, apperrors.OutOfStock("add", p.ID, fmt.Sprintf("only %d in stock", p.Stock))
		}

		line := &model.CartLine{
			ID:            p.ID,
			ProductID:     p.ID,
			Quantity:      quantity,
			UnitPrice:     p.Price,
			DiscountPrice: p.ActiveDiscount(p.Price),
			Product:       p,
			AddedAt:       now,
			UpdatedAt:     now,
		}
		if existing != nil {
			line.AddedAt = existing.AddedAt
		}
		return base.WithLine(line), nil

	case opUpdate:
		line := base.LineByID(op.lineID)
		if line == nil {
			return nil, apperrors.NotFound("update", op.lineID)
		}
		quantity := op.quantity
		if line.Product.Stock > 0 {
			quantity = model.ClampQuantity(quantity, line.Product.Stock)
		}
		return base.WithQuantity(line.ProductID, quantity, now), nil

	case opRemove:
		line := base.LineByID(op.lineID)
		if line == nil {
			return nil, apperrors.NotFound("remove", op.lineID)
		}
		return base.WithoutProduct(line.ProductID), nil

	case opClear:
		return base.Emptied(), nil
	}
	return nil, fmt.Errorf("unsupported guest operation %s", op.kind)
}

// remoteMutation applies op optimistically, sends it to the server and either
// commits the server cart or rolls back to the pre-operation cart.
func (e *CartEngine) remoteMutation(op *operation) opResult {
	before := e.Cart()
	optimistic := e.applyOptimistic(before, op)

	e.update(func() {
		e.cart = optimistic
		e.loading = true
		e.lastErr = nil
	})

	ctx, cancel := e.withTimeout(op.ctx)
	serverCart, err := e.callRemote(ctx, op)
	cancel()

	if err == nil {
		next := model.ReuseLines(before, serverCart)
		e.update(func() {
			e.cart = next
			e.loading = false
		})
		return opResult{cart: next}
	}

	err = asTaxonomy(op.kind.String(), err)
	e.log.Warn("Cart operation failed, rolling back", map[string]interface{}{
		"op":    op.kind.String(),
		"error": err.Error(),
	})
	e.update(func() {
		e.cart = before
		e.loading = false
		e.lastErr = err
	})

	switch {
	case apperrors.IsAuth(err):
		return e.replayAsGuest(op, before, err)
	case apperrors.IsNotFound(err):
		if refreshed, refreshErr := e.reload(op.ctx); refreshErr == nil {
			return opResult{cart: refreshed, err: err}
		}
	}
	return opResult{cart: before, err: err}
}

func (e *CartEngine) applyOptimistic(before *model.Cart, op *operation) *model.Cart {
	now := e.now()

	switch op.kind {
	case opAdd:
		p := op.product
		if existing := before.Line(p.ID); existing != nil {
			updated := *existing
			updated.Quantity += op.quantity
			updated.UpdatedAt = now
			return before.WithLine(&updated)
		}
		return before.WithLine(&model.CartLine{
			ID:            PendingLinePrefix + p.ID,
			ProductID:     p.ID,
			Quantity:      op.quantity,
			UnitPrice:     p.Price,
			DiscountPrice: p.ActiveDiscount(p.Price),
			Product:       p,
			AddedAt:       now,
			UpdatedAt:     now,
		})

	case opUpdate:
		if line := before.LineByID(op.lineID); line != nil {
			return before.WithQuantity(line.ProductID, op.quantity, now)
		}

	case opRemove:
		if line := before.LineByID(op.lineID); line != nil {
			return before.WithoutProduct(line.ProductID)
		}

	case opClear:
		return before.Emptied()
	}
	// unknown line: the server decides
	return before
}

func (e *CartEngine) callRemote(ctx context.Context, op *operation) (*model.Cart, error) {
	var (
		cart *model.Cart
		err  error
	)
	switch op.kind {
	case opAdd:
		cart, err = e.remote.AddToCart(ctx, op.product.ID, op.quantity)
	case opUpdate:
		cart, err = e.remote.UpdateQuantity(ctx, op.lineID, op.quantity)
	case opRemove:
		cart, err = e.remote.RemoveItem(ctx, op.lineID)
	case opClear:
		cart, err = e.remote.ClearCart(ctx)
	default:
		return nil, fmt.Errorf("unsupported remote operation %s", op.kind)
	}
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperrors.Network(op.kind.String(), errors.New("empty cart response"))
	}
	return cart, nil
}

// replayAsGuest handles an invalidated session: the engine drops to guest
// mode and the failed operation is applied to the local store instead. The
// caller gets the replayed cart together with the auth error.
func (e *CartEngine) replayAsGuest(op *operation, before *model.Cart, authErr error) opResult {
	e.forceGuest(op.ctx, authErr)

	replay := *op
	if op.kind == opUpdate || op.kind == opRemove {
		line := before.LineByID(op.lineID)
		if line == nil {
			return opResult{cart: e.Cart(), err: authErr}
		}
		// guest lines are keyed by product
		replay.lineID = line.ProductID
	}

	res := e.guestMutation(&replay)
	if res.err != nil {
		e.log.Warn("Guest replay after session loss failed", map[string]interface{}{
			"op":    op.kind.String(),
			"error": res.err.Error(),
		})
	}
	e.update(func() {
		e.lastErr = authErr
	})
	return opResult{cart: res.cart, err: authErr}
}

// forceGuest switches to guest mode with the local cart after the session
// was found to be invalid.
func (e *CartEngine) forceGuest(ctx context.Context, err error) {
	guest := e.local.Load(ctx)
	e.update(func() {
		e.state = StateGuest
		e.user = nil
		e.cart = guest
		e.loading = false
		e.lastErr = err
	})
	e.log.Warn("Session invalidated, switched to guest cart", map[string]interface{}{
		"lines": len(guest.Lines),
		"error": err.Error(),
	})
}

// reload fetches the server cart and installs it without touching lastErr.
func (e *CartEngine) reload(ctx context.Context) (*model.Cart, error) {
	fetchCtx, cancel := e.withTimeout(ctx)
	serverCart, err := e.remote.GetCart(fetchCtx)
	cancel()
	if err == nil && serverCart == nil {
		err = errors.New("empty cart response")
	}
	if err != nil {
		return nil, asTaxonomy("fetch", err)
	}

	var next *model.Cart
	e.update(func() {
		next = model.ReuseLines(e.cart, serverCart)
		e.cart = next
		e.loading = false
	})
	return next, nil
}

// asTaxonomy makes sure every error leaving the engine is a cart taxonomy error.
func asTaxonomy(op string, err error) error {
	if _, ok := apperrors.AsCartError(err); ok {
		return err
	}
	return apperrors.Network(op, err)
}
