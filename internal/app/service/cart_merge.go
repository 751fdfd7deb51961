package service

import (
	"context"

	"github.com/ikkim/storefront-cart/internal/app/model"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
)

// MergeReport describes how a guest cart was folded into the server cart.
type MergeReport struct {
	Merged  []MergedLine
	Skipped []SkippedLine
	// RefreshErr is set when the final server read failed and the last
	// sweep response was used instead.
	RefreshErr error
}

type MergedLine struct {
	ProductID string
	Quantity  int
}

// SkippedLine is a guest line the server refused; it is not retried.
type SkippedLine struct {
	ProductID string
	Quantity  int
	Err       error
}

// Complete reports whether every guest line reached the server.
func (r *MergeReport) Complete() bool {
	return r != nil && len(r.Skipped) == 0 && r.RefreshErr == nil
}

// SessionChecker reports the user behind the current session, or nil when
// there is none.
type SessionChecker interface {
	CheckSession(ctx context.Context) (*model.SessionUser, error)
}

// RestoreSession logs the engine in when checker reports an active session.
// Without one the engine stays in guest mode.
func (e *CartEngine) RestoreSession(ctx context.Context, checker SessionChecker) (*model.Cart, *MergeReport, error) {
	user, err := checker.CheckSession(ctx)
	if err != nil {
		e.log.Warn("Session check failed, staying in guest mode", map[string]interface{}{
			"error": err.Error(),
		})
		return e.Cart(), nil, err
	}
	if user == nil {
		return e.Cart(), nil, nil
	}
	return e.Login(ctx, user)
}

// login runs the merge sweep: every guest line is added to the server cart in
// order, the local store is cleared and the server cart is read back.
func (e *CartEngine) login(op *operation) opResult {
	guest := e.local.Load(op.ctx)
	e.update(func() {
		e.state = StateAuthenticating
		e.user = op.user
		e.cart = model.ReuseLines(e.cart, guest)
		e.loading = true
		e.lastErr = nil
	})

	e.log.Info("Merging guest cart", map[string]interface{}{
		"user_id": op.user.ID,
		"lines":   len(guest.Lines),
	})

	report := &MergeReport{}
	merged := make(map[string]bool, len(guest.Lines))
	var last *model.Cart

	for _, line := range guest.Lines {
		ctx, cancel := e.withTimeout(op.ctx)
		serverCart, err := e.remote.AddToCart(ctx, line.ProductID, line.Quantity)
		cancel()

		if err != nil {
			err = asTaxonomy("merge", err)
			if apperrors.IsAuth(err) {
				return e.abortMerge(op, guest, merged, report, err)
			}
			e.log.Warn("Guest cart line skipped during merge", map[string]interface{}{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
				"error":      err.Error(),
			})
			report.Skipped = append(report.Skipped, SkippedLine{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Err:       err,
			})
			continue
		}

		merged[line.ProductID] = true
		report.Merged = append(report.Merged, MergedLine{ProductID: line.ProductID, Quantity: line.Quantity})
		if serverCart != nil {
			last = serverCart
		}
	}

	e.local.Clear(op.ctx)

	ctx, cancel := e.withTimeout(op.ctx)
	final, err := e.remote.GetCart(ctx)
	cancel()
	if err == nil && final == nil {
		err = apperrors.Network("fetch", nil)
	}
	if err != nil {
		err = asTaxonomy("fetch", err)
		if apperrors.IsAuth(err) {
			e.forceGuest(op.ctx, err)
			return opResult{cart: e.Cart(), merge: report, err: err}
		}
		e.log.Warn("Cart re-read after merge failed, using last merge response", map[string]interface{}{
			"error": err.Error(),
		})
		report.RefreshErr = err
		final = last
		if final == nil {
			final = &model.Cart{Mode: model.CartModeAuthenticated, UserID: op.user.ID, Lines: []*model.CartLine{}}
		}
	}

	var next *model.Cart
	e.update(func() {
		next = model.ReuseLines(e.cart, final)
		e.state = StateAuthenticated
		e.cart = next
		e.loading = false
		e.lastErr = report.RefreshErr
	})

	e.log.Info("Guest cart merged", map[string]interface{}{
		"user_id": op.user.ID,
		"merged":  len(report.Merged),
		"skipped": len(report.Skipped),
	})
	return opResult{cart: next, merge: report}
}

// abortMerge handles an auth failure mid-sweep. Lines already on the server
// are removed from the local store so they are not merged twice; the rest
// stay for the next login.
func (e *CartEngine) abortMerge(op *operation, guest *model.Cart, merged map[string]bool, report *MergeReport, err error) opResult {
	remaining := guest
	for productID := range merged {
		remaining = remaining.WithoutProduct(productID)
	}
	if len(merged) > 0 {
		e.local.Save(op.ctx, remaining)
	}

	e.update(func() {
		e.state = StateGuest
		e.user = nil
		e.cart = remaining
		e.loading = false
		e.lastErr = err
	})

	e.log.Warn("Merge aborted, session invalid", map[string]interface{}{
		"merged":    len(report.Merged),
		"remaining": len(remaining.Lines),
	})
	return opResult{cart: remaining, merge: report, err: err}
}

func (e *CartEngine) logout(op *operation) opResult {
	guest := e.local.Load(op.ctx)
	e.update(func() {
		e.state = StateGuest
		e.user = nil
		e.cart = guest
		e.loading = false
		e.lastErr = nil
	})
	e.log.Info("Logged out, guest cart restored", map[string]interface{}{
		"lines": len(guest.Lines),
	})
	return opResult{cart: guest}
}

func (e *CartEngine) refresh(op *operation) opResult {
	if e.State() != StateAuthenticated {
		guest := e.local.Load(op.ctx)
		var next *model.Cart
		e.update(func() {
			next = model.ReuseLines(e.cart, guest)
			e.cart = next
			e.lastErr = nil
		})
		return opResult{cart: next}
	}

	e.update(func() {
		e.loading = true
	})

	next, err := e.reload(op.ctx)
	if err != nil {
		if apperrors.IsAuth(err) {
			e.forceGuest(op.ctx, err)
			return opResult{cart: e.Cart(), err: err}
		}
		e.update(func() {
			e.loading = false
			e.lastErr = err
		})
		return opResult{cart: e.Cart(), err: err}
	}

	e.update(func() {
		e.lastErr = nil
	})
	return opResult{cart: next}
}
