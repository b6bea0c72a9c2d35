package screen

import (
	"context"
	"errors"

	"trekme/license"
)

// licenseObserver moves the machine emissions to the owner goroutine.
type licenseObserver struct {
	w *WmtsScreen
}

func (o licenseObserver) OnStatus(s license.Status) {
	o.w.scope.Post(func() { o.w.onLicenseStatus(s) })
}

func (o licenseObserver) OnDetails(d license.Details) {
	o.w.scope.Post(func() { o.w.details = &d })
}

func (o licenseObserver) OnError(err error) {
	o.w.scope.Post(func() {
		if errors.Is(err, license.ErrNotSupported) {
			o.w.cfg.View.Snackbar(MsgBillingUnsupported)
		}
	})
}

// checkLicense re-derives the license status each time the screen starts.
// The persisted proof of purchase is read first so that an unreachable
// billing service leaves it in place.
func (w *WmtsScreen) checkLicense() {
	if w.machine == nil {
		return
	}
	m := w.machine
	w.scope.Go(func(ctx context.Context) {
		m.CheckOffline(ctx)
		m.CheckStatus(ctx)
		m.FetchDetails(ctx)
	})
}

func (w *WmtsScreen) onLicenseStatus(s license.Status) {
	w.logger.Infof("license status %s", s)
	w.status = s
}

// PurchaseLicense starts the purchase flow in the background. It does
// nothing until the product details are known.
func (w *WmtsScreen) PurchaseLicense() {
	if w.machine == nil {
		return
	}
	m := w.machine
	w.scope.Go(func(ctx context.Context) {
		if err := m.Purchase(ctx); err != nil {
			w.logger.Warnf("purchase: %s", err)
		}
	})
}
