// Package fetcher routes targets to the HTTP or browser fetcher.
package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/metrics"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Promoter decides whether a plain HTTP result must be re-fetched in a browser.
type Promoter interface {
	ShouldPromote(stock.FetchResult) bool
}

// Router implements stock.Fetcher by dispatching on Target.Fetch.
type Router struct {
	http     stock.Fetcher
	browser  stock.Fetcher
	promoter Promoter
	logger   *zap.Logger
}

// NewRouter builds a Router. browser may be nil when headless is disabled;
// promoter may be nil to disable auto promotion.
func NewRouter(http, browser stock.Fetcher, promoter Promoter, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{http: http, browser: browser, promoter: promoter, logger: logger}
}

// Fetch picks a fetcher for the target's mode.
func (r *Router) Fetch(ctx context.Context, target stock.Target) (stock.FetchResult, error) {
	switch target.Fetch {
	case stock.FetchBrowser:
		if r.browser == nil {
			return stock.FetchResult{}, &stock.FetchError{
				Kind: stock.FetchUnsupported,
				URL:  target.URL,
				Err:  fmt.Errorf("target %s requires a browser", target.Identity()),
			}
		}
		return r.browser.Fetch(ctx, target)
	case stock.FetchAuto:
		return r.fetchAuto(ctx, target)
	default:
		return r.http.Fetch(ctx, target)
	}
}

func (r *Router) fetchAuto(ctx context.Context, target stock.Target) (stock.FetchResult, error) {
	result, err := r.http.Fetch(ctx, target)
	if err != nil {
		return result, err
	}
	if r.browser == nil || r.promoter == nil || !r.promoter.ShouldPromote(result) {
		return result, nil
	}
	metrics.ObserveHeadlessPromotion()
	r.logger.Debug("promoting to headless", zap.String("target", target.Identity()))

	rendered, err := r.browser.Fetch(ctx, target)
	if err != nil {
		r.logger.Warn("headless promotion failed, using http result",
			zap.String("target", target.Identity()),
			zap.Error(err),
		)
		return result, nil
	}
	return rendered, nil
}
