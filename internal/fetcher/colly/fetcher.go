// Package collyfetcher implements the plain HTTP Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements stock.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is filled by the collector callbacks during one Visit.
type fetchState struct {
	result stock.FetchResult
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET for target. Non-2xx responses, transport
// failures and empty bodies are reported as *stock.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, target stock.Target) (stock.FetchResult, error) {
	state := &fetchState{}
	collector := f.buildCollector(ctx, target, time.Now(), state)

	if err := f.runCollector(ctx, collector, target.URL, state); err != nil {
		return stock.FetchResult{}, err
	}
	return state.result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	target stock.Target,
	start time.Time,
	state *fetchState,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// The same product URL is polled every cycle.
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.Context = ctx
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	f.configureCollectorHooks(collector, target, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	target stock.Target,
	start time.Time,
	state *fetchState,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(target, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		state.result = stock.FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Kind:       contentKind(target, r.Headers),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return stock.ClassifyTransportError(url, ctx.Err())
	case err := <-done:
		return classify(url, err, state)
	}
}

func classify(url string, visitErr error, state *fetchState) error {
	if state.status >= http.StatusBadRequest || (state.status != 0 && state.status < http.StatusOK) {
		return &stock.FetchError{Kind: stock.FetchUpstreamHTTP, Status: state.status, URL: url}
	}
	if visitErr == nil {
		visitErr = state.err
	}
	if visitErr != nil {
		return stock.ClassifyTransportError(url, visitErr)
	}
	if len(state.result.Body) == 0 {
		return &stock.FetchError{Kind: stock.FetchContentUnavailable, Status: state.status, URL: url}
	}
	return nil
}

func copyHeaders(target stock.Target, r *colly.Request) {
	for key, value := range target.Headers {
		r.Headers.Set(key, value)
	}
}

// contentKind returns the configured kind, falling back to the response
// media type when the target leaves it unset.
func contentKind(target stock.Target, headers *http.Header) stock.ContentKind {
	if target.Kind != "" {
		return target.Kind
	}
	if headers != nil {
		media, _, err := mime.ParseMediaType(headers.Get("Content-Type"))
		if err == nil && (media == "application/json" || media == "application/ld+json") {
			return stock.StructuredJSON
		}
	}
	return stock.RenderedDOM
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
