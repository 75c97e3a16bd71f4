package pastagem

import (
	"net/http"
	"net/url"
	"time"
)

// RequestOption overrides transport settings for a single FetchReport call.
// Options are applied over the client's base configuration.
type RequestOption func(*requestOptions)

type requestOptions struct {
	header  http.Header
	query   url.Values
	timeout time.Duration
	proxy   *url.URL
	doer    Doer
}

// WithHeader sets a request header, replacing any default with the same name.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.header.Add(key, value)
	}
}

// WithTimeout bounds the whole call, including reading the body.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// WithProxy routes the call through the given proxy.
func WithProxy(proxy *url.URL) RequestOption {
	return func(o *requestOptions) {
		o.proxy = proxy
	}
}

// WithQuery adds query parameters. file, filter and region always come from
// the search request: values given here for them are dropped, and region is
// never sent for layers that do not take it.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.query.Add(key, value)
	}
}

// WithDoer sends the call through d instead of the client's http.Client.
// WithProxy is ignored when a Doer is supplied.
func WithDoer(d Doer) RequestOption {
	return func(o *requestOptions) {
		o.doer = d
	}
}

// resolveDoer picks the Doer for a call, deriving a proxied client from base
// when needed.
func (o *requestOptions) resolveDoer(base *http.Client) Doer {
	if o.doer != nil {
		return o.doer
	}
	if o.proxy == nil {
		return base
	}

	var transport *http.Transport
	if t, ok := base.Transport.(*http.Transport); ok && t != nil {
		transport = t.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	transport.Proxy = http.ProxyURL(o.proxy)

	proxied := *base
	proxied.Transport = transport
	return &proxied
}
