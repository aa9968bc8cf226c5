package propagate

import (
	"net/http"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// Transport is an http.RoundTripper that injects the context header set
// from the diagnostic scope bound to the request's context onto every
// outbound request. The caller's service name is always stamped onto
// X-Service-Name, and fields absent from the bound scope are omitted
// rather than emitted empty. tracestate, when present, is forwarded
// verbatim and never rewritten.
type Transport struct {
	ServiceName string
	Base        http.RoundTripper
}

// NewTransport wraps base (http.DefaultTransport if nil) with scope
// injection for calls made as serviceName.
func NewTransport(serviceName string, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{ServiceName: serviceName, Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	scope, ok := FromContext(req.Context())
	if !ok {
		return t.Base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	ctxmodel.EncodeHeaders(out.Header, scope.Trace, scope.Standard)
	// X-Service-Name always names the caller; the receiver derives its own
	// origin_service from it.
	if t.ServiceName != "" {
		out.Header.Set(ctxmodel.HeaderServiceName, t.ServiceName)
	}

	return t.Base.RoundTrip(out)
}
