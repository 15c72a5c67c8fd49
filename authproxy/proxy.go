package authproxy

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MaxBodyBytes bounds the request body the pipeline will buffer to compute
// ext and to replay to the downstream application service.
const MaxBodyBytes = 1 << 20 // 1 MiB

// Handler authenticates every inbound request with Pipeline and, on
// success, forwards it verbatim (method, URI, body unchanged, plus an
// injected X-Yar-Principal header) to target, streaming the response back
// unchanged. On failure it terminates the request with 401 and
// X-Yar-Auth-Failure-Detail; the application service is never contacted.
type Handler struct {
	pipeline *Pipeline
	proxy    *httputil.ReverseProxy
}

// NewHandler builds a Handler forwarding authenticated requests to target.
func NewHandler(pipeline *Pipeline, target *url.URL) *Handler {
	reverseProxy := httputil.NewSingleHostReverseProxy(target)
	logger := log.Default()
	reverseProxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host
		otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	}
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Printf("authproxy: upstream error: %v", err)
		http.Error(w, "upstream error", http.StatusBadGateway)
	}
	reverseProxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return &Handler{pipeline: pipeline, proxy: reverseProxy}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	r.Body.Close()
	if err != nil {
		w.Header().Set(HeaderFailureDetail, DetailInvalidAuthHeader)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	owner, detail, ok := h.pipeline.Authenticate(r, body)
	if !ok {
		w.Header().Set(HeaderFailureDetail, detail)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.Header.Set(HeaderPrincipal, owner)
	r.Header.Set(HeaderRequestID, uuid.NewString())
	h.proxy.ServeHTTP(w, r)
}
