// Package push accepts readings pushed by sensors over HTTP.
package push

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirides/sensor-relay"
)

const (
	Path         = "/api/sensor"
	maxBodyBytes = 1 << 20
)

type Options struct {
	// APIKey, when set, must be sent in the X-API-Key header.
	APIKey string
	// RatePerSec limits requests per client; zero disables limiting.
	RatePerSec float64
	Burst      int
	TrustProxy bool
}

type Handler struct {
	accept     relay.Acceptor
	apiKey     string
	trustProxy bool
	limiter    *clientLimiter
	logger     *slog.Logger
	now        func() time.Time
}

func NewHandler(accept relay.Acceptor, logger *slog.Logger, opts Options) *Handler {
	h := &Handler{
		accept:     accept,
		apiKey:     opts.APIKey,
		trustProxy: opts.TrustProxy,
		logger:     logger.With(slog.String("category", "push")),
		now:        time.Now,
	}
	if opts.RatePerSec > 0 {
		h.limiter = newClientLimiter(opts.RatePerSec, opts.Burst)
	}
	return h
}

func (h *Handler) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		response.Header().Set("Allow", http.MethodPost)
		writeError(response, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	client := clientIdentity(request, h.trustProxy)
	if h.limiter != nil && !h.limiter.Allow(client, h.now()) {
		h.logger.Debug("rate limited", slog.String("client", client))
		writeError(response, http.StatusTooManyRequests, "too many requests")
		return
	}

	if h.apiKey != "" {
		key := request.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			writeError(response, http.StatusUnauthorized, "invalid api key")
			return
		}
	}

	request.Body = http.MaxBytesReader(response, request.Body, maxBodyBytes)
	payload, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(response, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.accept.Accept("http:"+client, payload); err != nil {
		writeError(response, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(response, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(response http.ResponseWriter, statusCode int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	_ = json.NewEncoder(response).Encode(payload)
}

func writeError(response http.ResponseWriter, statusCode int, message string) {
	writeJSON(response, statusCode, map[string]string{"error": message})
}
