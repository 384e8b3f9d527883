package gateway

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boki-faas/boki/internal/metrics"
)

// HTTPServer exposes POST /function/<func_name>. The request body is
// the function input; the response body is the function's output.
type HTTPServer struct {
	dispatcher *Dispatcher
	nextClient atomic.Uint64
}

// NewHTTPServer builds an HTTP handler dispatching through d.
func NewHTTPServer(d *Dispatcher) *HTTPServer {
	return &HTTPServer{dispatcher: d}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/function/", s.handleFunction)
	mux.Handle("/metrics", promhttp.Handler())
	return metrics.HTTPMiddleware(mux)
}

func (s *HTTPServer) handleFunction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	funcName := strings.TrimPrefix(r.URL.Path, "/function/")
	if funcName == "" || strings.Contains(funcName, "/") {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	clientID := uint16(s.nextClient.Add(1))

	type outcome struct {
		result CallResult
	}
	done := make(chan outcome, 1)

	closeNotify := r.Context().Done()
	fullCallID, err := s.dispatcher.Submit(funcName, "", body, clientID, false, func(result CallResult) {
		done <- outcome{result: result}
	})
	if err != nil {
		http.NotFound(w, r)
		return
	}

	select {
	case o := <-done:
		writeResult(w, o.result)
	case <-closeNotify:
		s.dispatcher.Discard(fullCallID)
	}
}

func writeResult(w http.ResponseWriter, result CallResult) {
	switch result.Outcome {
	case OutcomeComplete:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Payload)
	case OutcomeFailed:
		http.Error(w, "engine failure", http.StatusBadGateway)
	case OutcomeTimeout:
		http.Error(w, "timeout", http.StatusGatewayTimeout)
	default:
		http.Error(w, "discarded", http.StatusInternalServerError)
	}
}
