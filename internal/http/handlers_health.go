package httpx

import "net/http"

// healthHandler answers readiness and liveness probes. It deliberately
// skips the JSON helpers: probes are hot paths and the body is constant.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	// A write error means the prober hung up; there is nothing to recover.
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
