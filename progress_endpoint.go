package upload

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ProgressEndpoint serves GET /upload_progress, reporting the uploaded
// and total byte counts for an in-flight upload as a JSONP callback.
type ProgressEndpoint struct {
	Registry *ProgressRegistry
}

// NewProgressEndpoint wraps registry as an http.Handler.
func NewProgressEndpoint(registry *ProgressRegistry) *ProgressEndpoint {
	return &ProgressEndpoint{Registry: registry}
}

// ServeHTTP implements §4.8: requires X-Progress-ID and callback query
// parameters, looks up the progress entry, and replies with a JSONP
// snippet the polling client evaluates as script.
func (pe *ProgressEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	progressID := r.URL.Query().Get("X-Progress-ID")
	callback := r.URL.Query().Get("callback")
	if progressID == "" || callback == "" {
		http.Error(w, "missing X-Progress-ID or callback query parameter", http.StatusBadRequest)
		return
	}

	p, ok := pe.Registry.Lookup(progressID)
	if !ok {
		http.Error(w, errors.New("unknown progress id").Error(), http.StatusBadRequest)
		return
	}

	uploaded, size := p.Snapshot()
	fmt.Fprintf(w, `%s({"uploaded": %d, "length": %d});`, callback, uploaded, size)
}
