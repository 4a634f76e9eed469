package handler

import (
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const maxBodyBytes = 1 << 20

// ServeHTTP lets the dev server mount the webhook on a net/http mux.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	req := events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               map[string]string{},
		QueryStringParameters: map[string]string{},
		Body:                  string(body),
	}
	for k := range r.Header {
		req.Headers[k] = r.Header.Get(k)
	}
	for k := range r.URL.Query() {
		req.QueryStringParameters[k] = r.URL.Query().Get(k)
	}

	resp, err := h.Handle(r.Context(), req)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
