package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100

	// selfAlias is the reserved resource identifier resolving to the
	// caller's own user record.
	selfAlias = "me"
)

type contextKey string

const (
	contextIdentityKey contextKey = "identity"
	contextUserKey     contextKey = "user"
)

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResultResponse carries a human-readable success message.
type ResultResponse struct {
	Result string `json:"result"`
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func subjectFromToken(subject string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(subject))
	if err != nil || parsed < 1 {
		return 0, errors.New("invalid subject")
	}
	return parsed, nil
}

func remoteIP(r *http.Request) string {
	// chi's RealIP middleware already rewrote RemoteAddr from the
	// reverse-proxy headers when present, so the value may be a bare
	// address (IPv4 or IPv6) or a host:port pair.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	host := strings.Trim(r.RemoteAddr, "[]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
