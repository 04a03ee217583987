package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	maxSymbolLen  = 15
	maxCompanyLen = 120
)

// NormalizeSymbol lower-cases a ticker symbol and rejects anything outside
// the characters real listings use.
func NormalizeSymbol(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || len(s) > maxSymbolLen {
		return "", false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '^' || r == '=':
		default:
			return "", false
		}
	}
	return s, true
}

// NormalizeCompany folds a free-text company name into a cache key:
// lower case, single spaces, no surrounding blanks.
func NormalizeCompany(raw string) (string, bool) {
	s := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if s == "" || len(s) > maxCompanyLen {
		return "", false
	}
	return s, true
}

func ResearchKey(language, company string) string {
	return language + ":" + company
}

func wantsRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
