package gateway

import "strings"

// DefaultTransactionTypes is a starting table covering the URL-shortener
// domain's own routes. Callers building a gateway for a different domain
// supply their own table via Options.TransactionTypes.
var DefaultTransactionTypes = []TransactionTypeRule{
	{Method: "POST", Pattern: "/links", TransactionType: "create-link"},
	{Method: "GET", Pattern: "/links/:code", TransactionType: "resolve-link"},
	{Method: "DELETE", Pattern: "/links/:code", TransactionType: "delete-link"},
	{Method: "GET", Pattern: "/links", TransactionType: "list-links"},
}

// TransactionTypeRule is one entry in the lookup table.
type TransactionTypeRule struct {
	Method          string
	Pattern         string
	TransactionType string
}

// ResolveTransactionType looks up method+path against rules. The lookup is
// deterministic and side-effect free. On no match it falls back to
// "<method>-<top-level-path>".
func ResolveTransactionType(rules []TransactionTypeRule, method, path string) string {
	for _, r := range rules {
		if !strings.EqualFold(r.Method, method) {
			continue
		}
		if patternMatches(r.Pattern, path) {
			return r.TransactionType
		}
	}
	return strings.ToLower(method) + "-" + topLevelSegment(path)
}

// patternMatches supports ":param" wildcard segments, matching Echo's
// route style (":id", ":code").
func patternMatches(pattern, path string) bool {
	pSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	vSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(pSegs) != len(vSegs) {
		return false
	}
	for i, seg := range pSegs {
		if strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != vSegs[i] {
			return false
		}
	}
	return true
}

func topLevelSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "root"
	}
	parts := strings.SplitN(trimmed, "/", 2)
	return parts[0]
}
