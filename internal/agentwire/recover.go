package agentwire

import (
	"regexp"
	"strings"
)

// Some platform endpoints return a repr-style rendering of the response
// object (`RunResponse(content='...', ...)`) instead of structured JSON.
// The extraction below preserves the observed fallback behavior; it is
// non-authoritative and becomes dead weight once the backend emits proper
// JSON for those endpoints.
var (
	// stringifiedSingle matches content='...' with escaped quotes allowed.
	stringifiedSingle = regexp.MustCompile(`content='((?:[^'\\]|\\.)*)'`)
	// stringifiedDouble matches content="..." with escaped quotes allowed.
	stringifiedDouble = regexp.MustCompile(`content="((?:[^"\\]|\\.)*)"`)
)

// RecoverStringified extracts the content field from a stringified response
// payload, trying the single-quote variant first, then double quotes.
func RecoverStringified(body string) (string, bool) {
	if match := stringifiedSingle.FindStringSubmatch(body); match != nil {
		return unescapeStringified(match[1]), true
	}
	if match := stringifiedDouble.FindStringSubmatch(body); match != nil {
		return unescapeStringified(match[1]), true
	}
	return "", false
}

// unescapeStringified undoes the repr-level escapes present in the blob.
func unescapeStringified(value string) string {
	replacer := strings.NewReplacer(
		`\'`, `'`,
		`\"`, `"`,
		`\n`, "\n",
		`\t`, "\t",
		`\\`, `\`,
	)
	return replacer.Replace(value)
}
