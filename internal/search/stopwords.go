package search

import "strings"

// queryStopWords are filler terms stripped from the keyword branch so
// conversational queries ("what is the file about the parser") still
// match on their content terms. The semantic branch keeps the full
// query.
var queryStopWords = map[string]bool{
	"the": true, "a": true, "an": true,
	"is": true, "are": true, "was": true, "were": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"did": true, "does": true, "do": true,
	"can": true, "could": true,
	"i": true, "need": true, "find": true, "me": true, "show": true,
	"about": true, "for": true,
}

// stripStopWords removes stop words from the query. If everything is a
// stop word the original query is returned unchanged.
func stripStopWords(query string) string {
	fields := strings.Fields(query)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if !queryStopWords[strings.ToLower(f)] {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return query
	}
	return strings.Join(kept, " ")
}

// queryTerms returns the lowercase content terms of a query, for the
// filename and summary boost.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(stripStopWords(query)))
	return fields
}
