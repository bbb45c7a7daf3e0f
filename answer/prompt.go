package answer

import (
	"fmt"
	"strings"

	"github.com/hubenschmidt/legalqa/retriever"
)

const (
	// DefaultContextChars caps each passage so the model summarises rather
	// than pasting long sections back.
	DefaultContextChars = 800

	contextSeparator = "\n\n---\n\n"
)

const SystemInstructions = `
You are a Legal Assistant specializing in Indian Law.

Always follow these formatting rules:
1. Answer ONLY in Markdown.
2. Start with a 1–2 line summary.
3. Use **bold headings** for sections (e.g., **Legal Basis**, **Steps to Follow**).
4. Use numbered lists for step-by-step procedures.
5. Use bullet points for rights, conditions, or important notes.
6. Keep paragraphs short (2–3 sentences).
7. Clearly state that you are NOT a substitute for a licensed advocate.
`

// UserPrompt frames the retrieved context and the question for the model.
func UserPrompt(passages, question string) string {
	return fmt.Sprintf(`
Context (legal provisions and sections):
%s

User question:
%s

Now generate a well-structured Markdown answer following the rules above.
`, passages, question)
}

// BuildContext trims each passage, truncates it to maxChars characters and
// joins the passages with a horizontal-rule separator. maxChars <= 0 means
// DefaultContextChars.
func BuildContext(results []retriever.ScoredResult, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = truncate(strings.TrimSpace(r.Text), maxChars)
	}
	return strings.Join(parts, contextSeparator)
}

func truncate(s string, n int) string {
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i]
		}
		runes++
	}
	return s
}
