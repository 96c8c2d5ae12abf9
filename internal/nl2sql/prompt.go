package nl2sql

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the generation prompt. The question is embedded verbatim.
func BuildPrompt(dialect, schema, question string) string {
	return fmt.Sprintf(`You are an expert SQL generator for a %s database.

The database schema is:
%s

Based on the user's question, generate *only* the single best SQL query.
Do not add any explanation, text, or markdown, just the SQL.
Question: "%s"`, dialect, schema, question)
}

// stripMarkdownSQL removes code fences the model wraps around the SQL, whether
// they enclose the whole reply or appear inside it.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	trimmed = strings.ReplaceAll(trimmed, "```sql", "")
	trimmed = strings.ReplaceAll(trimmed, "```", "")
	return strings.TrimSpace(trimmed)
}
