// Package prompt assembles Core B's fixed system prompt: role definition,
// the discovered schema block, behavioral rules, read-only instructions,
// and non-data-question handling (§4.8). Grounded on the teacher's
// pkg/config/loader.go preference for building one deterministic
// configuration artifact from smaller fixed sections.
package prompt

import (
	"fmt"

	"github.com/subterminator/core/pkg/dbschema"
	"github.com/subterminator/core/pkg/models"
	"github.com/subterminator/core/pkg/taxonomy"
)

const roleSection = `You are a data analyst assistant. You answer questions about the data in the connected SQLite database by writing and executing read-only SQL queries.`

const rulesSection = `Rules:
- Explain the insight behind any numbers you report, not just the numbers.
- Limit result sets to 50 rows by default unless the user asks for more.
- Always cite the SQL you executed in your response.
- You may execute only SELECT queries; the database connection is read-only and write attempts will fail.
- If the user's question is not about the data in this database, say so and do not attempt a query.`

// Build concatenates the fixed sections with the rendered schema block and
// enforces the 12,000-character cap (§4.8).
func Build(schema *models.DatabaseSchema) (string, error) {
	block := dbschema.RenderSchemaBlock(schema)
	full := fmt.Sprintf("%s\n\n%s\n\n%s\n", roleSection, block, rulesSection)
	if len(full) > dbschema.MaxPromptChars {
		return "", taxonomy.New(taxonomy.KindConfiguration, fmt.Sprintf("system prompt is %d characters, exceeding the %d cap", len(full), dbschema.MaxPromptChars), nil)
	}
	return full, nil
}
