package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/models"
)

func TestBuildIncludesSchemaAndRules(t *testing.T) {
	schema := &models.DatabaseSchema{Tables: []models.TableSchema{
		{Name: "customers", Columns: []models.ColumnSchema{{Name: "id", Type: "INTEGER", PrimaryKey: true}}},
	}}
	text, err := Build(schema)
	require.NoError(t, err)
	assert.Contains(t, text, "customers")
	assert.Contains(t, text, "read-only")
	assert.Contains(t, text, "50 rows")
}

func TestBuildRejectsOversizedPrompt(t *testing.T) {
	var cols []models.ColumnSchema
	for i := 0; i < 2000; i++ {
		cols = append(cols, models.ColumnSchema{Name: "a_very_long_column_name_to_blow_the_budget", Type: "TEXT"})
	}
	schema := &models.DatabaseSchema{Tables: []models.TableSchema{{Name: "huge", Columns: cols}}}
	_, err := Build(schema)
	assert.Error(t, err)
}
