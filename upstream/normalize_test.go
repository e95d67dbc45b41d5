package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDocumentRefTopLevel(t *testing.T) {
	raw := map[string]interface{}{
		"uuid":        "doc-1",
		"matricula":   "4471",
		"competencia": "2026-07",
		"titulo":      "Holerite Julho",
	}

	ref := normalizeDocumentRef(DocumentPayslip, raw)
	assert.Equal(t, "doc-1", ref.UUID)
	assert.Equal(t, "4471", ref.Matricula)
	assert.Equal(t, "2026-07", ref.Competencia)
	assert.Equal(t, "Holerite Julho", ref.Title)
	assert.Equal(t, string(DocumentPayslip), ref.Type)
}

func TestNormalizeDocumentRefNestedFallbacks(t *testing.T) {
	// Benefits responses bury the identifying fields one level down.
	raw := map[string]interface{}{
		"documento": map[string]interface{}{
			"uuid":        "doc-2",
			"matricula":   "9001",
			"competencia": "2026-06",
		},
		"funcionario": map[string]interface{}{"matricula": "9001"},
	}

	ref := normalizeDocumentRef(DocumentBenefits, raw)
	assert.Equal(t, "doc-2", ref.UUID)
	assert.Equal(t, "9001", ref.Matricula)
	assert.Equal(t, "2026-06", ref.Competencia)
}

func TestNormalizeDocumentRefPriorityOrder(t *testing.T) {
	// When both a top-level and a nested candidate exist, the earlier
	// strategy wins. The order is the inherited contract.
	raw := map[string]interface{}{
		"uuid": "top",
		"documento": map[string]interface{}{
			"uuid": "nested",
		},
	}

	ref := normalizeDocumentRef(DocumentBenefits, raw)
	assert.Equal(t, "top", ref.UUID)
}

func TestNormalizeDocumentRefNumericIDs(t *testing.T) {
	raw := map[string]interface{}{
		"id":        float64(12345),
		"matricula": float64(4471),
	}

	ref := normalizeDocumentRef(DocumentHR, raw)
	assert.Equal(t, "12345", ref.UUID)
	assert.Equal(t, "4471", ref.Matricula)
}

func TestNormalizeDocumentRefEmptyStringsFallThrough(t *testing.T) {
	raw := map[string]interface{}{
		"uuid":         "",
		"arquivo_uuid": "fallback",
	}

	ref := normalizeDocumentRef(DocumentBenefits, raw)
	assert.Equal(t, "fallback", ref.UUID)
}
