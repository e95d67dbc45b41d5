package upstream

import "fmt"

// The benefits endpoints in particular have shifted their response shape over
// backend revisions: identifying fields appear at different keys and nesting
// levels. Each field is normalized through an explicit ordered list of
// extraction strategies, tried in priority order, first hit wins. The order
// is a contract inherited from the legacy frontend, not a ranking of
// correctness.

// extractStrategy attempts to pull one field out of a raw response object.
type extractStrategy func(map[string]interface{}) (string, bool)

// fieldAt reads a string-ish value at a (possibly nested) key path.
func fieldAt(path ...string) extractStrategy {
	return func(raw map[string]interface{}) (string, bool) {
		current := raw
		for i, key := range path {
			v, ok := current[key]
			if !ok {
				return "", false
			}
			if i == len(path)-1 {
				return coerceString(v)
			}
			next, ok := v.(map[string]interface{})
			if !ok {
				return "", false
			}
			current = next
		}
		return "", false
	}
}

func coerceString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	case float64:
		return fmt.Sprintf("%.0f", s), true
	default:
		return "", false
	}
}

// extract runs strategies in order and returns the first hit.
func extract(raw map[string]interface{}, strategies []extractStrategy) string {
	for _, s := range strategies {
		if v, ok := s(raw); ok {
			return v
		}
	}
	return ""
}

var (
	uuidStrategies = []extractStrategy{
		fieldAt("uuid"),
		fieldAt("id"),
		fieldAt("documento", "uuid"),
		fieldAt("documento", "id"),
		fieldAt("arquivo_uuid"),
	}
	matriculaStrategies = []extractStrategy{
		fieldAt("matricula"),
		fieldAt("funcionario", "matricula"),
		fieldAt("documento", "matricula"),
	}
	competenciaStrategies = []extractStrategy{
		fieldAt("competencia"),
		fieldAt("referencia"),
		fieldAt("documento", "competencia"),
	}
	titleStrategies = []extractStrategy{
		fieldAt("titulo"),
		fieldAt("nome"),
		fieldAt("documento", "titulo"),
	}
)

func stringField(raw map[string]interface{}, key string) (string, bool) {
	return fieldAt(key)(raw)
}

// normalizeDocumentRef maps one raw search/fetch item to a DocumentRef.
func normalizeDocumentRef(docType DocumentType, raw map[string]interface{}) DocumentRef {
	return DocumentRef{
		UUID:        extract(raw, uuidStrategies),
		Matricula:   extract(raw, matriculaStrategies),
		Competencia: extract(raw, competenciaStrategies),
		Title:       extract(raw, titleStrategies),
		Type:        string(docType),
	}
}
