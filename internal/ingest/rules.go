package ingest

import "regexp"

// Rule is one named way of pulling a candidate value out of a record.
type Rule struct {
	Name    string
	Extract func(Record) (any, bool)
}

// Rules is an ordered fallback chain for one canonical field.
type Rules []Rule

// Resolve returns the first non-nil value any rule yields.
func (rules Rules) Resolve(r Record) (any, bool) {
	if r == nil {
		return nil, false
	}
	for _, rule := range rules {
		if v, ok := rule.Extract(r); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Value is Resolve without the presence flag.
func (rules Rules) Value(r Record) any {
	v, _ := rules.Resolve(r)
	return v
}

// Exact matches keys verbatim, first candidate first.
func Exact(keys ...string) Rule {
	return Rule{Name: "exact", Extract: func(r Record) (any, bool) {
		for _, k := range keys {
			if v, ok := r[k]; ok {
				return v, true
			}
		}
		return nil, false
	}}
}

// Normalized matches any record key whose normalized form equals a
// candidate's normalized form.
func Normalized(keys ...string) Rule {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[NormalizeFieldName(k)] = true
	}
	return Rule{Name: "normalized", Extract: func(r Record) (any, bool) {
		for _, k := range r.keys() {
			if want[NormalizeFieldName(k)] {
				return r[k], true
			}
		}
		return nil, false
	}}
}

// Pattern tries each expression, in order, against every normalized record
// key.
func Pattern(patterns ...string) Rule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return Rule{Name: "pattern", Extract: func(r Record) (any, bool) {
		keys := r.keys()
		for _, rx := range compiled {
			for _, k := range keys {
				if rx.MatchString(NormalizeFieldName(k)) {
					return r[k], true
				}
			}
		}
		return nil, false
	}}
}

func field(keys []string, patterns ...string) Rules {
	rules := Rules{Exact(keys...), Normalized(keys...)}
	if len(patterns) > 0 {
		rules = append(rules, Pattern(patterns...))
	}
	return rules
}

var (
	idRules       = field([]string{"id", "uuid", "ID", "Id"})
	codeRules     = field([]string{"code", "codigo", "código"}, `^code$`, `codigo`)
	titleRules    = field([]string{"title", "titulo", "título", "enunciado", "nombre", "name", "label", "agrupacion", "agrupación"}, `enunciado`, `titulo`, `title`, `nombre`, `label`, `agrup`)
	typeRules     = field([]string{"type", "tipo", "kind"}, `^type$`, `^tipo$`, `kind`)
	parentRules   = field([]string{"parentId", "parent_id", "padre", "padreId", "id_padre", "parent"}, `parent`, `padre`)
	descRules     = field([]string{"desc", "descripcion", "descripción", "ayuda", "help"})
	rowDescRules  = field([]string{"desc", "descripcion", "descripción", "observaciones", "obs"})
	viRules       = field([]string{"viKey", "vi", "vi_key", "nivel_importancia", "importancia"})
	vcRules       = field([]string{"vcKey", "vc", "vc_key", "aplica"})
	weightRules   = field([]string{"weight", "peso"})
	requiredRules = field([]string{"required", "requerido"})
	activeRules   = field([]string{"active", "activo"})
	orderRules    = field([]string{"order", "orden"})
	notesRules    = field([]string{"observaciones", "obs"})
	altTitleRules = field([]string{"agrupacion_es", "agrupación_es", "agrupacion_español"})
	childrenRules = field([]string{"children", "hijos", "nodes", "items"}, `^children$`, `^hijos$`, `^nodes$`, `^items$`)
)

// payload-level container keys, tried in order
var (
	flatKeys      = []string{"nodes", "nodos", "items"}
	treeKeys      = []string{"tree", "estructura", "structure"}
	rowsKeys      = []string{"rows", "checklist", "data"}
	columnsKeys   = []string{"columns", "columnas", "cols"}
	scalesKeys    = []string{"scales", "escalas"}
	metaKeys      = []string{"meta", "form", "datos", "metadata"}
	introKeys     = []string{"intro", "introduccion"}
	questionsKeys = []string{"questions", "preguntas"}
	priorityKeys  = []string{"priorityLevels", "priority_levels", "prioridades"}
	selectedRules = Rules{Exact("selectedId", "selected_id", "seleccion")}
)

// firstList returns the first candidate key holding a JSON array.
func firstList(r Record, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if list, ok := r[k].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

// firstRecord returns the first candidate key holding a JSON object.
func firstRecord(r Record, keys ...string) (Record, bool) {
	for _, k := range keys {
		if rec, ok := asRecord(r[k]); ok {
			return rec, true
		}
	}
	return nil, false
}

// column definition fields
var (
	columnLabelRules    = field([]string{"label", "nombre", "name", "titulo", "título"})
	columnKeyRules      = field([]string{"key", "clave", "campo"})
	columnTypeRules     = field([]string{"type", "tipo"})
	columnAppliesRules  = field([]string{"appliesTo", "aplica_a", "aplica"})
	columnEditableRules = field([]string{"editable", "edit", "es_editable"})
	columnOptionsRules  = field([]string{"options", "opciones", "vals", "values"})
	columnFormulaRules  = field([]string{"formula", "fórmula"})
	scaleVIRules        = field([]string{"VI", "importancia"})
	scaleVCRules        = field([]string{"VC", "aplicacion"})
	priorityNameRules   = field([]string{"name", "nombre", "label"})
	priorityMinRules    = field([]string{"min", "minimo", "desde"})
	priorityMaxRules    = field([]string{"max", "maximo", "hasta"})
)
