package contracts

// Derivation computes fields a stage synthesizes from its raw output, such as
// rates and aggregate scores. It receives a private copy of the raw output and
// returns only the fields to merge.
type Derivation func(raw map[string]any) map[string]any

// Enriched is a stage output whose derived fields have been merged in. It can
// only be built by Enrich, which makes post-stage validation of raw output
// impossible.
type Enriched struct {
	stage  int
	fields map[string]any
}

// Enrich copies raw, applies derive (when non-nil) and merges the returned
// fields over the copy. Derived values replace raw values of the same name;
// no field is ever removed. The caller's map is not modified.
func Enrich(stage int, raw map[string]any, derive Derivation) Enriched {
	fields := Clone(raw)
	if fields == nil {
		fields = map[string]any{}
	}
	if derive != nil {
		for key, value := range derive(Clone(fields)) {
			fields[key] = value
		}
	}
	return Enriched{stage: stage, fields: fields}
}

// Stage returns the stage the output was enriched for. The zero Enriched
// reports stage 0.
func (e Enriched) Stage() int {
	return e.stage
}

// Fields returns a deep copy of the enriched document.
func (e Enriched) Fields() map[string]any {
	return Clone(e.fields)
}

// Get returns a single top-level value.
func (e Enriched) Get(name string) (any, bool) {
	value, ok := e.fields[name]
	return value, ok
}

// Lookup implements Upstream for a single enriched output, answering only for
// its own stage.
func (e Enriched) Lookup(stage int) (map[string]any, bool) {
	if e.fields == nil || stage != e.stage {
		return nil, false
	}
	return e.fields, true
}
