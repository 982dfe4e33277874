package contracts

// FieldDoc is the serializable form of a field rule, used by the CLI and by
// anything that needs to export the registry.
type FieldDoc struct {
	Name      string   `json:"name" yaml:"name"`
	Type      Kind     `json:"type" yaml:"type"`
	Required  bool     `json:"required" yaml:"required"`
	MinLength int      `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MinItems  int      `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// DependencyDoc documents one consumed upstream stage.
type DependencyDoc struct {
	Stage  int        `json:"stage" yaml:"stage"`
	Fields []FieldDoc `json:"fields" yaml:"fields"`
}

// ContractDoc documents a full stage contract.
type ContractDoc struct {
	Stage    int             `json:"stage" yaml:"stage"`
	Name     string          `json:"name" yaml:"name"`
	Phase    string          `json:"phase" yaml:"phase"`
	Consumes []DependencyDoc `json:"consumes" yaml:"consumes"`
	Produces []FieldDoc      `json:"produces" yaml:"produces"`
}

func (r String) describe(doc *FieldDoc)  { doc.MinLength = r.MinLength }
func (r Integer) describe(doc *FieldDoc) { r.Bounds.describe(doc) }
func (r Number) describe(doc *FieldDoc)  { r.Bounds.describe(doc) }
func (r Array) describe(doc *FieldDoc)   { doc.MinItems = r.MinItems }
func (Object) describe(*FieldDoc)        {}

func (b Bounds) describe(doc *FieldDoc) {
	if b.hasMin {
		min := b.min
		doc.Min = &min
	}
	if b.hasMax {
		max := b.max
		doc.Max = &max
	}
}

// Doc renders the field.
func (f Field) Doc() FieldDoc {
	doc := FieldDoc{Name: f.Name, Required: f.Required()}
	if f.Rule != nil {
		doc.Type = f.Rule.Kind()
		f.Rule.describe(&doc)
	}
	return doc
}

func (s Spec) docs() []FieldDoc {
	out := make([]FieldDoc, 0, len(s))
	for _, field := range s {
		out = append(out, field.Doc())
	}
	return out
}

// Doc renders the contract.
func (c StageContract) Doc() ContractDoc {
	doc := ContractDoc{
		Stage:    c.Stage,
		Name:     c.Name,
		Phase:    c.Phase,
		Consumes: make([]DependencyDoc, 0, len(c.Consumes)),
		Produces: c.Produces.docs(),
	}
	for _, dep := range c.Consumes {
		doc.Consumes = append(doc.Consumes, DependencyDoc{Stage: dep.Stage, Fields: dep.Fields.docs()})
	}
	return doc
}

// Describe returns the documented contract for a stage.
func Describe(stage int) (ContractDoc, bool) {
	contract := lookup(stage)
	if contract == nil {
		return ContractDoc{}, false
	}
	return contract.Doc(), true
}

// DescribeAll documents every registered contract in stage order.
func DescribeAll() []ContractDoc {
	all := All()
	out := make([]ContractDoc, 0, len(all))
	for _, contract := range all {
		out = append(out, contract.Doc())
	}
	return out
}
