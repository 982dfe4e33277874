package contracts

import "fmt"

// Verdict is the outcome of a structural check against a Spec.
type Verdict struct {
	Valid  bool
	Errors []string
}

// Validate checks data against spec and reports every violation found. A nil
// map is treated as an absent object, so each required field is reported
// missing. Validate has no side effects and is safe for concurrent use.
func Validate(data map[string]any, spec Spec, label string) Verdict {
	errs := []string{}
	for _, field := range spec {
		value, present := data[field.Name]
		if !present || isAbsent(value) {
			if field.Required() {
				errs = append(errs, fmt.Sprintf("%s: missing required field '%s'", label, field.Name))
			}
			continue
		}
		errs = append(errs, field.Rule.check(value, field.Name, label)...)
	}
	return Verdict{Valid: len(errs) == 0, Errors: errs}
}
