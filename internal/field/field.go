// Package field implements declarative per-attribute construction-time
// validation, generalizing a dynamic attribute-descriptor/validator pattern
// into an explicit, statically declared field table per Go type.
package field

import (
	"fmt"
	"reflect"

	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Validator inspects a field's resolved value once it has been type-checked.
// owner is the partially-constructed object the field belongs to, supplied so
// a validator can reference sibling attributes the way a method-name validator
// would reference self in a dynamic language. Validator returns a non-nil
// error to fail construction; returning nil passes.
type Validator func(owner any, value any) error

// Spec declares one attribute of a ValidatingObject.
type Spec struct {
	// Name is the attribute key as it appears in the input mapping.
	Name string
	// Optional permits the attribute to be absent from the input mapping.
	Optional bool
	// Default supplies the zero value assigned when Optional and absent.
	// It is copied via CopyDefault before assignment: a top-level slice or
	// map is copied one level deep, so two instances never share that
	// outer container (nested containers are still shared).
	Default any
	// Type restricts the value (or, when List is true, each element) to a
	// single Go type. A nil Type skips the check.
	Type reflect.Type
	// List marks the field as an ordered sequence whose elements are each
	// checked against Type.
	List bool
	// Validator runs after the type check: once for a scalar, once per
	// element for a list.
	Validator Validator
}

// Table is the static, per-type declaration of a ValidatingObject's fields,
// built once (typically in a package-level var) and walked identically for
// every construction and for reflective enumeration via Fields.
type Table []Spec

// Fields returns the declared specs, exposing field metadata the way a
// reflection-based find_fields operation would.
func (t Table) Fields() []Spec {
	return append([]Spec(nil), t...)
}

// Build validates input against the table and returns the resolved attribute
// map ready to populate a struct. owner is passed through to validators
// uninspected; pass the object under construction (or nil before it exists).
func Build(t Table, owner any, input map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(t))
	seen := make(map[string]bool, len(t))

	for _, spec := range t {
		seen[spec.Name] = true

		value, present := input[spec.Name]
		if !present {
			if !spec.Optional {
				return nil, streamyerrors.NewValidationError(spec.Name, "required field is missing", nil)
			}
			value = CopyDefault(spec.Default)
		} else if err := checkType(spec, value); err != nil {
			return nil, err
		}

		if spec.Validator != nil {
			if spec.List {
				items, _ := toSlice(value)
				for i, item := range items {
					if err := spec.Validator(owner, item); err != nil {
						return nil, streamyerrors.NewValidationError(fmt.Sprintf("%s[%d]", spec.Name, i), err.Error(), err)
					}
				}
			} else if err := spec.Validator(owner, value); err != nil {
				return nil, streamyerrors.NewValidationError(spec.Name, err.Error(), err)
			}
		}

		result[spec.Name] = value
	}

	for key := range input {
		if !seen[key] {
			return nil, streamyerrors.NewValidationError(key, "unknown field", nil)
		}
	}

	return result, nil
}

func checkType(spec Spec, value any) error {
	if spec.Type == nil {
		return nil
	}

	if spec.List {
		items, ok := toSlice(value)
		if !ok {
			return streamyerrors.NewValidationError(spec.Name, "expected a list", nil)
		}
		for i, item := range items {
			if !assignable(item, spec.Type) {
				return streamyerrors.NewValidationError(fmt.Sprintf("%s[%d]", spec.Name, i), fmt.Sprintf("expected %s, got %T", spec.Type, item), nil)
			}
		}
		return nil
	}

	if !assignable(value, spec.Type) {
		return streamyerrors.NewValidationError(spec.Name, fmt.Sprintf("expected %s, got %T", spec.Type, value), nil)
	}
	return nil
}

func assignable(value any, t reflect.Type) bool {
	if value == nil {
		return false
	}
	vt := reflect.TypeOf(value)
	return vt.AssignableTo(t) || (t.Kind() == reflect.Interface && vt.Implements(t))
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
}

// CopyDefault returns a shallow-independent copy of a declared default so
// repeated construction never shares mutable state (slices/maps) between
// instances. Scalars and immutable values are returned unchanged.
func CopyDefault(v any) any {
	switch d := v.(type) {
	case []any:
		out := make([]any, len(d))
		copy(out, d)
		return out
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, val := range d {
			out[k] = val
		}
		return out
	default:
		return v
	}
}
