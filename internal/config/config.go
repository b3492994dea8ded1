// Package config implements the §6 configuration document model: a
// yaml.v3-backed mapping/list/scalar tree parsed into the steps mapping,
// namespaces, explicit dependency tree, and compiler pipeline spec the
// Instantiator and compiler pipeline consume. Grounded on the teacher's
// internal/config (types.go, parser.go) and pkg/errors.ParseError.
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

var validate = validator.New()

// StepConfig is one entry of the top-level "steps" mapping: a required
// class path, an optional explicit dependencies list, and every other key
// as a keyword argument for the class's factory. Name and Class are checked
// with go-playground/validator struct tags as a second, independent pass
// over the hand-rolled parsing below.
type StepConfig struct {
	Name         string `validate:"required"`
	Class        string `validate:"required"`
	Dependencies []string
	Kwargs       map[string]any
}

// CompilerConfig is one entry of the "compilers" pipeline.
type CompilerConfig struct {
	Name        string `validate:"required"`
	Class       string `validate:"required"`
	InputStep   string // set in the explicit mapping form
	RunFromHere bool
	Kwargs      map[string]any
}

// Compilers holds the compiler pipeline in whichever of the two §6 forms
// the document used: an ordered list (linear chain) or a named mapping
// (explicit input_step references).
type Compilers struct {
	List    []CompilerConfig // linear chain, in document order
	Mapping map[string]CompilerConfig
	IsList  bool
}

// Document is the parsed top-level configuration: the steps mapping plus
// the optional __namespaces__, __dependencies__, and compilers sections.
type Document struct {
	Steps        map[string]StepConfig
	Namespaces   []string
	Dependencies map[string][]string
	Compilers    Compilers
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// Load reads and parses a configuration document from path, or from stdin
// when path is "-".
func Load(path string) (*Document, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, streamyerrors.NewParseError(path, 0, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, streamyerrors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes raw YAML bytes into a Document, wrapping syntax errors as a
// ParseError carrying a best-effort line number extracted from yaml.v3's
// error text.
func Parse(sourceName string, data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		line := 0
		if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
			fmt.Sscanf(m[1], "%d", &line)
		}
		return nil, streamyerrors.NewParseError(sourceName, line, err)
	}

	doc := &Document{
		Steps: map[string]StepConfig{},
	}

	if stepsRaw, ok := raw["steps"]; ok {
		stepsMap, ok := asMap(stepsRaw)
		if !ok {
			return nil, streamyerrors.NewValidationError("steps", "must be a mapping of step name to step config", nil)
		}
		for name, v := range stepsMap {
			sc, err := parseStepConfig(name, v)
			if err != nil {
				return nil, err
			}
			doc.Steps[name] = sc
		}
	}

	if nsRaw, ok := raw["__namespaces__"]; ok {
		ns, err := asStringList(nsRaw)
		if err != nil {
			return nil, streamyerrors.NewValidationError("__namespaces__", err.Error(), err)
		}
		doc.Namespaces = ns
	}

	if depsRaw, ok := raw["__dependencies__"]; ok {
		depsMap, ok := asMap(depsRaw)
		if !ok {
			return nil, streamyerrors.NewValidationError("__dependencies__", "must be a mapping of step name to dependency list", nil)
		}
		doc.Dependencies = map[string][]string{}
		for name, v := range depsMap {
			list, err := asStringList(v)
			if err != nil {
				return nil, streamyerrors.NewValidationError(fmt.Sprintf("__dependencies__.%s", name), err.Error(), err)
			}
			doc.Dependencies[name] = list
		}
	}

	if compRaw, ok := raw["compilers"]; ok {
		compilers, err := parseCompilers(compRaw)
		if err != nil {
			return nil, err
		}
		doc.Compilers = compilers
	}

	if err := mergeDependencies(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// mergeDependencies folds the separate __dependencies__ tree into each
// named step's own Dependencies, the way the original's
// SeparateDependencyTree compiler does. Presence of __dependencies__ (even
// empty) forbids any step from also declaring its own "dependencies" key;
// a step named in the tree but absent from "steps" is silently ignored, as
// in the original.
func mergeDependencies(doc *Document) error {
	if doc.Dependencies == nil {
		return nil
	}
	for name, sc := range doc.Steps {
		if len(sc.Dependencies) > 0 {
			return streamyerrors.NewValidationError("__dependencies__", fmt.Sprintf("step %q specifies both __dependencies__ and its own dependencies key", name), nil)
		}
	}
	for name, deps := range doc.Dependencies {
		sc, ok := doc.Steps[name]
		if !ok {
			continue
		}
		sc.Dependencies = deps
		doc.Steps[name] = sc
	}
	return nil
}

// ParseStepConfig parses a single step config entry (a "class" key plus
// optional "dependencies" and arbitrary keyword arguments) the same way Parse
// does for the top-level "steps" mapping. Exported so the Instantiator can
// parse an inline anonymous step config lifted out of a reference attribute
// using the identical rules.
func ParseStepConfig(name string, v any) (StepConfig, error) {
	return parseStepConfig(name, v)
}

// AsMap normalizes a decoded YAML mapping value to map[string]any, accepting
// both yaml.v3's native map[string]any and the map[any]any shape nested
// mappings can take. Exported for the Instantiator's inline-config lifting.
func AsMap(v any) (map[string]any, bool) {
	return asMap(v)
}

func parseStepConfig(name string, v any) (StepConfig, error) {
	m, ok := asMap(v)
	if !ok {
		return StepConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("steps.%s", name), "step config must be a mapping", nil)
	}

	class, _ := m["class"].(string)
	if class == "" {
		return StepConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("steps.%s.class", name), "required field is missing", nil)
	}

	sc := StepConfig{Name: name, Class: class, Kwargs: map[string]any{}}
	for k, val := range m {
		switch k {
		case "class":
		case "dependencies":
			list, err := asStringList(val)
			if err != nil {
				return StepConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("steps.%s.dependencies", name), err.Error(), err)
			}
			sc.Dependencies = list
		default:
			sc.Kwargs[k] = val
		}
	}
	if err := validate.Struct(sc); err != nil {
		return StepConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("steps.%s", name), err.Error(), err)
	}
	return sc, nil
}

func parseCompilers(v any) (Compilers, error) {
	switch val := v.(type) {
	case []any:
		out := Compilers{IsList: true}
		for i, entry := range val {
			name := fmt.Sprintf("compiler_%d", i)
			cc, err := parseCompilerConfig(name, entry)
			if err != nil {
				return Compilers{}, err
			}
			if i == len(val)-1 && !hasRunFromHere(val) {
				cc.RunFromHere = true
			}
			out.List = append(out.List, cc)
		}
		return out, nil
	case map[string]any:
		out := Compilers{Mapping: map[string]CompilerConfig{}}
		for name, entry := range val {
			cc, err := parseCompilerConfig(name, entry)
			if err != nil {
				return Compilers{}, err
			}
			out.Mapping[name] = cc
		}
		return out, nil
	default:
		return Compilers{}, streamyerrors.NewValidationError("compilers", "must be a list or a mapping", nil)
	}
}

func hasRunFromHere(list []any) bool {
	for _, entry := range list {
		if m, ok := asMap(entry); ok {
			if b, _ := m["run_from_here"].(bool); b {
				return true
			}
		}
	}
	return false
}

func parseCompilerConfig(name string, v any) (CompilerConfig, error) {
	m, ok := asMap(v)
	if !ok {
		return CompilerConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("compilers.%s", name), "compiler config must be a mapping", nil)
	}
	class, _ := m["class"].(string)
	if class == "" {
		return CompilerConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("compilers.%s.class", name), "required field is missing", nil)
	}
	cc := CompilerConfig{Name: name, Class: class, Kwargs: map[string]any{}}
	for k, val := range m {
		switch k {
		case "class":
		case "input_step":
			cc.InputStep, _ = val.(string)
		case "run_from_here":
			cc.RunFromHere, _ = val.(bool)
		default:
			cc.Kwargs[k] = val
		}
	}
	if err := validate.Struct(cc); err != nil {
		return CompilerConfig{}, streamyerrors.NewValidationError(fmt.Sprintf("compilers.%s", name), err.Error(), err)
	}
	return cc, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asStringList(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings, got %T", v)
	}
}

// SortedStepNames returns doc.Steps's keys in a deterministic order, for
// logs and tests.
func (d *Document) SortedStepNames() []string {
	names := make([]string, 0, len(d.Steps))
	for name := range d.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
