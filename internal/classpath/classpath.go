// Package classpath implements dynamic class-path resolution: looking up a
// dotted name, optionally containing "*" (one segment) or "**" (any dotted
// sequence) wildcards, against an ordered list of namespace prefixes.
//
// Go has no runtime import statement, so the "module tree" a dynamic
// language would walk is instead a process-wide registry populated ahead of
// time (typically from an init() in whatever package defines the classes),
// generalizing the mutex-guarded plugin registry pattern into a namespaced,
// wildcard-aware lookup.
package classpath

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	streamyerrors "github.com/ductwork/ductwork/pkg/errors"
)

// Class is an opaque factory resolved by a class-path lookup. Callers type-
// assert the result to whatever function or value shape their registration
// used; kept as any so this package has no dependency on the step types it
// is used to resolve.
type Class any

// Module is a named collection of top-level classes: the unit the cache
// remembers, analogous to an imported module.
type Module struct {
	Name    string
	Classes map[string]Class
}

var (
	mu    sync.Mutex
	cache = map[string]*Module{}
)

// RegisterModule adds or replaces a module in the process-wide cache. Call
// once per module, typically from an init(). Safe for concurrent use.
func RegisterModule(name string, classes map[string]Class) {
	mu.Lock()
	defer mu.Unlock()
	cache[name] = &Module{Name: name, Classes: classes}
}

// ResetCache clears every registered module. Exposed so tests, and repeated
// instantiation of differently-namespaced graphs, can start from a clean
// cache.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cache = map[string]*Module{}
}

var consecutiveStars = regexp.MustCompile(`\*{3,}`)

// Resolve looks up classPath against namespaces in order, plus the implicit
// empty namespace (classPath taken as absolute). Returns the resolved
// module name and class on the first match. A classPath with three or more
// consecutive asterisks is always a syntax error; otherwise, if nothing
// matches in any namespace, Resolve returns a ClassLookupError.
func Resolve(classPath string, namespaces []string) (string, Class, error) {
	if consecutiveStars.MatchString(classPath) {
		return "", nil, fmt.Errorf("class path %q contains three or more consecutive asterisks", classPath)
	}

	candidates := append(append([]string(nil), namespaces...), "")

	mu.Lock()
	defer mu.Unlock()

	for _, ns := range candidates {
		full := classPath
		if ns != "" {
			full = ns + "." + classPath
		}
		if moduleName, class, ok := resolveOne(full); ok {
			return moduleName, class, nil
		}
	}
	return "", nil, streamyerrors.NewClassLookupError(classPath, namespaces)
}

// resolveOne attempts a single namespace-qualified candidate. Must be
// called with mu held.
func resolveOne(full string) (string, Class, bool) {
	segments := strings.Split(full, ".")
	if len(segments) < 2 {
		return "", nil, false
	}
	className := segments[len(segments)-1]
	modulePath := segments[:len(segments)-1]

	// A bare leading wildcard would mean "search from the global root",
	// which §4.8 explicitly disallows.
	if modulePath[0] == "*" || modulePath[0] == "**" {
		return "", nil, false
	}

	var prefix []string
	for _, seg := range modulePath {
		if seg == "*" || seg == "**" {
			break
		}
		prefix = append(prefix, seg)
	}
	prefixStr := strings.Join(prefix, ".")

	rootExists := false
	for name := range cache {
		if name == prefixStr || strings.HasPrefix(name, prefixStr+".") {
			rootExists = true
			break
		}
	}
	if !rootExists {
		return "", nil, false
	}

	parts := make([]string, len(modulePath))
	for i, seg := range modulePath {
		switch seg {
		case "*":
			parts[i] = `[^.]+`
		case "**":
			parts[i] = `.+`
		default:
			parts[i] = regexp.QuoteMeta(seg)
		}
	}
	re := regexp.MustCompile("^" + strings.Join(parts, `\.`) + "$")

	names := make([]string, 0, len(cache))
	for name := range cache {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !re.MatchString(name) {
			continue
		}
		if class, ok := cache[name].Classes[className]; ok {
			return name, class, true
		}
	}
	return "", nil, false
}
