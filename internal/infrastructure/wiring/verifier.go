package wiring

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/shared"
)

// ErrUnscopedTransaction is matched by every *VerificationError
var ErrUnscopedTransaction = shared.NewDomainError("UNSCOPED_TRANSACTION", "tenant-scoped component uses a transaction declaration without a scope")

type entry struct {
	typ   reflect.Type
	decls Declarations
}

// Registry collects constructed components and repository-style interfaces
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds constructed components. Components that do not implement
// Declarer are registered with an empty manifest.
func (r *Registry) Register(components ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range components {
		if c == nil {
			continue
		}
		var decls Declarations
		if d, ok := c.(Declarer); ok {
			decls = d.TransactionDeclarations()
		}
		r.entries = append(r.entries, entry{typ: reflect.TypeOf(c), decls: decls})
	}
}

// RegisterInterface adds interface T with decls
func RegisterInterface[T any](r *Registry, decls Declarations) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{typ: reflect.TypeFor[T](), decls: decls})
}

// Len returns the number of registered entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) snapshot() []entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Violation is one offending declaration
type Violation struct {
	// Signature is Type or Type.Method
	Signature string
	Reason    string
}

// VerificationError aggregates every violation found
type VerificationError struct {
	Violations []Violation
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "wiring verification failed with %d violation(s):", len(e.Violations))
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  %s: %s", v.Signature, v.Reason)
	}
	return b.String()
}

// Unwrap lets errors.Is(err, ErrUnscopedTransaction) match
func (e *VerificationError) Unwrap() error {
	return ErrUnscopedTransaction
}

// Signatures returns the offending signatures in order
func (e *VerificationError) Signatures() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Signature
	}
	return out
}

// Verifier checks the registry for unscoped transaction declarations
type Verifier struct {
	registry *Registry
	prefixes []string
	enabled  bool
	logger   *zap.Logger
}

// NewVerifier creates a verifier over registry. Only types whose package
// path is one of scopedPackages, or below one, are checked.
func NewVerifier(registry *Registry, scopedPackages []string, enabled bool, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		registry: registry,
		prefixes: scopedPackages,
		enabled:  enabled,
		logger:   logger.Named("wiring"),
	}
}

// Verify returns a *VerificationError listing every violation, or nil.
func (v *Verifier) Verify() error {
	if !v.enabled {
		v.logger.Warn("Startup wiring verification is disabled")
		return nil
	}

	var violations []Violation
	checked := 0
	for _, e := range v.registry.snapshot() {
		if !v.inScope(e.typ) {
			continue
		}
		checked++
		violations = append(violations, checkEntry(e)...)
	}

	v.logger.Info("Startup wiring verification finished",
		zap.Int("checked", checked),
		zap.Int("violations", len(violations)),
	)
	if len(violations) == 0 {
		return nil
	}

	slices.SortFunc(violations, func(a, b Violation) int {
		return strings.Compare(a.Signature, b.Signature)
	})
	return &VerificationError{Violations: violations}
}

func (v *Verifier) inScope(t reflect.Type) bool {
	pkg := packagePath(t)
	for _, p := range v.prefixes {
		if pkg == p || strings.HasPrefix(pkg, p+"/") {
			return true
		}
	}
	return false
}

func packagePath(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath()
}

func checkEntry(e entry) []Violation {
	var out []Violation
	typeName := e.typ.String()

	if reason := checkMarkers(e.decls.Type); reason != "" {
		out = append(out, Violation{Signature: typeName, Reason: reason})
	}
	for method, markers := range e.decls.Methods {
		signature := typeName + "." + method
		if _, ok := e.typ.MethodByName(method); !ok {
			out = append(out, Violation{Signature: signature, Reason: "declares a method the type does not have"})
			continue
		}
		if reason := checkMarkers(markers); reason != "" {
			out = append(out, Violation{Signature: signature, Reason: reason})
		}
	}
	return out
}

func checkMarkers(markers []*Marker) string {
	r := resolve(markers)
	switch {
	case len(r.scopes) > 1:
		return "declares both PUBLIC and TENANT scope"
	case r.transactional && len(r.scopes) == 0:
		return fmt.Sprintf("generic %s declaration without a scoped marker (markers: %s)", Transactional, names(markers))
	}
	return ""
}

func names(markers []*Marker) string {
	s := make([]string, len(markers))
	for i, m := range markers {
		s[i] = m.Name()
	}
	return strings.Join(s, ", ")
}
