package argument

import (
	"fmt"
	"go/token"
	"math"
	"os"
	"path"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/tools/imports"
)

// ---------------------------------------------------------------------------
// Ahead-of-time evaluators
// ---------------------------------------------------------------------------

// GenerateSource emits a Go file in package pkgName with one typed evaluator
// per sequence and a RegisterAll function that installs them into a
// registry's compiler under their canonical keys. The evaluators call the
// recorded methods directly, without reflection, and behave like replay:
// nil receivers end the evaluation with nil and failures are reported as
// *InvocationError.
//
// Every sequence must be jittable and non-empty, and every type it mentions
// must be importable from another package.
func GenerateSource(pkgName string, seqs ...*Sequence) ([]byte, error) {
	g := newSourceGen()

	seen := make(map[string]bool)
	var keys, names []string
	for _, s := range seqs {
		key := s.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		name := fmt.Sprintf("eval%d", len(names))
		if err := g.evaluator(name, s); err != nil {
			return nil, fmt.Errorf("sequence %s: %w", key, err)
		}
		keys = append(keys, key)
		names = append(names, name)
	}

	var b strings.Builder
	b.WriteString("// Code generated by fluentarg; DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	b.WriteString("import (\n")
	for _, imp := range g.sortedImports() {
		fmt.Fprintf(&b, "\t%s %q\n", g.imports[imp], imp)
	}
	b.WriteString(")\n\n")
	b.WriteString("// RegisterAll installs the evaluators in this file into reg.\n")
	b.WriteString("func RegisterAll(reg *argument.Registry) {\n")
	for i, key := range keys {
		fmt.Fprintf(&b, "\treg.JIT().RegisterCompiled(%q, %s)\n", key, names[i])
	}
	b.WriteString("}\n")
	b.WriteString(g.body.String())

	out, err := imports.Process(pkgName+"_fluentarg.go", []byte(b.String()), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format generated source: %w", err)
	}
	return out, nil
}

// WriteSourceFile writes the output of GenerateSource to path.
func WriteSourceFile(path, pkgName string, seqs ...*Sequence) error {
	src, err := GenerateSource(pkgName, seqs...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, src, 0644); err != nil {
		return fmt.Errorf("failed to write generated source: %w", err)
	}
	return nil
}

// IsNil reports whether v is nil, or a nil pointer, map, slice, chan or func
// stored in an interface. Generated evaluators use it on interface-typed
// intermediate results.
func IsNil(v any) bool {
	return isNilValue(reflect.ValueOf(v))
}

type sourceGen struct {
	imports map[string]string // import path -> alias
	aliases map[string]bool
	body    strings.Builder
}

func newSourceGen() *sourceGen {
	g := &sourceGen{
		imports: map[string]string{ImportPath: "argument"},
		aliases: map[string]bool{"argument": true},
	}
	return g
}

func (g *sourceGen) sortedImports() []string {
	paths := make([]string, 0, len(g.imports))
	for p := range g.imports {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// alias returns the local name for the package at importPath.
func (g *sourceGen) alias(importPath string) string {
	if a, ok := g.imports[importPath]; ok {
		return a
	}

	base := path.Base(importPath)
	if len(base) > 1 && base[0] == 'v' && strings.Trim(base[1:], "0123456789") == "" {
		base = path.Base(path.Dir(importPath))
	}
	base = strings.Map(func(r rune) rune {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '_'
	}, base)
	if base == "" || ('0' <= base[0] && base[0] <= '9') || token.IsKeyword(base) {
		base = "p" + base
	}

	a := base
	for i := 2; g.aliases[a]; i++ {
		a = fmt.Sprintf("%s%d", base, i)
	}
	g.aliases[a] = true
	g.imports[importPath] = a
	return a
}

// typeExpr renders t as a Go type expression, adding imports as needed.
func (g *sourceGen) typeExpr(t reflect.Type) (string, error) {
	if t.Name() != "" {
		switch {
		case t.PkgPath() == "":
			return t.Name(), nil
		case strings.ContainsAny(t.Name(), "[]"):
			return "", fmt.Errorf("generic type %s is not supported", t)
		case !token.IsExported(t.Name()):
			return "", fmt.Errorf("type %s is not exported", t)
		case t.PkgPath() == "main" || strings.HasSuffix(t.PkgPath(), "_test"):
			return "", fmt.Errorf("type %s is not importable", t)
		}
		return g.alias(t.PkgPath()) + "." + t.Name(), nil
	}

	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan:
		elem, err := g.typeExpr(t.Elem())
		if err != nil {
			return "", err
		}
		switch t.Kind() {
		case reflect.Pointer:
			return "*" + elem, nil
		case reflect.Slice:
			return "[]" + elem, nil
		case reflect.Array:
			return fmt.Sprintf("[%d]%s", t.Len(), elem), nil
		}
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + elem, nil
		case reflect.SendDir:
			return "chan<- " + elem, nil
		}
		return "chan " + elem, nil
	case reflect.Map:
		key, err := g.typeExpr(t.Key())
		if err != nil {
			return "", err
		}
		elem, err := g.typeExpr(t.Elem())
		if err != nil {
			return "", err
		}
		return "map[" + key + "]" + elem, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any", nil
		}
	}
	return "", fmt.Errorf("unnamed type %s is not supported", t)
}

// literal renders a recorded scalar argument as a typed Go expression.
func (g *sourceGen) literal(a argRef) (string, error) {
	if !a.scalar() {
		return "", fmt.Errorf("argument %s is not a scalar", a)
	}
	v := a.strong
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("argument %v has no literal", f)
		}
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		if math.IsNaN(real(c)) || math.IsNaN(imag(c)) || math.IsInf(real(c), 0) || math.IsInf(imag(c), 0) {
			return "", fmt.Errorf("argument %v has no literal", c)
		}
	}
	typ, err := g.typeExpr(v.Type())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%#v)", typ, v.Interface()), nil
}

// nilCheck returns the statement that ends evaluation when v is nil, or ""
// if values of t cannot be nil.
func nilCheck(v string, t reflect.Type) string {
	switch {
	case t.Kind() == reflect.Interface:
		return fmt.Sprintf("\tif argument.IsNil(%s) {\n\t\treturn nil, nil\n\t}\n", v)
	case isNilableKind(t.Kind()):
		return fmt.Sprintf("\tif %s == nil {\n\t\treturn nil, nil\n\t}\n", v)
	}
	return ""
}

// evaluator emits the evaluator function for s.
func (g *sourceGen) evaluator(name string, s *Sequence) error {
	invs := s.invocations()
	if len(invs) == 0 {
		return fmt.Errorf("empty sequence")
	}
	if !s.jittable {
		return fmt.Errorf("sequence is not eligible for compilation")
	}
	root, err := g.typeExpr(s.root)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n// %s evaluates %s.\n", name, s.PropertyPath())
	fmt.Fprintf(&b, "func %s(target any) (any, error) {\n", name)
	b.WriteString("\tif argument.IsNil(target) {\n\t\treturn nil, nil\n\t}\n")
	fmt.Fprintf(&b, "\tv0, ok := target.(%s)\n", root)
	fmt.Fprintf(&b, "\tif !ok {\n\t\treturn nil, argument.WrapInvocationError(%q, target, argument.ErrMethodNotFound)\n\t}\n",
		invs[0].method.Name)
	b.WriteString(nilCheck("v0", s.root))

	for i, inv := range invs {
		args := make([]string, len(inv.args))
		for j, a := range inv.args {
			if args[j], err = g.literal(a); err != nil {
				return err
			}
		}
		recv, res := fmt.Sprintf("v%d", i), fmt.Sprintf("v%d", i+1)
		call := fmt.Sprintf("%s.%s(%s)", recv, inv.method.Name, strings.Join(args, ", "))
		if inv.method.ReturnsError {
			fmt.Fprintf(&b, "\t%s, err := %s\n", res, call)
			fmt.Fprintf(&b, "\tif err != nil {\n\t\treturn nil, argument.WrapInvocationError(%q, %s, err)\n\t}\n",
				inv.method.Name, recv)
		} else {
			fmt.Fprintf(&b, "\t%s := %s\n", res, call)
		}
		b.WriteString(nilCheck(res, inv.ReturnType()))
	}
	fmt.Fprintf(&b, "\treturn v%d, nil\n}\n", len(invs))

	g.body.WriteString(b.String())
	return nil
}
