package argument

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestGenerateSource(t *testing.T) {
	reg := newTestRegistry()
	t.Cleanup(func() { reg.Close() })
	rec := reg.NewRecorder()
	p := On[*Person](rec)

	age := recordFriendAge(t, rec)
	seconds, err := rec.Resolve(MustCall[int64](rec, MustCall[*timestamppb.Timestamp](rec, p, "GetCreated"), "GetSeconds"))
	require.NoError(t, err)
	note, err := rec.Resolve(MustCall[string](rec, p, "Note", "hobby"))
	require.NoError(t, err)
	sum, err := rec.Resolve(MustCall[int](rec, MustCall[Point](rec, p, "Location"), "Scale", 3))
	require.NoError(t, err)

	src, err := GenerateSource("people", age, seconds, note, age, sum)
	require.NoError(t, err)
	code := string(src)

	_, err = parser.ParseFile(token.NewFileSet(), "people_fluentarg.go", src, parser.AllErrors)
	require.NoError(t, err, code)

	require.True(t, strings.HasPrefix(code, "// Code generated by fluentarg; DO NOT EDIT."))
	require.Contains(t, code, "package people")
	require.Contains(t, code, `"google.golang.org/protobuf/types/known/timestamppb"`)
	require.Contains(t, code, "func RegisterAll(reg *argument.Registry)")
	require.Equal(t, 4, strings.Count(code, "reg.JIT().RegisterCompiled("), "duplicate sequences are emitted once")
	require.Contains(t, code, "v0.GetBestFriend()")
	require.Contains(t, code, "v1.Age()")
	require.Contains(t, code, "v1.GetSeconds()")
	require.Contains(t, code, `v1, err := v0.Note(string("hobby"))`)
	require.Contains(t, code, "v1.Scale(int(3))")
	require.Contains(t, code, "target.(*argument.Person)")
}

func TestGenerateSourceRejects(t *testing.T) {
	reg := newTestRegistry()
	t.Cleanup(func() { reg.Close() })
	rec := reg.NewRecorder()
	p := On[*Person](rec)
	_, bob, _ := newFamily()

	root, err := rec.Resolve(p)
	require.NoError(t, err)
	_, err = GenerateSource("people", root)
	require.ErrorContains(t, err, "empty sequence")

	older, err := rec.Resolve(MustCall[bool](rec, p, "IsOlderThan", bob))
	require.NoError(t, err)
	_, err = GenerateSource("people", older)
	require.ErrorContains(t, err, "not eligible")
}

func TestTypeExpr(t *testing.T) {
	type local struct{}
	g := newSourceGen()

	tests := []struct {
		typ  any
		want string
	}{
		{0, "int"},
		{[]*Person{}, "[]*argument.Person"},
		{map[string][2]Color{}, "map[string][2]argument.Color"},
		{make(<-chan *timestamppb.Timestamp), "<-chan *timestamppb.Timestamp"},
		{new(any), "*any"},
	}
	for _, tt := range tests {
		got, err := g.typeExpr(reflect.TypeOf(tt.typ))
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}

	_, err := g.typeExpr(reflect.TypeFor[local]())
	require.ErrorContains(t, err, "not exported")
	_, err = g.typeExpr(reflect.TypeFor[struct{ A int }]())
	require.ErrorContains(t, err, "not supported")
}

func TestSourceGenAliases(t *testing.T) {
	g := newSourceGen()
	require.Equal(t, "argument", g.alias(ImportPath))
	require.Equal(t, "cbor", g.alias("github.com/fxamacker/cbor/v2"))
	require.Equal(t, "cbor2", g.alias("example.com/other/cbor"))
	require.Equal(t, "go_cmp", g.alias("example.com/go-cmp"))
	require.Equal(t, "ptype", g.alias("example.com/type"))
	require.Equal(t, "cbor", g.alias("github.com/fxamacker/cbor/v2"))
}

func TestWriteSourceFile(t *testing.T) {
	reg := newTestRegistry()
	t.Cleanup(func() { reg.Close() })
	seq := recordFriendAge(t, reg.NewRecorder())

	path := filepath.Join(t.TempDir(), "gen.go")
	require.NoError(t, WriteSourceFile(path, "gen", seq))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "package gen")
}

func TestIsNil(t *testing.T) {
	require.True(t, IsNil(nil))
	require.True(t, IsNil((*Person)(nil)))
	require.True(t, IsNil([]int(nil)))
	require.False(t, IsNil(0))
	require.False(t, IsNil(&Person{}))
}
