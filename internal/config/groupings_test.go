package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/queryir"
)

func writeCUE(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "groupings.cue"), []byte(src), 0o644))
	return dir
}

func TestLoadGroupingsTestdata(t *testing.T) {
	res, errs := LoadGroupings(filepath.Join("..", "..", "testdata", "groupings"), LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.FileCount)
	assert.Equal(t, 6, res.Registry.Len())

	red, err := res.Registry.Lookup(10)
	require.NoError(t, err)
	assert.Equal(t, "red_things", red.Name)
	assert.True(t, red.Enabled)
	assert.Equal(t, grouping.AttributeRule{Code: "color", Values: []string{"red"}}, red.Rule)
	assert.Nil(t, red.Position)

	sale, err := res.Registry.Lookup(11)
	require.NoError(t, err)
	assert.Equal(t, grouping.OnSaleRule{}, sale.Rule)
	assert.Equal(t, queryir.Column{Field: "sort_order"}, sale.Position)

	budget, err := res.Registry.Lookup(12)
	require.NoError(t, err)
	assert.Equal(t, grouping.PriceRangeRule{Min: 0, Max: 2000}, budget.Rule)
	assert.Equal(t, queryir.Const{Value: 5}, budget.Position)

	newRed, err := res.Registry.Lookup(14)
	require.NoError(t, err)
	assert.Equal(t, grouping.AllOf{Rules: []grouping.Rule{
		grouping.NewArrivalsRule{WithinDays: 30},
		grouping.AttributeRule{Code: "color", Values: []string{"red"}},
	}}, newRed.Rule)

	retired, err := res.Registry.Lookup(15)
	require.NoError(t, err)
	assert.False(t, retired.Enabled)
	assert.Equal(t, grouping.FieldRule{Field: "status", Values: []ir.IRValue{ir.IRInt(2)}}, retired.Rule)
}

func TestLoadGroupingsNotFound(t *testing.T) {
	_, errs := LoadGroupings("/nonexistent/groupings", LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNotFound)
}

func TestLoadGroupingsNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.cue")
	require.NoError(t, os.WriteFile(file, []byte("package x\n"), 0o644))

	_, errs := LoadGroupings(file, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "not a directory")
}

func TestLoadGroupingsNoFiles(t *testing.T) {
	_, errs := LoadGroupings(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
}

func TestLoadGroupingsSyntaxError(t *testing.T) {
	dir := writeCUE(t, "package g\n\ngrouping: x: {\n")
	_, errs := LoadGroupings(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeLoadFailed)
}

func TestLoadGroupingsEmpty(t *testing.T) {
	dir := writeCUE(t, "package g\n\nother: 1\n")
	res, errs := LoadGroupings(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoGroupings)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Registry.Len())
}

func TestLoadGroupingsSchemaViolation(t *testing.T) {
	dir := writeCUE(t, `package g

grouping: bad: {
	id:   0
	kind: "attribute"
	rule: {code: "color", values: ["red"]}
}
`)
	_, errs := LoadGroupings(dir, LoadModeFailFast)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Equal(t, ErrCodeSchema, loadErr.Code)
	assert.Contains(t, loadErr.Message, "grouping.bad")
}

func TestLoadGroupingsUnknownField(t *testing.T) {
	dir := writeCUE(t, `package g

grouping: bad: {
	id:      3
	kind:    "on_sale"
	colour:  "red"
}
`)
	_, errs := LoadGroupings(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeSchema)
}

func TestLoadGroupingsRejectsFloats(t *testing.T) {
	dir := writeCUE(t, `package g

grouping: cheap: {
	id:   3
	kind: "price_range"
	rule: {min: 0, max: 19.99}
}
`)
	_, errs := LoadGroupings(dir, LoadModeFailFast)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Equal(t, ErrCodeInvalidType, loadErr.Code)
	assert.True(t, loadErr.Pos.IsValid())
}

func TestLoadGroupingsBadRuleParams(t *testing.T) {
	dir := writeCUE(t, `package g

grouping: bad: {
	id:   3
	kind: "attribute"
	rule: {code: "color", value: "red"}
}
`)
	_, errs := LoadGroupings(dir, LoadModeFailFast)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Equal(t, ErrCodeInvalidRule, loadErr.Code)
	assert.Contains(t, loadErr.Message, "unknown parameter")
}

func TestLoadGroupingsBadPosition(t *testing.T) {
	dir := writeCUE(t, `package g

grouping: bad: {
	id:   3
	kind: "on_sale"
	position: {const: 1, column: "sort_order"}
}
`)
	_, errs := LoadGroupings(dir, LoadModeFailFast)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Equal(t, ErrCodeInvalidPos, loadErr.Code)
}

func TestLoadGroupingsDuplicateID(t *testing.T) {
	dir := writeCUE(t, `package g

grouping: a: {id: 3, kind: "on_sale"}
grouping: b: {id: 3, kind: "on_sale"}
`)
	res, errs := LoadGroupings(dir, LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeDuplicateID)
	assert.Equal(t, 1, res.Registry.Len())
}

func TestLoadGroupingsCollectAllVersusFailFast(t *testing.T) {
	src := `package g

grouping: a: {id: 1, kind: "attribute", rule: {code: "color"}}
grouping: b: {id: 2, kind: "price_range", rule: {min: 1.5}}
grouping: c: {id: 3, kind: "on_sale"}
`
	dir := writeCUE(t, src)

	_, errs := LoadGroupings(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)

	res, errs := LoadGroupings(dir, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	assert.Equal(t, 1, res.Registry.Len())
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "rule", Message: "bad"}
	assert.Equal(t, "rule: bad", err.Error())

	loadErr := &LoadError{Code: ErrCodeGeneric, Message: "boom"}
	assert.Equal(t, "E001: boom", loadErr.Error())
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeSchema, MapFieldToErrorCode("schema"))
	assert.Equal(t, ErrCodeInvalidType, MapFieldToErrorCode("type"))
	assert.Equal(t, ErrCodeInvalidRule, MapFieldToErrorCode("rule"))
	assert.Equal(t, ErrCodeInvalidPos, MapFieldToErrorCode("position"))
	assert.Equal(t, ErrCodeDuplicateID, MapFieldToErrorCode("id"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("other"))
}
