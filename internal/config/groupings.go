package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// LoadMode controls how errors are handled while loading groupings.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes shared by the loader and the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	ErrCodeSchema      = "E101" // Value violates the grouping schema
	ErrCodeInvalidType = "E104" // Unsupported value type (e.g., float)
	ErrCodeInvalidRule = "E110" // Rule parameters rejected
	ErrCodeInvalidPos  = "E111" // Position expression rejected
	ErrCodeDuplicateID = "E112" // Two groupings share an id
	ErrCodeNoGroupings = "E113" // Files contain no groupings
)

// MapFieldToErrorCode maps a compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue", "schema":
		return ErrCodeSchema
	case "type":
		return ErrCodeInvalidType
	case "rule", "kind":
		return ErrCodeInvalidRule
	case "position":
		return ErrCodeInvalidPos
	case "id":
		return ErrCodeDuplicateID
	default:
		return ErrCodeGeneric
	}
}

// CompileError is a grouping definition problem with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadError is an error raised while loading a groupings directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// GroupingsResult is what LoadGroupings found.
type GroupingsResult struct {
	Registry  *grouping.Registry
	FileCount int
}

// LoadGroupings compiles every `grouping: <name>: {...}` entry in the CUE
// package at dir into a registry. With LoadModeFailFast it returns on the
// first error; otherwise it skips bad groupings and reports all of them.
func LoadGroupings(dir string, mode LoadMode) (*GroupingsResult, []error) {
	root, files, lerr := buildPackage(dir)
	if lerr != nil {
		return nil, []error{lerr}
	}

	result := &GroupingsResult{Registry: grouping.NewRegistry(), FileCount: files}
	var errs []error

	entries := root.LookupPath(cue.ParsePath("grouping"))
	if !entries.Exists() {
		return result, []error{loadErr(ErrCodeNoGroupings, "no groupings found")}
	}
	iter, err := entries.Fields()
	if err != nil {
		return result, []error{loadErr(ErrCodeGeneric, "iterating groupings: %v", err)}
	}
	for iter.Next() {
		name, v := iter.Label(), iter.Value()
		if err := registerGrouping(result.Registry, name, v); err != nil {
			errs = append(errs, convertCompileError(err, "grouping."+name))
			if mode == LoadModeFailFast {
				return result, errs
			}
		}
	}

	if result.Registry.Len() == 0 && len(errs) == 0 {
		errs = append(errs, loadErr(ErrCodeNoGroupings, "no groupings found"))
	}
	return result, errs
}

func registerGrouping(reg *grouping.Registry, name string, v cue.Value) error {
	g, err := CompileGrouping(name, v)
	if err != nil {
		return err
	}
	if err := reg.Register(g); err != nil {
		return &CompileError{Field: "id", Message: err.Error(), Pos: v.Pos()}
	}
	return nil
}

func loadErr(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// buildPackage loads the CUE package rooted at dir and reports how many
// .cue files it contains.
func buildPackage(dir string) (cue.Value, int, *LoadError) {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return cue.Value{}, 0, loadErr(ErrCodeNotFound, "groupings directory not found: %s", dir)
	case err != nil:
		return cue.Value{}, 0, loadErr(ErrCodeNotFound, "error accessing groupings directory: %v", err)
	case !info.IsDir():
		return cue.Value{}, 0, loadErr(ErrCodeNotFound, "not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, 0, loadErr(ErrCodeScanError, "error scanning directory: %v", err)
	}
	if len(files) == 0 {
		return cue.Value{}, 0, loadErr(ErrCodeNoFiles, "no CUE files found in %s", dir)
	}

	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return cue.Value{}, 0, loadErr(ErrCodeLoadFailed, "no CUE instances loaded")
	}
	if insts[0].Err != nil {
		return cue.Value{}, 0, loadErr(ErrCodeLoadFailed, "loading CUE files: %v", insts[0].Err)
	}
	v := cuecontext.New().BuildInstance(insts[0])
	if err := v.Err(); err != nil {
		return cue.Value{}, 0, loadErr(ErrCodeBuildFailed, "building CUE value: %v", err)
	}
	return v, len(files), nil
}

// FindCUEFiles returns every .cue file under dir.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() || filepath.Ext(path) != ".cue":
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// CompileGrouping checks v against the grouping schema and builds the
// grouping it describes.
func CompileGrouping(name string, v cue.Value) (grouping.Grouping, error) {
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return grouping.Grouping{}, fmt.Errorf("grouping schema: %w", err)
	}
	u := schema.LookupPath(cue.ParsePath("#Grouping")).Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return grouping.Grouping{}, formatCUEError(err)
	}

	g := grouping.Grouping{Name: name}
	var err error
	if g.ID, err = u.LookupPath(cue.ParsePath("id")).Int64(); err != nil {
		return grouping.Grouping{}, formatCUEError(err)
	}
	if g.Enabled, err = u.LookupPath(cue.ParsePath("enabled")).Bool(); err != nil {
		return grouping.Grouping{}, formatCUEError(err)
	}
	kind, err := u.LookupPath(cue.ParsePath("kind")).String()
	if err != nil {
		return grouping.Grouping{}, formatCUEError(err)
	}

	params := ir.IRObject{}
	if ruleVal := u.LookupPath(cue.ParsePath("rule")); ruleVal.Exists() {
		params, err = toObject(ruleVal)
		if err != nil {
			return grouping.Grouping{}, err
		}
	}
	g.Rule, err = grouping.Build(grouping.Kind(kind), params)
	if err != nil {
		return grouping.Grouping{}, &CompileError{Field: "rule", Message: err.Error(), Pos: v.Pos()}
	}

	if posVal := u.LookupPath(cue.ParsePath("position")); posVal.Exists() {
		def, err := toObject(posVal)
		if err != nil {
			return grouping.Grouping{}, err
		}
		if len(def) == 0 {
			def = nil
		}
		if g.Position, err = grouping.ParsePosition(def); err != nil {
			return grouping.Grouping{}, &CompileError{Field: "position", Message: err.Error(), Pos: posVal.Pos()}
		}
	}

	if err := g.Validate(); err != nil {
		return grouping.Grouping{}, &CompileError{Field: "rule", Message: err.Error(), Pos: v.Pos()}
	}
	return g, nil
}

func toObject(v cue.Value) (ir.IRObject, error) {
	val, err := toIR(v)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.IRObject)
	if !ok {
		return nil, &CompileError{Field: "type", Message: "expected a struct", Pos: v.Pos()}
	}
	return obj, nil
}

// toIR converts a concrete CUE value. Floats and nulls are rejected.
func toIR(v cue.Value) (ir.IRValue, error) {
	var (
		out ir.IRValue
		err error
	)
	switch kind := v.Kind(); kind {
	case cue.StringKind:
		var s string
		s, err = v.String()
		out = ir.IRString(s)
	case cue.IntKind:
		var n int64
		n, err = v.Int64()
		out = ir.IRInt(n)
	case cue.BoolKind:
		var b bool
		b, err = v.Bool()
		out = ir.IRBool(b)
	case cue.ListKind:
		return listToIR(v)
	case cue.StructKind:
		return structToIR(v)
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: "type", Message: "floats are not supported, use integers (minor units for prices)", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: "type", Message: fmt.Sprintf("unsupported value of kind %s", kind), Pos: v.Pos()}
	}
	if err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

func listToIR(v cue.Value) (ir.IRValue, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := ir.IRArray{}
	for iter.Next() {
		elem, err := toIR(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}

func structToIR(v cue.Value) (ir.IRValue, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := ir.IRObject{}
	for iter.Next() {
		elem, err := toIR(iter.Value())
		if err != nil {
			return nil, err
		}
		out[iter.Label()] = elem
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "schema", Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Field: "schema", Message: first.Error()}
}

// convertCompileError converts a compile error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
