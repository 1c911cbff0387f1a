package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ranklist/internal/engine"
	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/scope"
)

//go:embed schema.cue
var schemaSource string

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"

	ErrCodeInvalidList  = "E101" // definition does not match #List
	ErrCodeInvalidScope = "E111"
	ErrCodeInvalidKind  = "E112"
)

// LoadError is an error found while loading a config directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ListDef is one list definition.
type ListDef struct {
	Name       string
	Table      string
	Column     string
	PrimaryKey string
	Scope      *ScopeDef
	Kind       *KindDef
}

// ScopeDef holds exactly one of Field or Predicate.
type ScopeDef struct {
	Field     string
	Predicate string
}

// KindDef names a discriminator column and the value rows of this list carry.
type KindDef struct {
	Column string
	Value  ir.IRValue
}

// EngineConfig converts the definition to the engine's configuration.
func (d ListDef) EngineConfig() engine.Config {
	cfg := engine.Config{
		Table:      d.Table,
		Column:     d.Column,
		PrimaryKey: d.PrimaryKey,
	}
	if d.Scope != nil {
		switch {
		case d.Scope.Field != "":
			cfg.Scope = scope.Field(d.Scope.Field)
		case d.Scope.Predicate != "":
			cfg.Scope = scope.Fixed(d.Scope.Predicate)
		}
	}
	if d.Kind != nil {
		cfg.Kind = &engine.Kind{Column: d.Kind.Column, Value: d.Kind.Value}
	}
	return cfg
}

// Result contains the lists read from a directory.
type Result struct {
	Lists     []ListDef // sorted by name
	CUEValue  cue.Value // unified with the schema
	FileCount int
}

// Find returns the list named name.
func (r *Result) Find(name string) (ListDef, bool) {
	return Find(r.Lists, name)
}

// Find returns the list named name.
func Find(defs []ListDef, name string) (ListDef, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return ListDef{}, false
}

// Load reads every list in dir, stopping at the first error.
func Load(dir string) ([]ListDef, error) {
	res, errs := LoadDir(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return res.Lists, nil
}

// LoadDir reads the CUE package in dir and unifies it with the embedded
// schema. In LoadModeCollectAll every invalid list is reported.
func LoadDir(dir string, mode LoadMode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	user := ctx.BuildInstance(inst)
	if err := user.Err(); err != nil {
		return nil, []error{cueError(ErrCodeBuildFailed, err)}
	}
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("schema: %v", err)}}
	}
	value := schema.Unify(user)

	res := &Result{CUEValue: value, FileCount: len(files)}
	var errs []error

	lists := value.LookupPath(cue.ParsePath("list"))
	if !lists.Exists() {
		return res, []error{&LoadError{Code: ErrCodeGeneric, Message: "no lists defined"}}
	}
	iter, err := lists.Fields()
	if err != nil {
		return res, []error{cueError(ErrCodeInvalidList, err)}
	}
	for iter.Next() {
		def, err := parseList(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return res, errs
			}
			continue
		}
		res.Lists = append(res.Lists, *def)
	}
	sort.Slice(res.Lists, func(i, j int) bool { return res.Lists[i].Name < res.Lists[j].Name })

	if len(res.Lists) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no lists defined"})
	}
	return res, errs
}

func parseList(name string, v cue.Value) (*ListDef, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(codeFor(err), err)
	}

	def := &ListDef{Name: name}
	var err error
	if def.Table, err = stringAt(v, "table"); err != nil {
		return nil, err
	}
	if def.Column, err = stringAt(v, "column"); err != nil {
		return nil, err
	}
	if def.PrimaryKey, err = stringAt(v, "primary_key"); err != nil {
		return nil, err
	}

	if sv := v.LookupPath(cue.ParsePath("scope")); sv.Exists() {
		sd := &ScopeDef{}
		if sd.Field, err = stringAt(sv, "field"); err != nil {
			return nil, err
		}
		if sd.Predicate, err = stringAt(sv, "predicate"); err != nil {
			return nil, err
		}
		if (sd.Field == "") == (sd.Predicate == "") {
			return nil, &LoadError{Code: ErrCodeInvalidScope, Message: fmt.Sprintf("list %s: scope needs exactly one of field or predicate", name), Pos: sv.Pos()}
		}
		def.Scope = sd
	}

	if kv := v.LookupPath(cue.ParsePath("kind")); kv.Exists() {
		kd := &KindDef{}
		if kd.Column, err = stringAt(kv, "column"); err != nil {
			return nil, err
		}
		if kd.Value, err = scalarAt(kv, "value"); err != nil {
			return nil, err
		}
		def.Kind = kd
	}
	return def, nil
}

// stringAt returns the string at path, its default when it has one, or ""
// when the field is absent.
func stringAt(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	if d, ok := fv.Default(); ok {
		fv = d
	}
	s, err := fv.String()
	if err != nil {
		return "", cueError(ErrCodeInvalidList, err)
	}
	return s, nil
}

func scalarAt(v cue.Value, path string) (ir.IRValue, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	switch fv.Kind() {
	case cue.StringKind:
		s, err := fv.String()
		if err != nil {
			return nil, cueError(ErrCodeInvalidKind, err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		i, err := fv.Int64()
		if err != nil {
			return nil, cueError(ErrCodeInvalidKind, err)
		}
		return ir.IRInt(i), nil
	case cue.BoolKind:
		b, err := fv.Bool()
		if err != nil {
			return nil, cueError(ErrCodeInvalidKind, err)
		}
		return ir.IRBool(b), nil
	default:
		return nil, &LoadError{Code: ErrCodeInvalidKind, Message: fmt.Sprintf("kind value must be a string, int or bool, got %v", fv.Kind()), Pos: fv.Pos()}
	}
}

// cueError converts a CUE error to a LoadError carrying the first position.
func cueError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}

// codeFor picks the error code from the path of the first CUE error.
func codeFor(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return ErrCodeInvalidList
	}
	for _, sel := range errs[0].Path() {
		switch sel {
		case "scope":
			return ErrCodeInvalidScope
		case "kind":
			return ErrCodeInvalidKind
		}
	}
	return ErrCodeInvalidList
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// IsLoadError reports whether err is a LoadError with the given code.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == code
}
