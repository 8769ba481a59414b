package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"
)

// Load error codes (E001-E009)
const (
	ErrCodeNotFound    = "E001" // path not found
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no definition files found
	ErrCodeParseFailed = "E004" // YAML parse failed
	ErrCodeLoadFailed  = "E005" // CUE load or build failed
	ErrCodeDecode      = "E006" // CUE value does not decode into definitions
)

// LoadError is a problem reading definition files.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir reads every *.yaml, *.yml and *.cue file under path (or the
// single file path names) and merges them. YAML files are merged in
// lexical order; all CUE files in the directory form one instance.
func LoadDir(path string) (Definitions, error) {
	var defs Definitions

	info, err := os.Stat(path)
	if err != nil {
		return defs, &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}
	}

	var yamlFiles, cueFiles []string
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch filepath.Ext(p) {
			case ".yaml", ".yml":
				yamlFiles = append(yamlFiles, p)
			case ".cue":
				cueFiles = append(cueFiles, p)
			}
			return nil
		})
		if err != nil {
			return defs, &LoadError{Code: ErrCodeScanError, Path: path, Message: err.Error()}
		}
	} else {
		switch filepath.Ext(path) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		default:
			yamlFiles = append(yamlFiles, path)
		}
	}
	if len(yamlFiles) == 0 && len(cueFiles) == 0 {
		return defs, &LoadError{Code: ErrCodeNoFiles, Path: path, Message: "no .yaml, .yml or .cue files"}
	}

	slices.Sort(yamlFiles)
	for _, f := range yamlFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return defs, &LoadError{Code: ErrCodeNotFound, Path: f, Message: err.Error()}
		}
		d, err := ParseYAML(data)
		if err != nil {
			return defs, &LoadError{Code: ErrCodeParseFailed, Path: f, Message: err.Error()}
		}
		defs.Merge(d)
	}

	if len(cueFiles) > 0 {
		d, err := loadCUE(path, info.IsDir(), cueFiles)
		if err != nil {
			return defs, err
		}
		defs.Merge(d)
	}
	return defs, nil
}

// ParseYAML decodes one definitions document.
func ParseYAML(data []byte) (Definitions, error) {
	var d Definitions
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Definitions{}, err
	}
	return d, nil
}

// ParseCUE compiles CUE source and decodes its modules and routes fields.
func ParseCUE(src string) (Definitions, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return Definitions{}, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	return decodeCUE(v)
}

func loadCUE(path string, isDir bool, files []string) (Definitions, error) {
	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !isDir {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(files[0])}
	}
	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return Definitions{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return Definitions{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: inst.Err.Error()}
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return Definitions{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}
	return decodeCUE(v)
}

func decodeCUE(v cue.Value) (Definitions, error) {
	var d Definitions
	if mods := v.LookupPath(cue.ParsePath("modules")); mods.Exists() {
		if err := mods.Decode(&d.Modules); err != nil {
			return Definitions{}, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("modules: %v", err)}
		}
	}
	if routes := v.LookupPath(cue.ParsePath("routes")); routes.Exists() {
		if err := routes.Decode(&d.Routes); err != nil {
			return Definitions{}, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("routes: %v", err)}
		}
	}
	return d, nil
}

// Load reads definitions from path and builds a Registry.
func Load(path string) (*Registry, error) {
	defs, err := LoadDir(path)
	if err != nil {
		return nil, err
	}
	return New(defs)
}

// IsLoadError reports whether err came from reading files rather than
// from validation.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
