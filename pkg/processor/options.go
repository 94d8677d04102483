package processor

import (
	"os"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v3"
)

// Options is the configuration surface of §6: "a configuration with
// the recognized options {evil_json: ...}". SPEC_FULL's domain-stack
// wiring adds a per-ISA scan-distance map and a symbol search-path
// list, both loadable from a YAML file through LoadOptions.
type Options struct {
	// EvilJSON is an optional path to the legacy side-channel JSON
	// file providing thread names and certificate info (§6).
	EvilJSON string `yaml:"evil_json"`

	// SymbolSearchPath is a shell-quoted, possibly environment-variable
	// bearing string of directories the symbol supplier should search,
	// e.g. `"$HOME/.symbols" /var/symbols`. Tokenized with argv.Argv
	// rather than strings.Fields so quoted paths containing spaces
	// survive.
	SymbolSearchPath string `yaml:"symbol_search_path"`

	// MaxScanDistance holds per-ISA scan-strategy bounds (§9 "scan
	// tuning"), keyed by cpucontext.Arch.String(). It is carried on
	// Options only: the unwinders do not read it and always use their
	// per-ISA compiled-in constants.
	MaxScanDistance map[string]uint64 `yaml:"max_scan_distance"`
}

// LoadOptions reads a YAML options file. Any read error, including a
// missing file, is returned; the caller decides whether that's
// acceptable. The mdwalk CLI does not call it and builds Options from
// its own flags.
func LoadOptions(path string) (*Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var opts Options
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// SearchPaths tokenizes SymbolSearchPath the way the CLI tokenizes
// command strings: shell-style quoting and $VAR environment expansion,
// via the same argv library delve uses for its command-line reader.
func (o *Options) SearchPaths() ([]string, error) {
	if o == nil || o.SymbolSearchPath == "" {
		return nil, nil
	}
	groups, err := argv.Argv(o.SymbolSearchPath, os.Getenv, nil)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return groups[0], nil
}
