// Package custodian translates calculation inputs into the spec file
// consumed by the custodian executable, which wraps VASP with its error
// handlers. The retry loop itself lives in custodian; cusp only configures
// and launches it.
package custodian

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// SpecFileName is the input file written for the custodian executable.
	SpecFileName = "cstdn_spec.yaml"
	// RunLogName is the log file custodian writes during the run.
	RunLogName = "run.log"

	handlerImportPath = "custodian.vasp.handlers"
	vaspJobImport     = "custodian.vasp.jobs.VaspJob"
	vaspNEBJobImport  = "custodian.vasp.jobs.VaspNEBJob"
)

// knownHandlers is the set of error handler classes shipped with
// custodian.vasp.handlers.
var knownHandlers = map[string]bool{
	"AliasingErrorHandler":       true,
	"DriftErrorHandler":          true,
	"FrozenJobErrorHandler":      true,
	"IncorrectSmearingHandler":   true,
	"LargeSigmaHandler":          true,
	"LrfCommutatorHandler":       true,
	"MeshSymmetryErrorHandler":   true,
	"NonConvergingErrorHandler":  true,
	"PositiveEnergyErrorHandler": true,
	"PotimErrorHandler":          true,
	"ScanMetalHandler":           true,
	"StdErrHandler":              true,
	"UnconvergedErrorHandler":    true,
	"VaspErrorHandler":           true,
	"WalltimeHandler":            true,
}

// defaultSettings are the custodian parameters written to the spec unless
// overridden through the calculation's custodian settings input.
func defaultSettings() map[string]interface{} {
	return map[string]interface{}{
		"max_errors":                      10,
		"polling_time_step":               10,
		"monitor_freq":                    30,
		"skip_over_errors":                false,
		"gzipped_output":                  false,
		"checkpoint":                      false,
		"terminate_on_nonzero_returncode": false,
	}
}

// Options carries the custodian inputs attached to a calculation.
type Options struct {
	// Settings overrides the default custodian parameters.
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
	// Handlers maps handler class names to their constructor parameters.
	Handlers map[string]map[string]interface{} `json:"handlers,omitempty" yaml:"handlers,omitempty"`
}

// HandlersFromNames expands a bare list of handler names into the handler
// map form, with empty parameter sets selecting the handler defaults.
func HandlersFromNames(names []string) map[string]map[string]interface{} {
	handlers := make(map[string]map[string]interface{}, len(names))
	for _, name := range names {
		handlers[name] = map[string]interface{}{}
	}
	return handlers
}

// Settings is the validated configuration the spec file is generated from.
type Settings struct {
	vaspCmd  []string
	stdout   string
	stderr   string
	params   map[string]interface{}
	handlers map[string]map[string]interface{}
	isNEB    bool
}

// NewSettings validates the custodian options for a run of the given VASP
// command line. stdout and stderr name the log files the wrapped VASP
// process writes to.
func NewSettings(vaspCmd []string, stdout, stderr string, opts Options, isNEB bool) (*Settings, error) {
	if len(vaspCmd) == 0 {
		return nil, fmt.Errorf("missing non-optional parameter vasp_cmd")
	}
	if stdout == "" {
		return nil, fmt.Errorf("missing non-optional parameter stdout")
	}
	if stderr == "" {
		return nil, fmt.Errorf("missing non-optional parameter stderr")
	}

	params := defaultSettings()
	for key, value := range opts.Settings {
		if _, ok := params[key]; !ok {
			return nil, fmt.Errorf("got an invalid custodian setting %q", key)
		}
		params[key] = value
	}

	handlers := make(map[string]map[string]interface{}, len(opts.Handlers))
	for name, handlerParams := range opts.Handlers {
		if !knownHandlers[name] {
			return nil, fmt.Errorf("unknown error handler %q", name)
		}
		if handlerParams == nil {
			handlerParams = map[string]interface{}{}
		}
		handlers[name] = handlerParams
	}

	return &Settings{
		vaspCmd:  vaspCmd,
		stdout:   stdout,
		stderr:   stderr,
		params:   params,
		handlers: handlers,
		isNEB:    isNEB,
	}, nil
}

// spec file document structure, matching what "cstdn run" expects
type specJob struct {
	Import string                 `yaml:"jb"`
	Params map[string]interface{} `yaml:"params"`
}

type specHandler struct {
	Import string                 `yaml:"hdlr"`
	Params map[string]interface{} `yaml:"params"`
}

type specDocument struct {
	Jobs            []specJob              `yaml:"jobs"`
	CustodianParams map[string]interface{} `yaml:"custodian_params"`
	Handlers        []specHandler          `yaml:"handlers"`
}

func (s *Settings) document() specDocument {
	jobImport := vaspJobImport
	if s.isNEB {
		jobImport = vaspNEBJobImport
	}
	doc := specDocument{
		Jobs: []specJob{{
			Import: jobImport,
			Params: map[string]interface{}{
				"$vasp_cmd":   s.vaspCmd,
				"output_file": s.stdout,
				"stderr_file": s.stderr,
			},
		}},
		CustodianParams: s.params,
	}
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Handlers = append(doc.Handlers, specHandler{
			Import: fmt.Sprintf("%s.%s", handlerImportPath, name),
			Params: s.handlers[name],
		})
	}
	return doc
}

// WriteSpec writes the custodian spec file to the given path.
func (s *Settings) WriteSpec(path string) error {
	data, err := yaml.Marshal(s.document())
	if err != nil {
		return fmt.Errorf("failed to render custodian spec: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
