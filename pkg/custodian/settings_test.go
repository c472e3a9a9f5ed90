package custodian

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

var vaspCmd = []string{"mpirun", "-np", "4", "vasp_std"}

func TestNewSettingsValidation(t *testing.T) {
	if _, err := NewSettings(nil, "cusp.out", "cusp.err", Options{}, false); err == nil {
		t.Errorf("expected an error for a missing vasp command")
	}
	if _, err := NewSettings(vaspCmd, "", "cusp.err", Options{}, false); err == nil {
		t.Errorf("expected an error for a missing stdout name")
	}
	if _, err := NewSettings(vaspCmd, "cusp.out", "", Options{}, false); err == nil {
		t.Errorf("expected an error for a missing stderr name")
	}

	opts := Options{Settings: map[string]interface{}{"max_erors": 5}}
	if _, err := NewSettings(vaspCmd, "cusp.out", "cusp.err", opts, false); err == nil {
		t.Errorf("expected an error for a misspelled setting key")
	}

	opts = Options{Handlers: map[string]map[string]interface{}{"NoSuchHandler": nil}}
	if _, err := NewSettings(vaspCmd, "cusp.out", "cusp.err", opts, false); err == nil {
		t.Errorf("expected an error for an unknown handler")
	}
}

func TestHandlersFromNames(t *testing.T) {
	handlers := HandlersFromNames([]string{"VaspErrorHandler", "StdErrHandler"})
	if len(handlers) != 2 {
		t.Fatalf("got %d handlers, want 2", len(handlers))
	}
	if params, ok := handlers["VaspErrorHandler"]; !ok || len(params) != 0 {
		t.Fatalf("expected an empty parameter set, got %v", params)
	}
}

func writeSpec(t *testing.T, settings *Settings) specDocument {
	t.Helper()
	path := filepath.Join(t.TempDir(), SpecFileName)
	if err := settings.WriteSpec(path); err != nil {
		t.Fatalf("WriteSpec returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc specDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("spec file is not valid YAML: %v", err)
	}
	return doc
}

func TestWriteSpec(t *testing.T) {
	opts := Options{
		Settings: map[string]interface{}{"max_errors": 25},
		Handlers: map[string]map[string]interface{}{
			"VaspErrorHandler": nil,
			"StdErrHandler":    {"output_filename": "cusp.err"},
		},
	}
	settings, err := NewSettings(vaspCmd, "cusp.out", "cusp.err", opts, false)
	if err != nil {
		t.Fatal(err)
	}
	doc := writeSpec(t, settings)

	if len(doc.Jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(doc.Jobs))
	}
	job := doc.Jobs[0]
	if job.Import != "custodian.vasp.jobs.VaspJob" {
		t.Errorf("job import = %s", job.Import)
	}
	cmd, ok := job.Params["$vasp_cmd"].([]interface{})
	if !ok || len(cmd) != len(vaspCmd) || cmd[0] != "mpirun" {
		t.Errorf("$vasp_cmd = %v", job.Params["$vasp_cmd"])
	}
	if job.Params["output_file"] != "cusp.out" || job.Params["stderr_file"] != "cusp.err" {
		t.Errorf("log file params = %v", job.Params)
	}

	if doc.CustodianParams["max_errors"] != 25 {
		t.Errorf("max_errors override lost: %v", doc.CustodianParams["max_errors"])
	}
	if doc.CustodianParams["monitor_freq"] != 30 {
		t.Errorf("default monitor_freq lost: %v", doc.CustodianParams["monitor_freq"])
	}

	// handlers are sorted by name and prefixed with the import path
	if len(doc.Handlers) != 2 {
		t.Fatalf("got %d handlers, want 2", len(doc.Handlers))
	}
	if doc.Handlers[0].Import != "custodian.vasp.handlers.StdErrHandler" {
		t.Errorf("first handler = %s", doc.Handlers[0].Import)
	}
	if doc.Handlers[0].Params["output_filename"] != "cusp.err" {
		t.Errorf("handler params lost: %v", doc.Handlers[0].Params)
	}
	if doc.Handlers[1].Import != "custodian.vasp.handlers.VaspErrorHandler" {
		t.Errorf("second handler = %s", doc.Handlers[1].Import)
	}
}

func TestWriteSpecNEB(t *testing.T) {
	settings, err := NewSettings(vaspCmd, "cusp.out", "cusp.err", Options{}, true)
	if err != nil {
		t.Fatal(err)
	}
	doc := writeSpec(t, settings)
	if doc.Jobs[0].Import != "custodian.vasp.jobs.VaspNEBJob" {
		t.Errorf("job import = %s", doc.Jobs[0].Import)
	}
	if len(doc.Handlers) != 0 {
		t.Errorf("expected no handlers, got %v", doc.Handlers)
	}
}
