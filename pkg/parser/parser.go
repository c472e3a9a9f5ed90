// Package parser turns the files retrieved from a finished VASP run into
// archived calculation outputs. It deliberately does not interpret file
// contents beyond classification: files in, compressed files out, so every
// kind of VASP calculation can use the same parser.
package parser

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/archive"
	"github.com/cusptools/cusp/pkg/vasp"
)

// Errors mirroring the parser's failure modes.
var (
	ErrRetrievedFolderMissing = fmt.Errorf("the retrieved folder is not available")
	ErrUnknownParserSetting   = fmt.Errorf("unknown parser setting")
	ErrParsingListEmpty       = fmt.Errorf("requested output files not found among the retrieved files")
	ErrDuplicateLinkname      = fmt.Errorf("duplicate output linkname")
)

// ManifestName is the output listing written next to the archived outputs.
const ManifestName = "outputs.json"

// nebSubfolder matches the two-digit image folders of NEB runs.
var nebSubfolder = regexp.MustCompile(`^[0-9]{2}$`)

// DefaultParseList is used when no parse_files option is given.
func DefaultParseList() []string {
	return []string{vasp.ContcarName, vasp.VasprunName, vasp.OutcarName}
}

// Options configure a parser run.
type Options struct {
	// ParseFiles lists file names, wildcards (W*.tmp, *) or lower-case
	// identifiers of known output files (contcar, oszicar) to pick from
	// the retrieved folder.
	ParseFiles []string `json:"parse_files,omitempty" yaml:"parse_files,omitempty"`
	// FailOnMissingFiles turns an empty parse list into an error.
	FailOnMissingFiles bool `json:"fail_on_missing_files,omitempty" yaml:"fail_on_missing_files,omitempty"`
}

// OptionsFromMap builds Options from a loose settings map, rejecting
// unknown keys.
func OptionsFromMap(settings map[string]interface{}) (Options, error) {
	opts := Options{}
	for key, value := range settings {
		switch key {
		case "parse_files":
			list, ok := toStringList(value)
			if !ok {
				return opts, pkgerrors.Wrapf(ErrUnknownParserSetting, "parse_files: expected a list of names, got %T", value)
			}
			opts.ParseFiles = list
		case "fail_on_missing_files":
			b, ok := value.(bool)
			if !ok {
				return opts, pkgerrors.Wrapf(ErrUnknownParserSetting, "fail_on_missing_files: expected a bool, got %T", value)
			}
			opts.FailOnMissingFiles = b
		default:
			return opts, pkgerrors.Wrapf(ErrUnknownParserSetting, "%s", key)
		}
	}
	return opts, nil
}

func toStringList(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		list := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			list = append(list, s)
		}
		return list, true
	}
	return nil, false
}

// Output is one archived calculation result.
type Output struct {
	// Linkname identifies the output: the lower-cased file name with dots
	// replaced by underscores, prefixed with node_NN. for files from NEB
	// image folders.
	Linkname string `json:"linkname"`
	// Kind is the classified file type (vasprun_xml, outcar, contcar,
	// chgcar, wavecar or generic).
	Kind string `json:"kind"`
	// Source is the file's path relative to the retrieved folder.
	Source string `json:"source"`
	// Archive is the compressed output file relative to the output folder.
	Archive string `json:"archive"`
}

// Result lists the outputs of one parser run.
type Result struct {
	Outputs []Output `json:"outputs"`
}

// Parse picks the requested files from retrievedDir and stores them as gzip
// archives plus a manifest in outputDir.
func Parse(retrievedDir, outputDir string, opts Options) (*Result, error) {
	info, err := os.Stat(retrievedDir)
	if err != nil || !info.IsDir() {
		return nil, pkgerrors.Wrapf(ErrRetrievedFolderMissing, "%s", retrievedDir)
	}

	files, err := buildParseList(retrievedDir, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	result := &Result{}
	seen := map[string]bool{}
	for _, rel := range files {
		output, err := parseFile(retrievedDir, outputDir, rel)
		if err != nil {
			return nil, err
		}
		if seen[output.Linkname] {
			return nil, pkgerrors.Wrapf(ErrDuplicateLinkname, "%s", output.Linkname)
		}
		seen[output.Linkname] = true
		result.Outputs = append(result.Outputs, *output)
	}

	manifest, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outputDir, ManifestName), manifest, 0644); err != nil {
		return nil, err
	}
	return result, nil
}

// canonicalPattern maps the lower-case identifier of a known output file
// (contcar, oszicar) to its canonical name; anything else passes through
// as a name or wildcard pattern.
func canonicalPattern(pattern string) string {
	if name, ok := vasp.OutputFilenames[pattern]; ok {
		return name
	}
	return pattern
}

// buildParseList collects the files matching the requested names or
// wildcards, relative to the retrieved folder. POTCAR files are never
// parsed and every file is listed at most once.
func buildParseList(retrievedDir string, opts Options) ([]string, error) {
	requested := opts.ParseFiles
	if requested == nil {
		requested = DefaultParseList()
	}
	patterns := make([]string, len(requested))
	for i, pattern := range requested {
		patterns[i] = canonicalPattern(pattern)
	}
	seen := map[string]bool{}
	var files []string
	err := filepath.WalkDir(retrievedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == vasp.PotcarName {
			return nil
		}
		for _, pattern := range patterns {
			matched, merr := filepath.Match(pattern, d.Name())
			if merr != nil {
				return pkgerrors.Wrapf(ErrUnknownParserSetting, "bad pattern %q", pattern)
			}
			if matched {
				rel, rerr := filepath.Rel(retrievedDir, path)
				if rerr != nil {
					return rerr
				}
				if !seen[rel] {
					seen[rel] = true
					files = append(files, rel)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 && opts.FailOnMissingFiles {
		return nil, ErrParsingListEmpty
	}
	sort.Strings(files)
	return files, nil
}

func parseFile(retrievedDir, outputDir, rel string) (*Output, error) {
	src := filepath.Join(retrievedDir, rel)
	kind := classify(filepath.Base(rel))

	// structure outputs have to parse as POSCAR-format files
	if kind == "contcar" {
		if _, err := vasp.ParsePoscarFile(src); err != nil {
			return nil, pkgerrors.Wrapf(err, "retrieved %s is not a valid structure file", rel)
		}
	}

	linkname := linknameFor(rel)
	archiveRel := filepath.Base(rel) + archive.Suffix
	if dir := filepath.Dir(rel); dir != "." {
		archiveRel = filepath.Join(dir, archiveRel)
	}
	if _, err := archive.Store(src, filepath.Join(outputDir, archiveRel)); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to archive %s", rel)
	}
	logrus.Debugf("parsed %s as %s (%s)", rel, linkname, kind)
	return &Output{
		Linkname: linkname,
		Kind:     kind,
		Source:   rel,
		Archive:  archiveRel,
	}, nil
}

// classify picks the output type for a retrieved file name; files without a
// dedicated type fall back to generic.
func classify(name string) string {
	switch name {
	case vasp.VasprunName:
		return "vasprun_xml"
	case vasp.OutcarName:
		return "outcar"
	case vasp.ContcarName:
		return "contcar"
	case vasp.ChgcarName:
		return "chgcar"
	case vasp.WavecarName:
		return "wavecar"
	default:
		return "generic"
	}
}

// normalizedFilename lower-cases the file name and replaces dots with
// underscores, turning vasprun.xml into vasprun_xml.
func normalizedFilename(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), ".", "_")
}

// linknameFor derives the output linkname, putting files from NEB image
// folders under their node_NN namespace.
func linknameFor(rel string) string {
	name := normalizedFilename(filepath.Base(rel))
	parent := filepath.Base(filepath.Dir(rel))
	if nebSubfolder.MatchString(parent) {
		return fmt.Sprintf("node_%s.%s", parent, name)
	}
	return name
}
