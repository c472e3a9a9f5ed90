package vasp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Incar holds the calculation parameters written to a VASP INCAR file.
// Keys are always stored upper case, values keep their native Go type
// (bool, int64, float64, string or a list of those).
type Incar map[string]interface{}

// NewIncar builds an Incar from the given parameters. Keys of mixed case
// are normalized to upper case. A nil parameter map yields an empty Incar,
// which makes VASP fall back to its internal defaults.
func NewIncar(params map[string]interface{}) Incar {
	incar := make(Incar, len(params))
	for key, value := range params {
		incar[strings.ToUpper(key)] = value
	}
	return incar
}

// Set stores a parameter, normalizing the key to upper case.
func (inc Incar) Set(key string, value interface{}) {
	inc[strings.ToUpper(key)] = value
}

// Get returns the parameter stored under key (case insensitive).
func (inc Incar) Get(key string) (interface{}, bool) {
	value, ok := inc[strings.ToUpper(key)]
	return value, ok
}

// String renders the INCAR file contents with parameters sorted by key.
func (inc Incar) String() string {
	keys := make([]string, 0, len(inc))
	for key := range inc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&sb, "%s = %s\n", key, formatIncarValue(inc[key]))
	}
	return sb.String()
}

// Write writes the INCAR file contents to w.
func (inc Incar) Write(w io.Writer) error {
	_, err := io.WriteString(w, inc.String())
	return err
}

// WriteFile writes the INCAR file to the given path.
func (inc Incar) WriteFile(path string) error {
	return os.WriteFile(path, []byte(inc.String()), 0644)
}

func formatIncarValue(value interface{}) string {
	switch v := value.(type) {
	case bool:
		if v {
			return ".TRUE."
		}
		return ".FALSE."
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'G', -1, 64)
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatIncarValue(item))
		}
		return strings.Join(parts, " ")
	case []int:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, strconv.Itoa(item))
		}
		return strings.Join(parts, " ")
	case []float64:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, strconv.FormatFloat(item, 'G', -1, 64))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ParseIncar reads INCAR file contents. Comments introduced by '#' or '!'
// are stripped and multiple assignments on one line may be separated by
// semicolons, as VASP allows.
func ParseIncar(r io.Reader) (Incar, error) {
	incar := Incar{}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if idx := strings.IndexAny(line, "#!"); idx >= 0 {
			line = line[:idx]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			key, value, found := strings.Cut(stmt, "=")
			if !found {
				return nil, fmt.Errorf("malformed INCAR statement %q on line %d", stmt, lineno)
			}
			incar[strings.ToUpper(strings.TrimSpace(key))] = parseIncarValue(strings.TrimSpace(value))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read INCAR contents: %w", err)
	}
	return incar, nil
}

// ParseIncarFile reads an INCAR file from disk.
func ParseIncarFile(path string) (Incar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIncar(f)
}

func parseIncarValue(raw string) interface{} {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) == 1 && !strings.Contains(tokens[0], "*") {
		return parseIncarScalar(tokens[0])
	}
	// multi-valued parameters (MAGMOM, LDAUU, ...) including the N*value
	// repetition shorthand
	list := make([]interface{}, 0, len(tokens))
	for _, token := range tokens {
		count, item, found := strings.Cut(token, "*")
		if found {
			n, err := strconv.Atoi(count)
			if err != nil || n < 1 {
				return raw // not a repetition, keep the raw string
			}
			value := parseIncarScalar(item)
			for i := 0; i < n; i++ {
				list = append(list, value)
			}
			continue
		}
		list = append(list, parseIncarScalar(token))
	}
	return list
}

func parseIncarScalar(token string) interface{} {
	switch strings.ToUpper(token) {
	case ".TRUE.", "T", "TRUE":
		return true
	case ".FALSE.", "F", "FALSE":
		return false
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}
