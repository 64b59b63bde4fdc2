package entity

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRegion is the list used for regions without their own.
	DefaultRegion = "default"

	maxExpansions = 5
)

//go:embed first_names.yaml
var builtinFirstNamesYAML []byte

// FirstNames holds, per region, the common first names for each initial.
// It is read-only once built.
//
// Expected YAML format:
//
//	lists:
//	  ru:
//	    и: [иван, игорь]
//	aliases:
//	  region-moscow: [ru]
//	  default: [ru, en]
//
// An alias merges the named lists in order. It may name lists from the
// same file or regions loaded earlier, but not another alias of the same
// file.
type FirstNames struct {
	regions map[string]map[string][]string
}

type firstNamesFile struct {
	Lists   map[string]map[string][]string `yaml:"lists"`
	Aliases map[string][]string            `yaml:"aliases"`
}

// DefaultFirstNames returns the built-in Russian, Czech and English lists.
func DefaultFirstNames() *FirstNames {
	fn := &FirstNames{regions: make(map[string]map[string][]string)}
	if err := fn.merge(builtinFirstNamesYAML); err != nil {
		panic("entity: built-in first names are invalid: " + err.Error())
	}
	return fn
}

// LoadFirstNamesYAML reads a first-name file and layers it over the
// built-in lists. A region defined in the file replaces the built-in one.
func LoadFirstNamesYAML(path string) (*FirstNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fn := DefaultFirstNames()
	if err := fn.merge(data); err != nil {
		return nil, fmt.Errorf("first names %s: %w", path, err)
	}
	return fn, nil
}

func (f *FirstNames) merge(data []byte) error {
	var file firstNamesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for region, lists := range file.Lists {
		f.regions[strings.ToLower(region)] = normalizeLists(lists)
	}
	aliases := make([]string, 0, len(file.Aliases))
	defined := make(map[string]bool, len(file.Aliases))
	for alias := range file.Aliases {
		aliases = append(aliases, alias)
		defined[strings.ToLower(alias)] = true
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		merged := make(map[string][]string)
		for _, src := range file.Aliases[alias] {
			if defined[strings.ToLower(src)] {
				return fmt.Errorf("alias %q refers to alias %q", alias, src)
			}
			lists, ok := f.regions[strings.ToLower(src)]
			if !ok {
				return fmt.Errorf("alias %q refers to unknown list %q", alias, src)
			}
			for initial, names := range lists {
				merged[initial] = appendUnique(merged[initial], names...)
			}
		}
		f.regions[strings.ToLower(alias)] = merged
	}
	return nil
}

func normalizeLists(lists map[string][]string) map[string][]string {
	out := make(map[string][]string, len(lists))
	for initial, names := range lists {
		key := Normalize(initial)
		for _, n := range names {
			out[key] = appendUnique(out[key], Normalize(n))
		}
	}
	return out
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		found := false
		for _, d := range dst {
			if d == n {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, n)
		}
	}
	return dst
}

// Names returns the first names for an initial in a region, falling back to
// the default list for unknown regions.
func (f *FirstNames) Names(regionID, initial string) []string {
	initial = Normalize(initial)
	if lists, ok := f.regions[strings.ToLower(regionID)]; ok {
		if names := lists[initial]; len(names) > 0 {
			return names
		}
	}
	return f.regions[DefaultRegion][initial]
}

// Expand generates up to five full-name candidates for a normalised name
// starting with a single-letter initial ("и петров" -> "иван петров", ...).
// It returns nil when the name has no leading initial.
func (f *FirstNames) Expand(normalized, regionID string) []string {
	fields := strings.Fields(normalized)
	if len(fields) < 2 || !isInitial(fields[0]) {
		return nil
	}
	rest := strings.Join(fields[1:], " ")
	names := f.Names(regionID, fields[0])
	if len(names) > maxExpansions {
		names = names[:maxExpansions]
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n+" "+rest)
	}
	return out
}

// Regions lists the configured region keys.
func (f *FirstNames) Regions() []string {
	out := make([]string, 0, len(f.regions))
	for r := range f.regions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
