// Package quirks implements the (match, key, value) override store used to
// patch device behavior without a code change: a set of keyfiles, each section named by an
// instance-ID or GUID glob, each key inside it an override applied to any
// device whose instance IDs match that section.
package quirks

import (
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// entry is one matched (section, key) -> value override, plus the glob
// pattern it was declared under (for match-specificity ordering).
type entry struct {
	pattern string
	values  map[string]string
}

// Store holds the merged set of quirk entries loaded from one or more
// keyfiles (typically a quirks.d/ directory).
type Store struct {
	entries []entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// LoadDir loads every *.quirk file in dir, in lexical filename order, later
// files overriding earlier ones for the same (section, key) pair — matching
// fwupd's quirks.d layered-directory convention.
func (s *Store) LoadDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.quirk"))
	if err != nil {
		return fwupderr.Wrap(fwupderr.Read, err, "globbing quirk directory %s", dir)
	}

	sort.Strings(paths)

	for _, path := range paths {
		if err := s.LoadFile(path); err != nil {
			return err
		}
	}

	return nil
}

// LoadFile merges one keyfile's sections into the store. Each section
// header is an instance-ID or GUID match pattern; section keys are the
// quirk overrides applied to any device matching that pattern.
func (s *Store) LoadFile(path string) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return fwupderr.Wrap(fwupderr.Read, err, "parsing quirk file %s", path)
	}

	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}

		values := map[string]string{}
		for _, key := range section.Keys() {
			values[key.Name()] = key.Value()
		}

		s.entries = append(s.entries, entry{pattern: section.Name(), values: values})
	}

	return nil
}

// matches reports whether id satisfies pattern. A pattern is either an
// exact instance-ID/GUID string, or a glob using '*' (fwupd allows e.g.
// "USB\VID_0763&PID_*" to match a vendor's whole product range).
func matches(pattern, id string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == id
	}

	ok, err := filepath.Match(strings.ReplaceAll(pattern, `\`, `\\`), id)
	return err == nil && ok
}

// Lookup returns the value of key from the most recently loaded quirk entry
// whose pattern matches any of ids and that sets key, scanning entries from
// last loaded to first so later-loaded files win ties (layered override
// semantics). ok is false if no entry matches.
func (s *Store) Lookup(ids []string, key string) (string, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]

		for _, id := range ids {
			if !matches(e.pattern, id) {
				continue
			}

			if v, ok := e.values[key]; ok {
				return v, true
			}
		}
	}

	return "", false
}

// LookupAll returns every key/value pair contributed by quirk entries
// matching any of ids, later entries overriding earlier ones for the same
// key.
func (s *Store) LookupAll(ids []string) map[string]string {
	out := map[string]string{}

	for _, e := range s.entries {
		for _, id := range ids {
			if !matches(e.pattern, id) {
				continue
			}

			for k, v := range e.values {
				out[k] = v
			}
		}
	}

	return out
}
