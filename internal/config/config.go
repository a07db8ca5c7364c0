// Package config implements the layered configuration store: an immutable
// system file overridden by a mutable local file, with typed default
// fallback, legacy-file migration, and change notification.
//
// Store tracks an ordered list of on-disk Items and
// keeps the mutable layer's own keyfile separate from the fully-merged
// view, so SetValue only ever rewrites what the mutable file actually
// owns.
package config

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
)

// LoadFlags control optional Load behavior.
type LoadFlags uint

const (
	// FlagNone requests the default load behavior.
	FlagNone LoadFlags = 0
	// FlagMigrateFiles folds legacy per-plugin *.conf files into the main
	// keyfile and renames them with a .old suffix.
	FlagMigrateFiles LoadFlags = 1 << iota
)

// fileMode is the required permission bits for the mutable config file.
const fileMode = 0o640

// Item describes one on-disk config source, in load order.
type Item struct {
	Filename string
	Mutable  bool
	Writable bool
	Monitor  bool
}

// Dirs names the directories and legacy filenames Load probes.
type Dirs struct {
	SystemDir   string
	LocalDir    string
	ConfName    string
	LegacyNames []string
}

// ChangeEvent is emitted by Monitor.
type ChangeEvent struct {
	// Kind is "changed": a content change was detected after the initial
	// load and the merged view has been reloaded. Load itself sends no
	// event.
	Kind string
}

// Store is the merged, layered configuration view.
type Store struct {
	mu sync.Mutex

	log *logging.Logger

	items      []Item
	merged     *ini.File
	mutable    *ini.File // always non-nil once Load has run; empty if no file existed yet
	mutablePth string    // path SetValue/ResetDefaults write to; "" if no mutable layer configured

	defaults map[string]string // "section::key" -> default value

	watchers []chan ChangeEvent
}

func defaultKey(section, key string) string {
	return section + "::" + key
}

// New returns an empty, unloaded Store. Plugins may call SetDefault before
// Load to register their defaults ahead of time.
func New(log *logging.Logger) *Store {
	return &Store{
		log:      log,
		merged:   ini.Empty(),
		mutable:  ini.Empty(),
		defaults: map[string]string{},
	}
}

// SetDefault records the default value for (section, key). A nil value
// clears a previously registered default. Plugins call this during their
// own init, before Load.
func (s *Store) SetDefault(section, key string, value *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := defaultKey(section, key)
	if value == nil {
		delete(s.defaults, k)
		return
	}

	s.defaults[k] = *value
}

// Load is a convenience wrapper for callers with no defaults to register
// ahead of time: it creates a fresh Store and loads dirs into it. Callers
// whose plugins register defaults via SetDefault during their own init
// must instead call New followed by (*Store).Load, since defaults only
// affect GetValue for keys the loaded files don't set explicitly.
func Load(ctx context.Context, log *logging.Logger, flags LoadFlags, dirs Dirs) (*Store, error) {
	s := New(log)
	return s, s.Load(ctx, flags, dirs)
}

// Load probes the system and local config directories in order, merging
// whatever files exist into the in-memory keyfile. Missing, unreadable, or
// malformed files are skipped with a debug log rather than treated as
// fatal.
func (s *Store) Load(ctx context.Context, flags LoadFlags, dirs Dirs) error {
	s.mutablePth = filepath.Join(dirs.LocalDir, dirs.ConfName)

	candidates := []Item{
		{Filename: filepath.Join(dirs.SystemDir, dirs.ConfName), Mutable: false, Monitor: true},
		{Filename: s.mutablePth, Mutable: true, Writable: true, Monitor: true},
	}

	merged := ini.Empty()

	for _, item := range candidates {
		data, err := os.ReadFile(item.Filename)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.Debugf("skipping unreadable config file %s: %v", item.Filename, err)
			}

			continue
		}

		if item.Mutable {
			if err := correctMode(item.Filename); err != nil {
				s.log.Debugf("could not correct mode of %s: %v", item.Filename, err)
			}
		}

		parsed, err := ini.Load(data)
		if err != nil {
			s.log.Debugf("skipping malformed config file %s: %v", item.Filename, err)
			continue
		}

		if item.Mutable {
			s.mutable = parsed
		}

		if err := merged.Append(data); err != nil {
			s.log.Debugf("skipping malformed config file %s: %v", item.Filename, err)
			continue
		}

		s.items = append(s.items, item)
	}

	s.merged = merged

	if flags&FlagMigrateFiles != 0 {
		if err := s.migrateLegacyFiles(dirs); err != nil {
			return err
		}
	}

	s.log.Debugf("config loaded from %d file(s)", len(s.items))

	return nil
}

func correctMode(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Mode().Perm() == fileMode {
		return nil
	}

	return os.Chmod(path, fileMode)
}

// GetValue returns the explicit value for (section, key), falling back to
// its registered default, or "" if neither exists.
func (s *Store) GetValue(section, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getValueLocked(section, key)
}

func (s *Store) getValueLocked(section, key string) string {
	if sec, err := s.merged.GetSection(section); err == nil {
		if k, err := sec.GetKey(key); err == nil {
			return k.Value()
		}
	}

	return s.defaults[defaultKey(section, key)]
}

// GetValueBool parses GetValue as a boolean, defaulting to false on a
// malformed value.
func (s *Store) GetValueBool(section, key string) bool {
	v := s.GetValue(section, key)
	b, _ := strconv.ParseBool(v)
	return b
}

// GetValueU64 parses GetValue as an unsigned 64-bit integer. A malformed
// value yields math.MaxUint64 and a logged warning, matching the
// "integer parse failure yields MAX" rule.
func (s *Store) GetValueU64(section, key string) uint64 {
	v := s.GetValue(section, key)
	if v == "" {
		return 0
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		s.log.Warnf("config value %s.%s=%q is not a valid integer", section, key, v)
		return math.MaxUint64
	}

	return n
}

// GetValueStrv splits GetValue on ';', dropping empty segments.
func (s *Store) GetValueStrv(section, key string) []string {
	v := s.GetValue(section, key)
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ";")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// SetValue persists (section, key, value) to the mutable layer only, then
// re-reads the merged view from disk so GetValue reflects the write
// immediately, so the merged view always reflects the on-disk state.
func (s *Store) SetValue(ctx context.Context, section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mutablePth == "" {
		return fwupderr.New(fwupderr.Write, "no mutable config layer is configured")
	}

	sec, err := s.mutable.GetSection(section)
	if err != nil {
		sec, err = s.mutable.NewSection(section)
		if err != nil {
			return fwupderr.Wrap(fwupderr.Write, err, "creating section %s", section)
		}

		sec.Comment = "# " + section + " configuration"
	}

	sec.Key(key).SetValue(value)

	if err := s.saveMutableLocked(s.mutablePth); err != nil {
		return err
	}

	return s.reloadLocked()
}

// ResetDefaults drops section entirely from the mutable layer and saves.
func (s *Store) ResetDefaults(ctx context.Context, section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mutablePth == "" {
		return fwupderr.New(fwupderr.Write, "no mutable config layer is configured")
	}

	s.mutable.DeleteSection(section)

	if err := s.saveMutableLocked(s.mutablePth); err != nil {
		return err
	}

	return s.reloadLocked()
}

func (s *Store) saveMutableLocked(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fwupderr.Wrap(fwupderr.Write, err, "creating config directory")
	}

	if err := s.mutable.SaveTo(path); err != nil {
		return fwupderr.Wrap(fwupderr.Write, err, "writing config file %s", path)
	}

	if err := os.Chmod(path, fileMode); err != nil {
		s.log.Debugf("could not set mode on %s: %v", path, err)
	}

	return nil
}

func (s *Store) reloadLocked() error {
	merged := ini.Empty()

	for _, item := range s.items {
		if item.Mutable {
			continue
		}

		data, err := os.ReadFile(item.Filename)
		if err != nil {
			continue
		}

		if err := merged.Append(data); err != nil {
			return fwupderr.Wrap(fwupderr.Read, err, "reloading config file %s", item.Filename)
		}
	}

	if s.mutablePth != "" {
		if data, err := os.ReadFile(s.mutablePth); err == nil {
			if err := merged.Append(data); err != nil {
				return fwupderr.Wrap(fwupderr.Read, err, "reloading config file %s", s.mutablePth)
			}

			hasMutableItem := false

			for _, item := range s.items {
				if item.Mutable {
					hasMutableItem = true
				}
			}

			if !hasMutableItem {
				s.items = append(s.items, Item{Filename: s.mutablePth, Mutable: true, Writable: true, Monitor: true})
			}
		}
	}

	s.merged = merged

	return nil
}
