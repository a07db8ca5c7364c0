package config

import (
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// migrateLegacyFiles folds each configured legacy per-plugin *.conf file
// found alongside the local config directory into the mutable keyfile,
// skipping any key whose value already equals its registered default, then
// renames the legacy file with a .old suffix so it is never re-parsed.
func (s *Store) migrateLegacyFiles(dirs Dirs) error {
	for _, name := range dirs.LegacyNames {
		path := filepath.Join(dirs.LocalDir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.Debugf("skipping unreadable legacy config file %s: %v", path, err)
			}

			continue
		}

		legacy, err := ini.Load(data)
		if err != nil {
			s.log.Debugf("skipping malformed legacy config file %s: %v", path, err)
			continue
		}

		folded := false

		for _, section := range legacy.Sections() {
			if section.Name() == ini.DefaultSection {
				continue
			}

			for _, key := range section.Keys() {
				if key.Value() == s.defaults[defaultKey(section.Name(), key.Name())] {
					continue
				}

				dst, err := s.mutable.GetSection(section.Name())
				if err != nil {
					dst, err = s.mutable.NewSection(section.Name())
					if err != nil {
						return fwupderr.Wrap(fwupderr.Write, err, "migrating section %s", section.Name())
					}
				}

				dst.Key(key.Name()).SetValue(key.Value())
				folded = true
			}
		}

		if folded {
			if err := s.saveMutableLocked(s.mutablePth); err != nil {
				return err
			}

			if err := s.reloadLocked(); err != nil {
				return err
			}
		}

		if err := os.Rename(path, path+".old"); err != nil {
			s.log.Debugf("could not rename legacy config file %s: %v", path, err)
		}
	}

	return nil
}
