package plugin

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sort"
	"strings"

	"github.com/c360/fastbot/errors"
)

// LoadPath loads plugin units from a file or directory. A file must be a
// built plugin object (.so) exporting a Setup symbol of type SetupFunc; a
// directory is walked recursively and every eligible unit is loaded in name
// order. Units whose base name starts with "_" are skipped. One unit's
// failure is logged and never aborts its siblings.
func (m *Manager) LoadPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.WrapInvalid(err, "Manager", "LoadPath", "stat plugin path")
	}

	if !info.IsDir() {
		if !eligible(path) {
			return errors.WrapInvalid(errors.ErrPluginPath, "Manager", "LoadPath", path)
		}
		m.loadUnit(path)
		return nil
	}

	var units []string
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			m.logger.Error("plugin walk error", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() && eligible(p) {
			units = append(units, p)
		}
		return nil
	})
	if walkErr != nil {
		return errors.WrapInvalid(walkErr, "Manager", "LoadPath", "walk plugin directory")
	}

	sort.Strings(units)
	for _, unit := range units {
		m.loadUnit(unit)
	}
	return nil
}

// eligible reports whether path names a loadable plugin unit.
func eligible(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".so") && !strings.HasPrefix(base, "_")
}

// loadUnit opens one plugin object, resolves its Setup symbol, and
// registers it under its base name. All failures are logged, not returned:
// plugin-load errors are never fatal to the process.
func (m *Manager) loadUnit(path string) {
	name := strings.TrimSuffix(filepath.Base(path), ".so")

	unit, err := goplugin.Open(path)
	if err != nil {
		m.logger.Error("plugin open failed", "plugin", name, "path", path, "error", err)
		return
	}

	sym, err := unit.Lookup("Setup")
	if err != nil {
		m.logger.Error("plugin setup symbol missing", "plugin", name, "path", path,
			"error", errors.ErrPluginSymbol)
		return
	}

	setup, ok := symbolSetup(sym)
	if !ok {
		m.logger.Error("plugin setup symbol has wrong type", "plugin", name, "path", path,
			"error", fmt.Errorf("%w: got %T", errors.ErrPluginSymbol, sym))
		return
	}

	if err := m.Register(name, setup); err != nil {
		m.logger.Error("plugin registration failed", "plugin", name, "error", err)
	}
}

// symbolSetup accepts either the named SetupFunc type or the equivalent raw
// function signature, since plugin objects are built against their own copy
// of this package's types.
func symbolSetup(sym goplugin.Symbol) (SetupFunc, bool) {
	switch fn := sym.(type) {
	case SetupFunc:
		return fn, true
	case *SetupFunc:
		return *fn, true
	case func(*Plugin, Caller) error:
		return fn, true
	case *func(*Plugin, Caller) error:
		return *fn, true
	}
	return nil, false
}
