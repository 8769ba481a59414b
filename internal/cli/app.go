package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/registry"
	"github.com/roach88/sheetrelay/internal/store"
)

// loadRegistry reads the configured definitions. Any failure is a command
// error: nothing can run without a registry.
func (o *RootOptions) loadRegistry() (*registry.Registry, error) {
	reg, err := registry.Load(o.Config.Definitions)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load definitions "+o.Config.Definitions, err)
	}
	for _, w := range reg.Warnings() {
		o.Logger.Warn("definition warning", "code", w.Code, "field", w.Field, "message", w.Message)
	}
	return reg, nil
}

// openEngine builds an engine over the configured definitions. With a
// store configured, the fact log is replayed before the engine is returned.
// The returned close function releases the store.
func (o *RootOptions) openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	reg, err := o.loadRegistry()
	if err != nil {
		return nil, nil, err
	}

	opts := []engine.Option{engine.WithLogger(o.Logger)}
	closeFn := func() {}
	var st *store.Store
	if path := o.Config.Store; path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, WrapExitError(ExitCommandError, "create store directory", err)
			}
		}
		st, err = store.Open(path)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "open store "+path, err)
		}
		if v, err := st.Version(ctx); err == nil {
			o.Logger.Debug("store opened", "path", path, "schema_version", v)
		}
		opts = append(opts, engine.WithStore(st))
		closeFn = func() {
			if err := st.Close(); err != nil {
				o.Logger.Warn("close store", "error", err)
			}
		}
	}

	eng := engine.New(reg, opts...)
	if st != nil {
		res, err := eng.Restore(ctx)
		if err != nil {
			closeFn()
			return nil, nil, WrapExitError(ExitCommandError, "restore from store", err)
		}
		o.Logger.Debug("state restored",
			"rows", res.Rows, "skipped", res.Skipped, "snapshots", res.Snapshots, "seq", res.Seq)
	}
	return eng, closeFn, nil
}

// commandError is an ExitCommandError with a formatted message.
func commandError(format string, args ...any) *ExitError {
	return NewExitError(ExitCommandError, fmt.Sprintf(format, args...))
}
