// Package script runs the world script a server names in its handshake.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

// Host is what a world script may do to the session.
type Host interface {
	SendCustom(channel string, data map[string]any) error
}

// Runner resolves world scripts to <dir>/<name>.lua and executes them.
type Runner struct {
	dir string
	log *slog.Logger
}

func NewRunner(dir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{dir: dir, log: logger.With("component", "script")}
}

// Path returns the file a world script name resolves to.
func (r *Runner) Path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid world script name %q", name)
	}
	return filepath.Join(r.dir, name+".lua"), nil
}

// Script is a loaded world script.
type Script struct {
	name string
	vm   *vm
	log  *slog.Logger
}

// Load resolves and executes the named script's top-level chunk. A Runner
// without a directory, an empty name or a missing file yields a nil Script
// and no error.
func (r *Runner) Load(name string, host Host) (*Script, error) {
	if r == nil || r.dir == "" || name == "" {
		return nil, nil
	}
	path, err := r.Path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		r.log.Debug("world script not found", "path", path)
		return nil, nil
	}

	v := newVM()
	r.bind(v, name, host)
	if err := v.loadFile(path); err != nil {
		return nil, err
	}
	r.log.Info("world script loaded", "script", name)
	return &Script{name: name, vm: v, log: r.log.With("script", name)}, nil
}

// Ready calls the script's on_ready(client_id) if it defines one.
func (s *Script) Ready(clientID string) error {
	if s == nil || !s.vm.hasFunction("on_ready") {
		return nil
	}
	if err := s.vm.call("on_ready", clientID); err != nil {
		return err
	}
	s.log.Debug("on_ready called", "client_id", clientID)
	return nil
}

func (s *Script) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

func (r *Runner) bind(v *vm, name string, host Host) {
	logger := r.log.With("script", name)
	v.register("log", func(state *lua.State) int {
		msg, _ := state.ToString(1)
		logger.Info(msg)
		return 0
	})
	v.register("send_custom", func(state *lua.State) int {
		channel := lua.CheckString(state, 1)
		text, _ := state.ToString(2)
		if host == nil {
			state.PushBoolean(false)
			return 1
		}
		if err := host.SendCustom(channel, map[string]any{"text": text}); err != nil {
			logger.Warn("send_custom failed", "channel", channel, "error", err)
			state.PushBoolean(false)
			return 1
		}
		state.PushBoolean(true)
		return 1
	})
}
