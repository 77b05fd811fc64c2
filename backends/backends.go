// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a computation building and execution system needs to implement
// to be the target of the graph compiler.
//
// The compiler only sees the Builder (an opaque target IR builder), the resulting Computation
// (used to query its program shape and instructions) and, for tests and tools, the
// data transfer and execution API.
//
// Builders return errors for invalid ops; implementations are free to use panics internally
// (see github.com/gomlx/exceptions), but they must not leak through the interface.
package backends

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Backend is the API that needs to be implemented by a target of the graph compiler.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the pure Go interpreter.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Builder creates a new builder used to define a new named computation.
	Builder(name string) Builder

	// Compile a Computation created by one of this backend's builders into an Executable.
	Compile(computation Computation) (Executable, error)

	// DataInterface is the sub-interface that defines the API to transfer Buffer to/from the backend.
	DataInterface

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// GRAPHCOMPILER_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific.
const GRAPHCOMPILER_BACKEND = "GRAPHCOMPILER_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment GRAPHCOMPILER_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(GRAPHCOMPILER_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<backend_name>:<backend_configuration>".
// If the name is empty, the first registered backend is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered backends -- maybe import the pure Go one with import _ "github.com/gomlx/graphcompiler/backends/simplego"?`)
	}
	backendName := config
	var backendConfig string
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given", backendName, config)
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "while creating backend %q", backendName)
	}
	return backend, nil
}
