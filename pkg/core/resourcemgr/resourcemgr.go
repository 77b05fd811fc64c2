// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package resourcemgr implements a store of caller-owned stateful objects, keyed by container and name.
//
// The compiler creates one Manager per compiler instance, lets the caller populate it once, and
// makes it available to kernels that need to look up external state by name. The objects' lifetimes
// are owned by the caller: the Manager only holds references.
package resourcemgr

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultContainer is used when no container name is given.
const DefaultContainer = "localhost"

// Manager stores resources by container and name. It's safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	containers map[string]map[string]any
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{containers: make(map[string]map[string]any)}
}

func containerOrDefault(container string) string {
	if container == "" {
		return DefaultContainer
	}
	return container
}

// Create stores resource under container/name. It fails if one already exists.
func (m *Manager) Create(container, name string, resource any) error {
	container = containerOrDefault(container)
	if resource == nil {
		return errors.Errorf("cannot create nil resource %s/%s", container, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resources, found := m.containers[container]
	if !found {
		resources = make(map[string]any)
		m.containers[container] = resources
	}
	if _, exists := resources[name]; exists {
		return errors.Errorf("resource %s/%s already exists", container, name)
	}
	resources[name] = resource
	klog.V(2).Infof("resourcemgr: created %s/%s (%T)", container, name, resource)
	return nil
}

// Lookup returns the resource stored under container/name.
func (m *Manager) Lookup(container, name string) (any, error) {
	container = containerOrDefault(container)
	m.mu.Lock()
	defer m.mu.Unlock()
	resource, found := m.containers[container][name]
	if !found {
		return nil, errors.Errorf("resource %s/%s does not exist", container, name)
	}
	return resource, nil
}

// LookupOrCreate returns the resource stored under container/name, creating it with create if it doesn't exist.
func (m *Manager) LookupOrCreate(container, name string, create func() (any, error)) (any, error) {
	container = containerOrDefault(container)
	m.mu.Lock()
	defer m.mu.Unlock()
	if resource, found := m.containers[container][name]; found {
		return resource, nil
	}
	resource, err := create()
	if err != nil {
		return nil, errors.WithMessagef(err, "while creating resource %s/%s", container, name)
	}
	if m.containers[container] == nil {
		m.containers[container] = make(map[string]any)
	}
	m.containers[container][name] = resource
	return resource, nil
}

// Delete removes the resource stored under container/name.
func (m *Manager) Delete(container, name string) error {
	container = containerOrDefault(container)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.containers[container][name]; !found {
		return errors.Errorf("resource %s/%s does not exist", container, name)
	}
	delete(m.containers[container], name)
	return nil
}

// Cleanup removes all resources of the container.
func (m *Manager) Cleanup(container string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.containers, containerOrDefault(container))
}

// Names returns the sorted names of the resources in the container.
func (m *Manager) Names(container string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	resources := m.containers[containerOrDefault(container)]
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the resource stored under container/name, cast to T.
func Lookup[T any](m *Manager, container, name string) (T, error) {
	var zero T
	resource, err := m.Lookup(container, name)
	if err != nil {
		return zero, err
	}
	typed, ok := resource.(T)
	if !ok {
		return zero, errors.Errorf("resource %s/%s is of type %T, not %T", containerOrDefault(container), name, resource, zero)
	}
	return typed, nil
}
