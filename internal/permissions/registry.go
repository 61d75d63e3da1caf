package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission describes a permission definition registered at startup. The
// registry is the single source of permission names: grant rows referencing
// names outside it never match, preserving a fail-closed posture.
type Permission struct {
	Name        string
	ObjectType  string
	Description string
}

type permissionRegistry struct {
	mu          sync.RWMutex
	permissions map[string]*Permission
}

var globalRegistry = &permissionRegistry{
	permissions: make(map[string]*Permission),
}

var (
	errNilPermission   = errors.New("permission: nil definition")
	errEmptyName       = errors.New("permission: name is required")
	errEmptyObjectType = errors.New("permission: object type is required")
	errDuplicateName   = errors.New("permission: already registered")
)

// Register adds a permission definition to the global registry.
func Register(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}

	name := strings.TrimSpace(perm.Name)
	if name == "" {
		return errEmptyName
	}
	objectType := strings.TrimSpace(perm.ObjectType)
	if objectType == "" {
		return errEmptyObjectType
	}

	def := *perm
	def.Name = name
	def.ObjectType = objectType

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.permissions[name]; exists {
		return fmt.Errorf("%w: %s", errDuplicateName, name)
	}

	globalRegistry.permissions[name] = &def
	return nil
}

// Get returns a copy of the permission definition when registered.
func Get(name string) (*Permission, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	perm, ok := globalRegistry.permissions[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	cp := *perm
	return &cp, true
}

// Known reports whether a permission name is registered.
func Known(name string) bool {
	_, ok := Get(name)
	return ok
}

// Names returns all registered permission names in sorted order.
func Names() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	names := make([]string, 0, len(globalRegistry.permissions))
	for name := range globalRegistry.permissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForObjectType gathers permissions registered for the given object type.
func ForObjectType(objectType string) []*Permission {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	objectType = strings.TrimSpace(objectType)
	var perms []*Permission
	for _, perm := range globalRegistry.permissions {
		if perm.ObjectType == objectType {
			cp := *perm
			perms = append(perms, &cp)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms
}
