// Package zaken talks to the upstream case registry. The decision engine
// consumes it as an opaque collaborator: resolve one object's metadata, or
// list the case types of a catalog.
package zaken

import (
	"context"
	"errors"
)

// ErrObjectNotFound signals the object does not exist upstream.
var ErrObjectNotFound = errors.New("zaken: object not found")

// ObjectMeta carries the metadata of one case relevant to access decisions.
type ObjectMeta struct {
	URL             string   `json:"url"`
	TypeURL         string   `json:"type_url"`
	TypeIdentifier  string   `json:"type_identifier"`
	Catalog         string   `json:"catalog"`
	Confidentiality string   `json:"confidentiality"`
	OrgUnits        []string `json:"org_units"`
}

// CaseType describes one case type within a catalog.
type CaseType struct {
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
	Catalog    string `json:"catalog"`
}

// Resolver resolves object metadata from the upstream registry.
type Resolver interface {
	// ResolveObject returns the metadata for the given object URL, or
	// ErrObjectNotFound when the object does not exist upstream.
	ResolveObject(ctx context.Context, objectURL string) (*ObjectMeta, error)

	// CaseTypes lists the case types belonging to a catalog.
	CaseTypes(ctx context.Context, catalog string) ([]CaseType, error)
}
