// Package policy builds the per-user permission index used by the decision
// engine. The index is derived from active policy records on every check; it
// is a pure function of its inputs and safe to build concurrently.
package policy

import (
	"sort"

	"github.com/vngrid/caseguard/internal/confidentiality"
)

// ScopedRecord is one policy record as seen through a user's authorization
// profile: the record's scope plus the org-unit restriction of the profile
// that granted it (nil means unrestricted).
type ScopedRecord struct {
	Permission         string
	ObjectType         string
	Catalog            string
	TypeIdentifier     string
	MaxConfidentiality string
	OrgUnit            *string
}

// Filter describes one blueprint scope for listing/search collaborators.
type Filter struct {
	Catalog            string
	TypeIdentifier     string
	MaxConfidentiality string
}

type entry struct {
	objectType         string
	catalog            string
	typeIdentifier     string
	maxConfidentiality string
	orgUnit            *string
}

type mergeKey struct {
	permission     string
	catalog        string
	typeIdentifier string
	orgUnit        string
	restricted     bool
}

// Index answers "does this permission apply to this object" queries for one
// user's set of policy records.
type Index struct {
	scale        *confidentiality.Scale
	byPermission map[string][]entry
}

// NewIndex groups records by permission name, merging records that share the
// same (permission, catalog, type identifier, org unit) key by raising the
// confidentiality ceiling to the highest seen. Profiles are additive, so the
// effective ceiling of overlapping grants is the most permissive one.
func NewIndex(scale *confidentiality.Scale, records []ScopedRecord) *Index {
	merged := make(map[mergeKey]*entry)
	order := make([]mergeKey, 0, len(records))

	for _, record := range records {
		key := mergeKey{
			permission:     record.Permission,
			catalog:        record.Catalog,
			typeIdentifier: record.TypeIdentifier,
		}
		if record.OrgUnit != nil {
			key.orgUnit = *record.OrgUnit
			key.restricted = true
		}

		existing, ok := merged[key]
		if !ok {
			e := entry{
				objectType:         record.ObjectType,
				catalog:            record.Catalog,
				typeIdentifier:     record.TypeIdentifier,
				maxConfidentiality: record.MaxConfidentiality,
				orgUnit:            record.OrgUnit,
			}
			merged[key] = &e
			order = append(order, key)
			continue
		}
		existing.maxConfidentiality = scale.Max(existing.maxConfidentiality, record.MaxConfidentiality)
	}

	// Assemble deterministically regardless of input order.
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.permission != b.permission {
			return a.permission < b.permission
		}
		if a.catalog != b.catalog {
			return a.catalog < b.catalog
		}
		if a.typeIdentifier != b.typeIdentifier {
			return a.typeIdentifier < b.typeIdentifier
		}
		if a.restricted != b.restricted {
			return !a.restricted
		}
		return a.orgUnit < b.orgUnit
	})

	byPermission := make(map[string][]entry)
	for _, key := range order {
		byPermission[key.permission] = append(byPermission[key.permission], *merged[key])
	}

	return &Index{scale: scale, byPermission: byPermission}
}

// Contains reports whether the permission applies to an object of the given
// catalog, type identifier, and confidentiality. Unknown permission names and
// confidentiality levels outside the scale yield false, never a panic.
func (idx *Index) Contains(permission, catalog, typeIdentifier, objectConfidentiality string) bool {
	entries, ok := idx.byPermission[permission]
	if !ok {
		return false
	}

	for _, e := range entries {
		if e.matches(idx.scale, catalog, typeIdentifier, objectConfidentiality) {
			return true
		}
	}
	return false
}

// OrgUnits collects the org-unit restrictions of all entries matching the
// object. The unrestricted flag is set when any matching entry carries no
// org unit; one unrestricted profile bypasses org-unit narrowing entirely.
func (idx *Index) OrgUnits(permission, catalog, typeIdentifier, objectConfidentiality string) (units map[string]struct{}, unrestricted bool) {
	units = make(map[string]struct{})

	for _, e := range idx.byPermission[permission] {
		if !e.matches(idx.scale, catalog, typeIdentifier, objectConfidentiality) {
			continue
		}
		if e.orgUnit == nil {
			unrestricted = true
			continue
		}
		units[*e.orgUnit] = struct{}{}
	}
	return units, unrestricted
}

// CaseTypeFilters returns the blueprint scopes indexed under a permission,
// for collaborators that pre-filter listings by case type.
func (idx *Index) CaseTypeFilters(permission string) []Filter {
	entries := idx.byPermission[permission]
	filters := make([]Filter, 0, len(entries))
	seen := make(map[Filter]struct{}, len(entries))
	for _, e := range entries {
		f := Filter{
			Catalog:            e.catalog,
			TypeIdentifier:     e.typeIdentifier,
			MaxConfidentiality: e.maxConfidentiality,
		}
		if _, exists := seen[f]; exists {
			continue
		}
		seen[f] = struct{}{}
		filters = append(filters, f)
	}
	return filters
}

// Permissions returns the permission names present in the index, sorted.
func (idx *Index) Permissions() []string {
	names := make([]string, 0, len(idx.byPermission))
	for name := range idx.byPermission {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *entry) matches(scale *confidentiality.Scale, catalog, typeIdentifier, objectConfidentiality string) bool {
	if !scale.AtLeast(e.maxConfidentiality, objectConfidentiality) {
		return false
	}
	if e.catalog != "" && e.catalog != catalog {
		return false
	}
	if e.typeIdentifier != "" && e.typeIdentifier != typeIdentifier {
		return false
	}
	return true
}
