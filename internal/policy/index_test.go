package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vngrid/caseguard/internal/confidentiality"
	"github.com/vngrid/caseguard/internal/models"
)

func strptr(s string) *string { return &s }

func record(permission, catalog, typeID, maxVA string, orgUnit *string) ScopedRecord {
	return ScopedRecord{
		Permission:         permission,
		ObjectType:         models.ObjectTypeCase,
		Catalog:            catalog,
		TypeIdentifier:     typeID,
		MaxConfidentiality: maxVA,
		OrgUnit:            orgUnit,
	}
}

func TestContainsUnknownPermission(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), nil)
	require.False(t, idx.Contains("case.view", "cat1", "T1", "public"))
}

func TestContainsRespectsConfidentialityCeiling(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "cat1", "T1", "confidential", nil),
	})

	require.True(t, idx.Contains("case.view", "cat1", "T1", "public"))
	require.True(t, idx.Contains("case.view", "cat1", "T1", "confidential"))
	require.False(t, idx.Contains("case.view", "cat1", "T1", "secret"))
}

func TestContainsWildcards(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "", "", "internal", nil),
	})

	require.True(t, idx.Contains("case.view", "cat1", "T1", "public"))
	require.True(t, idx.Contains("case.view", "cat2", "T9", "internal"))
	require.False(t, idx.Contains("case.view", "cat1", "T1", "secret"))
}

func TestContainsCatalogNarrowing(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "cat1", "", "top-secret", nil),
	})

	require.True(t, idx.Contains("case.view", "cat1", "T1", "secret"))
	require.False(t, idx.Contains("case.view", "cat2", "T1", "public"))
}

func TestUnknownConfidentialityExceedsAllCeilings(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "", "", "top-secret", nil),
	})

	require.False(t, idx.Contains("case.view", "cat1", "T1", "mystery-level"))
}

func TestMergeIsCeilingNeverFloor(t *testing.T) {
	scale := confidentiality.MustDefault()

	forward := NewIndex(scale, []ScopedRecord{
		record("case.view", "cat1", "T1", "public", nil),
		record("case.view", "cat1", "T1", "secret", nil),
	})
	reverse := NewIndex(scale, []ScopedRecord{
		record("case.view", "cat1", "T1", "secret", nil),
		record("case.view", "cat1", "T1", "public", nil),
	})

	for _, idx := range []*Index{forward, reverse} {
		require.True(t, idx.Contains("case.view", "cat1", "T1", "secret"))
		filters := idx.CaseTypeFilters("case.view")
		require.Len(t, filters, 1, "same-scope records must merge into one entry")
		require.Equal(t, "secret", filters[0].MaxConfidentiality)
	}
}

func TestMergeKeySeparatesOrgUnits(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "cat1", "T1", "internal", strptr("backoffice")),
		record("case.view", "cat1", "T1", "secret", strptr("frontdesk")),
	})

	units, unrestricted := idx.OrgUnits("case.view", "cat1", "T1", "public")
	require.False(t, unrestricted)
	require.Len(t, units, 2)

	// Only the frontdesk profile reaches up to secret.
	units, unrestricted = idx.OrgUnits("case.view", "cat1", "T1", "secret")
	require.False(t, unrestricted)
	require.Len(t, units, 1)
	_, ok := units["frontdesk"]
	require.True(t, ok)
}

func TestOrgUnitsUnrestrictedFlag(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "cat1", "T1", "internal", strptr("backoffice")),
		record("case.view", "cat1", "T1", "internal", nil),
	})

	_, unrestricted := idx.OrgUnits("case.view", "cat1", "T1", "public")
	require.True(t, unrestricted, "one unrestricted profile suffices")
}

func TestPermissionsSorted(t *testing.T) {
	idx := NewIndex(confidentiality.MustDefault(), []ScopedRecord{
		record("case.view", "", "", "internal", nil),
		record("case.close", "", "", "internal", nil),
	})
	require.Equal(t, []string{"case.close", "case.view"}, idx.Permissions())
}
