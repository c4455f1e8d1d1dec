// Package allocation computes which shipments may be assigned to a
// manifest. It is pure computation over collection snapshots: it holds the
// allocation-exclusivity rule (a shipment belongs to at most one active
// manifest) and the branch-visibility scoping of the acting user.
package allocation

import (
	"github.com/hyperengineering/manifold/internal/model"
)

// Scope restricts which shipments an acting user may see. A privileged
// user is unrestricted; everyone else is pinned to one branch.
type Scope struct {
	Unrestricted bool
	Branch       model.ID
}

// ScopeFor derives the visibility scope from a user account.
func ScopeFor(u model.User) Scope {
	if u.Role == model.RoleAdmin {
		return Scope{Unrestricted: true}
	}
	return Scope{Branch: u.Branch}
}

// DestinationLookup resolves a shipment's destination city to the branch
// whose service area covers it, if any.
type DestinationLookup interface {
	BranchForCity(city model.ID) (model.ID, bool)
}

// LookupFunc adapts a plain function to a DestinationLookup.
type LookupFunc func(city model.ID) (model.ID, bool)

// BranchForCity implements DestinationLookup.
func (f LookupFunc) BranchForCity(city model.ID) (model.ID, bool) { return f(city) }

// Eligible returns the shipments that may be selected into the target
// manifest, preserving snapshot order.
//
// A shipment qualifies when it is not embedded in any other manifest, or
// when it is embedded in the manifest currently under edit (identified by
// editingManifestID; pass "" in create mode); those stay selectable and
// deselectable. On top of allocation, the shipment must pass the user's
// branch-visibility scope: origin branch match, or destination city
// mapping to the scoped branch via lookup.
//
// A manifest whose embedded shipment list cannot be parsed contributes an
// empty set; resolution never fails on malformed data.
func Eligible(
	shipments []model.Shipment,
	manifests []model.Manifest,
	editingManifestID model.ID,
	scope Scope,
	lookup DestinationLookup,
) []model.Shipment {
	allocated := make(map[model.ID]bool)
	inEditing := make(map[model.ID]bool)

	for _, m := range manifests {
		refs, err := m.SelectedShipmentRefs()
		if err != nil {
			continue
		}
		target := allocated
		if editingManifestID != "" && m.ID == editingManifestID {
			target = inEditing
		}
		for _, ref := range refs {
			target[ref.ID] = true
		}
	}

	eligible := make([]model.Shipment, 0, len(shipments))
	for _, s := range shipments {
		if allocated[s.ID] && !inEditing[s.ID] {
			continue
		}
		if !visible(s, scope, lookup) {
			continue
		}
		eligible = append(eligible, s)
	}
	return eligible
}

// visible applies the branch-visibility predicate.
func visible(s model.Shipment, scope Scope, lookup DestinationLookup) bool {
	if scope.Unrestricted {
		return true
	}
	if s.Branch == scope.Branch {
		return true
	}
	if lookup != nil {
		if branch, ok := lookup.BranchForCity(s.Destination); ok && branch == scope.Branch {
			return true
		}
	}
	return false
}

// AllocatedElsewhere reports whether a shipment id is embedded in any
// manifest other than the one under edit. Used by the edit session to
// double-check a selection just before submit.
func AllocatedElsewhere(manifests []model.Manifest, shipmentID, editingManifestID model.ID) bool {
	for _, m := range manifests {
		if editingManifestID != "" && m.ID == editingManifestID {
			continue
		}
		refs, err := m.SelectedShipmentRefs()
		if err != nil {
			continue
		}
		for _, ref := range refs {
			if ref.ID == shipmentID {
				return true
			}
		}
	}
	return false
}
