// Package dispatch coordinates the manifest create/edit lifecycle: a small
// state machine over a draft, backed by the shipment and manifest resources
// and the allocation rules.
package dispatch

import (
	"context"
	"slices"
	"sync"

	"github.com/hyperengineering/manifold/internal/allocation"
	"github.com/hyperengineering/manifold/internal/model"
	"github.com/hyperengineering/manifold/internal/validation"
	"github.com/hyperengineering/manifold/pkg/syncstore"
)

// State is the edit session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateDrafting   State = "drafting"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
)

// TripChecker reports whether an irrevocable trip entity already
// references a manifest. Manifests with trips are immutable.
type TripChecker interface {
	HasTrip(ctx context.Context, manifestID model.ID) (bool, error)
}

// TripCheckerFunc adapts a plain function to a TripChecker.
type TripCheckerFunc func(ctx context.Context, manifestID model.ID) (bool, error)

// HasTrip implements TripChecker.
func (f TripCheckerFunc) HasTrip(ctx context.Context, manifestID model.ID) (bool, error) {
	return f(ctx, manifestID)
}

// Draft is the manifest being composed. Selected holds shipment ids in
// selection order; they resolve to live shipment entities at submit time.
type Draft struct {
	ManifestID        model.ID // set only in edit mode
	Sequence          int
	Branch            model.ID
	ManifestType      model.ManifestType
	DestinationBranch model.ID
	ForwardingVendor  model.ID
	VehicleNumber     string
	DriverName        string
	Selected          []model.ID
}

// Session is the manifest edit state machine. One session serves one user
// screen; it is safe for interleaved calls from that screen's handlers.
type Session struct {
	shipments *syncstore.Resource[model.Shipment]
	manifests *syncstore.Resource[model.Manifest]
	trips     TripChecker
	scope     allocation.Scope
	lookup    allocation.DestinationLookup

	mu    sync.Mutex
	state State
	draft *Draft
}

// NewSession creates an idle session over the given resources. trips may
// be nil when no trip subsystem is wired, which disables the guard.
func NewSession(
	shipments *syncstore.Resource[model.Shipment],
	manifests *syncstore.Resource[model.Manifest],
	trips TripChecker,
	scope allocation.Scope,
	lookup allocation.DestinationLookup,
) *Session {
	return &Session{
		shipments: shipments,
		manifests: manifests,
		trips:     trips,
		scope:     scope,
		lookup:    lookup,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns a copy of the current draft, or nil when idle.
func (s *Session) Draft() *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil
	}
	d := *s.draft
	d.Selected = slices.Clone(s.draft.Selected)
	return &d
}

// StartDraft begins composing a new manifest for the given origin branch.
// The sequence number is seeded from the highest sequence in the current
// manifest snapshot plus one; there is no server-side counter.
func (s *Session) StartDraft(branch model.ID) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return nil, &InvalidTransitionError{From: s.state, Op: "start draft"}
	}

	s.draft = &Draft{
		Sequence: nextSequence(s.manifests.Snapshot()),
		Branch:   branch,
	}
	s.state = StateDrafting
	return s.copyDraftLocked(), nil
}

// OpenManifest loads an existing manifest for modification. It is refused
// with a GuardViolationError when a trip already references the manifest.
// The draft's selection is seeded from the manifest's embedded snapshot,
// normalized to ids; malformed embedded data seeds an empty selection.
func (s *Session) OpenManifest(ctx context.Context, id model.ID) (*Draft, error) {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateDrafting {
		from := s.state
		s.mu.Unlock()
		return nil, &InvalidTransitionError{From: from, Op: "open manifest"}
	}
	s.mu.Unlock()

	if s.trips != nil {
		hasTrip, err := s.trips.HasTrip(ctx, id)
		if err != nil {
			return nil, err
		}
		if hasTrip {
			return nil, &GuardViolationError{ManifestID: id}
		}
	}

	var target *model.Manifest
	for _, m := range s.manifests.Snapshot() {
		if m.ID == id {
			target = &m
			break
		}
	}
	if target == nil {
		return nil, &InvalidTransitionError{From: s.State(), Op: "open unknown manifest"}
	}

	selected := []model.ID{}
	if refs, err := target.SelectedShipmentRefs(); err == nil {
		for _, ref := range refs {
			selected = append(selected, ref.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = &Draft{
		ManifestID:        target.ID,
		Sequence:          target.Sequence,
		Branch:            target.Branch,
		ManifestType:      target.ManifestType,
		DestinationBranch: target.DestinationBranch,
		ForwardingVendor:  target.ForwardingVendor,
		VehicleNumber:     target.VehicleNumber,
		DriverName:        target.DriverName,
		Selected:          selected,
	}
	s.state = StateEditing
	return s.copyDraftLocked(), nil
}

// AvailableShipments resolves the shipments currently eligible for this
// draft: unallocated ones plus, in edit mode, the ones already embedded in
// the manifest under edit, all filtered by the user's branch scope.
func (s *Session) AvailableShipments() []model.Shipment {
	s.mu.Lock()
	var editing model.ID
	if s.draft != nil {
		editing = s.draft.ManifestID
	}
	s.mu.Unlock()

	return allocation.Eligible(s.shipments.Snapshot(), s.manifests.Snapshot(), editing, s.scope, s.lookup)
}

// SelectShipment adds a shipment id to the draft selection.
func (s *Session) SelectShipment(id model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return &InvalidTransitionError{From: s.state, Op: "select shipment"}
	}
	if !slices.Contains(s.draft.Selected, id) {
		s.draft.Selected = append(s.draft.Selected, id)
	}
	return nil
}

// DeselectShipment removes a shipment id from the draft selection.
func (s *Session) DeselectShipment(id model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return &InvalidTransitionError{From: s.state, Op: "deselect shipment"}
	}
	s.draft.Selected = slices.DeleteFunc(s.draft.Selected, func(sel model.ID) bool {
		return sel == id
	})
	return nil
}

// SetDestination assigns the destination descriptor: exactly one of a
// destination branch or a forwarding vendor, per the manifest type.
func (s *Session) SetDestination(manifestType model.ManifestType, destination model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return &InvalidTransitionError{From: s.state, Op: "set destination"}
	}
	s.draft.ManifestType = manifestType
	switch manifestType {
	case model.ManifestToBranch:
		s.draft.DestinationBranch = destination
		s.draft.ForwardingVendor = ""
	case model.ManifestToVendor:
		s.draft.ForwardingVendor = destination
		s.draft.DestinationBranch = ""
	}
	return nil
}

// SetVehicle assigns the vehicle number and driver name.
func (s *Session) SetVehicle(vehicleNumber, driverName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return &InvalidTransitionError{From: s.state, Op: "set vehicle"}
	}
	s.draft.VehicleNumber = vehicleNumber
	s.draft.DriverName = driverName
	return nil
}

// Cancel discards the draft without mutation and returns to idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
	s.state = StateIdle
}

// Submit validates the draft, resolves the selection against the live
// shipment snapshot, and persists the manifest: create in drafting mode,
// update in editing mode. On success the session returns to idle and the
// draft is cleared; on gateway failure the draft and originating state are
// kept so in-progress edits are not lost.
func (s *Session) Submit(ctx context.Context) (model.Manifest, error) {
	s.mu.Lock()
	if s.state != StateDrafting && s.state != StateEditing {
		from := s.state
		s.mu.Unlock()
		return model.Manifest{}, &InvalidTransitionError{From: from, Op: "submit"}
	}
	origin := s.state
	draft := *s.draft
	draft.Selected = slices.Clone(s.draft.Selected)
	s.mu.Unlock()

	// Validation is local and synchronous; nothing below it runs on failure.
	resolved, err := s.resolveSelection(draft)
	if err != nil {
		return model.Manifest{}, err
	}

	manifest := model.Manifest{
		ID:                draft.ManifestID,
		Sequence:          draft.Sequence,
		Branch:            draft.Branch,
		ManifestType:      draft.ManifestType,
		DestinationBranch: draft.DestinationBranch,
		ForwardingVendor:  draft.ForwardingVendor,
		VehicleNumber:     draft.VehicleNumber,
		DriverName:        draft.DriverName,
	}
	if err := manifest.SetSelectedShipments(resolved); err != nil {
		return model.Manifest{}, err
	}

	s.mu.Lock()
	s.state = StateSubmitting
	s.mu.Unlock()

	var persisted model.Manifest
	if origin == StateDrafting {
		persisted, err = s.manifests.Create(ctx, manifest)
	} else {
		persisted, err = s.manifests.Update(ctx, string(draft.ManifestID), manifest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Back to the originating state; the draft survives the failure.
		s.state = origin
		return model.Manifest{}, err
	}
	s.draft = nil
	s.state = StateIdle
	return persisted, nil
}

// DeleteManifest removes a manifest, refusing when a trip references it.
func (s *Session) DeleteManifest(ctx context.Context, id model.ID) error {
	if s.trips != nil {
		hasTrip, err := s.trips.HasTrip(ctx, id)
		if err != nil {
			return err
		}
		if hasTrip {
			return &GuardViolationError{ManifestID: id}
		}
	}
	return s.manifests.Remove(ctx, string(id))
}

// resolveSelection validates the draft and maps selected ids to live
// shipment entities, so edits made to shipment data elsewhere are carried
// into the persisted snapshot rather than the stale embedded copies.
func (s *Session) resolveSelection(draft Draft) ([]model.Shipment, error) {
	var c validation.Collector

	if len(draft.Selected) == 0 {
		c.Add(&validation.ValidationError{Field: "selectedShipments", Message: "at least one shipment must be selected"})
	}
	if draft.VehicleNumber == "" {
		c.Add(&validation.ValidationError{Field: "vehicleNumber", Message: "is required"})
	}
	if draft.DriverName == "" {
		c.Add(&validation.ValidationError{Field: "driverName", Message: "is required"})
	}
	switch draft.ManifestType {
	case model.ManifestToBranch:
		if draft.DestinationBranch == "" {
			c.Add(&validation.ValidationError{Field: "destinationBranch", Message: "is required"})
		}
	case model.ManifestToVendor:
		if draft.ForwardingVendor == "" {
			c.Add(&validation.ValidationError{Field: "forwardingVendor", Message: "is required"})
		}
	default:
		c.Add(&validation.ValidationError{Field: "manifestType", Message: "must be BRANCH or VENDOR"})
	}

	live := make(map[model.ID]model.Shipment)
	for _, sh := range s.shipments.Snapshot() {
		live[sh.ID] = sh
	}
	manifests := s.manifests.Snapshot()

	resolved := make([]model.Shipment, 0, len(draft.Selected))
	for _, id := range draft.Selected {
		sh, ok := live[id]
		if !ok {
			c.Add(&validation.ValidationError{Field: "selectedShipments", Message: "shipment " + string(id) + " no longer exists"})
			continue
		}
		if allocation.AllocatedElsewhere(manifests, id, draft.ManifestID) {
			c.Add(&validation.ValidationError{Field: "selectedShipments", Message: "shipment " + string(id) + " is already on another manifest"})
			continue
		}
		resolved = append(resolved, sh)
	}

	if c.HasErrors() {
		return nil, &ValidationError{Errors: c.Errors()}
	}
	return resolved, nil
}

func (s *Session) copyDraftLocked() *Draft {
	d := *s.draft
	d.Selected = slices.Clone(s.draft.Selected)
	return &d
}

// nextSequence scans the manifest snapshot for the highest sequence and
// returns the successor.
func nextSequence(manifests []model.Manifest) int {
	max := 0
	for _, m := range manifests {
		if m.Sequence > max {
			max = m.Sequence
		}
	}
	return max + 1
}
