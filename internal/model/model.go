package model

import (
	"encoding/json"
	"time"
)

// PaymentMode classifies how a shipment's freight is settled.
type PaymentMode string

const (
	PaymentPaid   PaymentMode = "PAID"
	PaymentToPay  PaymentMode = "TO_PAY"
	PaymentBilled PaymentMode = "TBB"
)

// ManifestType discriminates the manifest's destination descriptor:
// either a branch of our own network or an external forwarding vendor.
type ManifestType string

const (
	ManifestToBranch ManifestType = "BRANCH"
	ManifestToVendor ManifestType = "VENDOR"
)

// Role classifies an acting user for visibility scoping.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Shipment is a single cargo booking record (an "LR" in operator jargon).
type Shipment struct {
	ID          ID          `json:"id"`
	Branch      ID          `json:"branch"`
	Destination ID          `json:"destination"`
	PaymentMode PaymentMode `json:"paymentMode"`
	Consignor   ID          `json:"consignor"`
	Consignee   ID          `json:"consignee"`
	Pieces      int         `json:"pieces"`
	Weight      float64     `json:"weight"`
	TotalAmount float64     `json:"totalAmount"`
	BookedAt    time.Time   `json:"bookedAt"`
}

// EntityID implements syncstore.Entity.
func (s Shipment) EntityID() string { return string(s.ID) }

// Manifest is a dispatch document grouping a vehicle, a driver, and a set
// of shipments for one outbound trip.
//
// SelectedShipments is kept as raw JSON because persisted manifests carry
// several encodings of the embedded shipment snapshot: a list of full
// shipment objects, a list of bare ids, or the whole list serialized as a
// JSON string. Use SelectedShipmentRefs / SelectedShipmentEntities to read
// it and SetSelectedShipments to write it canonically.
type Manifest struct {
	ID                ID              `json:"id"`
	Sequence          int             `json:"sequence"`
	Branch            ID              `json:"branch"`
	ManifestType      ManifestType    `json:"manifestType"`
	DestinationBranch ID              `json:"destinationBranch,omitempty"`
	ForwardingVendor  ID              `json:"forwardingVendor,omitempty"`
	VehicleNumber     string          `json:"vehicleNumber"`
	DriverName        string          `json:"driverName"`
	SelectedShipments json.RawMessage `json:"selectedShipments"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// EntityID implements syncstore.Entity.
func (m Manifest) EntityID() string { return string(m.ID) }

// SelectedShipmentRefs returns the normalized id refs of the embedded
// shipment snapshot. Callers that can tolerate malformed data should treat
// an error as an empty set rather than propagating it.
func (m Manifest) SelectedShipmentRefs() ([]ShipmentRef, error) {
	return ParseShipmentRefs(m.SelectedShipments)
}

// SelectedShipmentEntities decodes the embedded snapshot as full shipment
// records. Entries persisted as bare ids decode to shipments carrying only
// their id.
func (m Manifest) SelectedShipmentEntities() ([]Shipment, error) {
	return ParseShipmentSnapshot(m.SelectedShipments)
}

// SetSelectedShipments replaces the embedded snapshot with the canonical
// encoding: a JSON array of full shipment objects.
func (m *Manifest) SetSelectedShipments(shipments []Shipment) error {
	if shipments == nil {
		shipments = []Shipment{}
	}
	raw, err := json.Marshal(shipments)
	if err != nil {
		return err
	}
	m.SelectedShipments = raw
	return nil
}

// Branch is an operating location of the carrier network.
type Branch struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	City    ID     `json:"city"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// EntityID implements syncstore.Entity.
func (b Branch) EntityID() string { return string(b.ID) }

// Vehicle is a truck registered with the operator.
type Vehicle struct {
	ID         ID     `json:"id"`
	Number     string `json:"number"`
	Model      string `json:"model,omitempty"`
	CapacityKg int    `json:"capacityKg,omitempty"`
}

// EntityID implements syncstore.Entity.
func (v Vehicle) EntityID() string { return string(v.ID) }

// Driver is a person licensed to run trips.
type Driver struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	License string `json:"license,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// EntityID implements syncstore.Entity.
func (d Driver) EntityID() string { return string(d.ID) }

// User is a back-office account. Non-admin users are scoped to one branch.
type User struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Branch ID     `json:"branch,omitempty"`
}

// EntityID implements syncstore.Entity.
func (u User) EntityID() string { return string(u.ID) }
