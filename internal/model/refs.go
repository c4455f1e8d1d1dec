package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an entity identifier. Persisted data mixes string and numeric ids
// for the same entities, so IDs always unmarshal to their string form and
// compare as strings.
type ID string

// UnmarshalJSON accepts both string and numeric encodings.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// ShipmentRef is the canonical reference to a shipment: its id and nothing
// else. All the encodings found in persisted manifests (bare string id,
// bare numeric id, {id: ...} object, or a fully embedded shipment) normalize
// to this form before any set-membership logic runs.
type ShipmentRef struct {
	ID ID `json:"id"`
}

// UnmarshalJSON normalizes every persisted shipment-reference shape.
func (r *ShipmentRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty shipment reference")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.ID = ID(s)
		return nil
	case '{':
		var obj struct {
			ID  *ID `json:"id"`
			Alt *ID `json:"_id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		switch {
		case obj.ID != nil && *obj.ID != "":
			r.ID = *obj.ID
		case obj.Alt != nil && *obj.Alt != "":
			r.ID = *obj.Alt
		default:
			return fmt.Errorf("shipment reference object has no id")
		}
		return nil
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return fmt.Errorf("unsupported shipment reference encoding: %s", data)
		}
		r.ID = ID(data)
		return nil
	}
}

// ParseShipmentRefs decodes a manifest's embedded shipment snapshot into
// normalized refs. The raw value may be a JSON array or a JSON string
// containing a serialized array (both occur in persisted data).
func ParseShipmentRefs(raw json.RawMessage) ([]ShipmentRef, error) {
	data, err := unwrapStringEncoding(raw)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var refs []ShipmentRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parse shipment refs: %w", err)
	}
	return refs, nil
}

// ParseShipmentSnapshot decodes the embedded snapshot as full shipment
// records, tolerating the same outer encodings as ParseShipmentRefs. Bare
// id entries decode to shipments carrying only their id.
func ParseShipmentSnapshot(raw json.RawMessage) ([]Shipment, error) {
	data, err := unwrapStringEncoding(raw)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("parse shipment snapshot: %w", err)
	}
	shipments := make([]Shipment, 0, len(elems))
	for _, elem := range elems {
		if len(elem) > 0 && elem[0] == '{' {
			var s Shipment
			if err := json.Unmarshal(elem, &s); err != nil {
				return nil, fmt.Errorf("parse shipment snapshot: %w", err)
			}
			if s.ID == "" {
				return nil, fmt.Errorf("parse shipment snapshot: entry has no id")
			}
			shipments = append(shipments, s)
			continue
		}
		var ref ShipmentRef
		if err := json.Unmarshal(elem, &ref); err != nil {
			return nil, fmt.Errorf("parse shipment snapshot: %w", err)
		}
		shipments = append(shipments, Shipment{ID: ref.ID})
	}
	return shipments, nil
}

// unwrapStringEncoding peels one level of string wrapping off a raw value:
// some writers persisted the shipment list as a JSON string containing the
// serialized array.
func unwrapStringEncoding(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("unwrap shipment list string: %w", err)
	}
	if inner == "" {
		return nil, nil
	}
	return json.RawMessage(inner), nil
}
