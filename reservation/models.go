package reservation

import (
	"encoding/json"
	"strconv"
)

// Status is the lifecycle state of a reservation row.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusBlocked   Status = "blocked"
)

// Reservation is the closed record type for one reservation row. Unknown
// keys arriving from the remote system are preserved opaquely in Extra so
// round-tripping never drops tenant-specific extensions; core logic never
// branches on them.
type Reservation struct {
	ID               string // remote identifier, "" for unsaved rows
	ProvisionalID    string // client-generated identity for rows with no remote ID yet
	TenantID         string
	Date             string // "YYYY-MM-DD"
	TimeSlot         string // "HH:mm", "" when unset
	Name             string
	PartySize        int
	ContactInfo      string
	Status           Status
	ConfirmationCode string

	Extra map[string]json.RawMessage
}

// UpsertRecord is one element of a reservation write batch. A nil RecordID
// asks the remote side to create the row.
type UpsertRecord struct {
	RecordID      *string     `json:"recordId"`
	UpdatedFields Reservation `json:"updatedFields"`
}

// knownKeys are the wire names owned by the closed record; everything else
// round-trips through Extra.
var knownKeys = map[string]struct{}{
	"id":               {},
	"tenantId":         {},
	"date":             {},
	"time":             {},
	"name":             {},
	"partySize":        {},
	"contact":          {},
	"status":           {},
	"confirmationCode": {},
}

func (r *Reservation) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	unmarshalString(raw["id"], &r.ID)
	unmarshalString(raw["tenantId"], &r.TenantID)
	unmarshalString(raw["date"], &r.Date)
	unmarshalString(raw["time"], &r.TimeSlot)
	unmarshalString(raw["name"], &r.Name)
	unmarshalString(raw["contact"], &r.ContactInfo)
	unmarshalString(raw["confirmationCode"], &r.ConfirmationCode)

	var status string
	unmarshalString(raw["status"], &status)
	r.Status = Status(status)

	r.PartySize = decodePartySize(raw["partySize"])

	for key, value := range raw {
		if _, known := knownKeys[key]; known {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = value
	}
	return nil
}

func (r Reservation) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(knownKeys)+len(r.Extra))
	for key, value := range r.Extra {
		out[key] = value
	}

	marshalString(out, "id", r.ID)
	marshalString(out, "tenantId", r.TenantID)
	marshalString(out, "date", r.Date)
	marshalString(out, "time", r.TimeSlot)
	marshalString(out, "name", r.Name)
	marshalString(out, "contact", r.ContactInfo)
	marshalString(out, "confirmationCode", r.ConfirmationCode)
	marshalString(out, "status", string(r.Status))
	if r.PartySize != 0 {
		out["partySize"], _ = json.Marshal(r.PartySize)
	}

	return json.Marshal(out)
}

// IsEmpty reports whether every editable field is unset; all-empty rows are
// excluded from pushes.
func (r Reservation) IsEmpty() bool {
	return r.Name == "" && r.TimeSlot == "" && r.PartySize == 0 &&
		r.ContactInfo == "" && r.Status == "" && r.ConfirmationCode == ""
}

func unmarshalString(data json.RawMessage, dst *string) {
	if len(data) == 0 {
		return
	}
	// Tolerate non-string scalars from older tenants by falling back to the
	// raw text.
	if err := json.Unmarshal(data, dst); err != nil {
		*dst = string(data)
	}
}

// decodePartySize accepts both numeric and numeric-string party sizes.
func decodePartySize(data json.RawMessage) int {
	if len(data) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := strconv.Atoi(s); err == nil {
			return parsed
		}
	}
	return 0
}

func marshalString(out map[string]json.RawMessage, key, value string) {
	if value == "" {
		return
	}
	encoded, _ := json.Marshal(value)
	out[key] = encoded
}
