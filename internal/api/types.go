package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
)

// OwnedRecord is one entry of the owned list, sent as the tuple [envelope, id].
type OwnedRecord struct {
	Envelope crypto.Envelope
	ID       string
}

// MarshalJSON implements json.Marshaler.
func (r OwnedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Envelope, r.ID})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *OwnedRecord) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("owned record: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("owned record: want 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Envelope); err != nil {
		return fmt.Errorf("owned record envelope: %w", err)
	}
	id, err := decodeID(tuple[1])
	if err != nil {
		return fmt.Errorf("owned record id: %w", err)
	}
	r.ID = id
	return nil
}

// SharedRecord is one entry of the shared list, sent as the tuple
// [shared envelope, owner id, record id].
type SharedRecord struct {
	Shared crypto.SharedEnvelope
	Owner  string
	ID     string
}

// MarshalJSON implements json.Marshaler.
func (r SharedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Shared, r.Owner, r.ID})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *SharedRecord) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("shared record: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("shared record: want 3 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Shared); err != nil {
		return fmt.Errorf("shared record envelope: %w", err)
	}
	owner, err := decodeID(tuple[1])
	if err != nil {
		return fmt.Errorf("shared record owner: %w", err)
	}
	id, err := decodeID(tuple[2])
	if err != nil {
		return fmt.Errorf("shared record id: %w", err)
	}
	r.Owner, r.ID = owner, id
	return nil
}

// decodeID accepts a JSON string or number.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// ListResponse is the send_all response.
type ListResponse struct {
	Passwords []OwnedRecord  `json:"passwords"`
	Shared    []SharedRecord `json:"shared"`
}

// createResponse is the optional create_pass response body.
type createResponse struct {
	ID json.RawMessage `json:"id"`
}
