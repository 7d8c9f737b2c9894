package signing

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"

	"marketplace-service/internal/models"
)

const dateLayout = "2006-01-02"

// Payload is the canonical content both parties sign. Field order is fixed and
// is part of the hash.
type Payload struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	FreelancerID string   `json:"freelancerId"`
	ClientID     string   `json:"clientId"`
	Value        float64  `json:"value"`
	Currency     string   `json:"currency"`
	StartDate    string   `json:"startDate"`
	EndDate      string   `json:"endDate"`
	Terms        string   `json:"terms"`
	Deliverables []string `json:"deliverables"`
}

// PayloadFor extracts the canonical payload of a contract.
func PayloadFor(c models.Contract) Payload {
	deliverables := c.Deliverables
	if deliverables == nil {
		deliverables = []string{}
	}
	return Payload{
		ID:           c.ID,
		Title:        c.Title,
		FreelancerID: c.FreelancerID,
		ClientID:     c.CompanyID,
		Value:        c.Value,
		Currency:     c.Currency,
		StartDate:    c.StartDate.UTC().Format(dateLayout),
		EndDate:      c.EndDate.UTC().Format(dateLayout),
		Terms:        c.Terms,
		Deliverables: deliverables,
	}
}

// Canonical returns the compact JSON encoding of the payload.
func (p Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// Hash returns the 0x-prefixed Keccak-256 of the canonical payload.
func (p Payload) Hash() (string, error) {
	data, err := p.Canonical()
	if err != nil {
		return "", err
	}
	return Keccak256Hex(data), nil
}

// Hash is shorthand for PayloadFor(c).Hash().
func Hash(c models.Contract) (string, error) {
	return PayloadFor(c).Hash()
}

// Keccak256Hex hashes data with the legacy Keccak-256 used by Ethereum tooling.
func Keccak256Hex(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
