package models

import (
	"fmt"
	"time"
)

// SignerRole is the contractual side a signature was produced for.
type SignerRole string

const (
	SignerClient     SignerRole = "client"
	SignerFreelancer SignerRole = "freelancer"
)

// SignatureQuorum is the number of signatures a contract needs to execute.
const SignatureQuorum = 2

// RequiredSignerRoles lists the roles that must each sign once.
var RequiredSignerRoles = []SignerRole{SignerClient, SignerFreelancer}

// Contract is an agreement between a company (client) and a freelancer.
type Contract struct {
	ID             string      `db:"id" json:"id"`
	Title          string      `db:"title" json:"title"`
	CompanyID      string      `db:"company_id" json:"company_id"`
	CompanyName    string      `db:"company_name" json:"company_name"`
	FreelancerID   string      `db:"freelancer_id" json:"freelancer_id"`
	FreelancerName string      `db:"freelancer_name" json:"freelancer_name"`
	Value          float64     `db:"value" json:"value"`
	Currency       string      `db:"currency" json:"currency"`
	StartDate      time.Time   `db:"start_date" json:"start_date"`
	EndDate        time.Time   `db:"end_date" json:"end_date"`
	Terms          string      `db:"terms" json:"terms"`
	Deliverables   []string    `db:"-" json:"deliverables"`
	Signatures     []Signature `db:"-" json:"signatures"`
	BlockchainHash *string     `db:"blockchain_hash" json:"blockchain_hash,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Signature is one party's wallet signature over the contract hash.
type Signature struct {
	ID            string     `db:"id" json:"id"`
	ContractID    string     `db:"contract_id" json:"contract_id"`
	SignerID      string     `db:"signer_id" json:"signer_id"`
	SignerName    string     `db:"signer_name" json:"signer_name"`
	Role          SignerRole `db:"role" json:"role"`
	WalletAddress string     `db:"wallet_address" json:"wallet_address"`
	Signature     string     `db:"signature" json:"signature"`
	ContentHash   string     `db:"content_hash" json:"hash"`
	SignedAt      time.Time  `db:"signed_at" json:"signed_at"`
}

// SignatureRatio is the displayed signing progress, len(signatures)/2. It is
// not capped: a retried signature pushes it past 1.
func (c Contract) SignatureRatio() float64 {
	return float64(len(c.Signatures)) / SignatureQuorum
}

// SignatureProgress renders the ratio the way it is shown to users, e.g. "1/2".
func (c Contract) SignatureProgress() string {
	return fmt.Sprintf("%d/%d", len(c.Signatures), SignatureQuorum)
}

// HasSigned reports whether a signature exists for role.
func (c Contract) HasSigned(role SignerRole) bool {
	for _, sig := range c.Signatures {
		if sig.Role == role {
			return true
		}
	}
	return false
}

// FullySigned reports whether every required role has signed. The hashes of the
// individual signatures are not compared.
func (c Contract) FullySigned() bool {
	for _, role := range RequiredSignerRoles {
		if !c.HasSigned(role) {
			return false
		}
	}
	return true
}

// SignatureSubmission is the body a signer posts after signing with a wallet.
type SignatureSubmission struct {
	ContractID    string     `json:"contractId"`
	SignerID      string     `json:"signerId" validate:"required"`
	SignerName    string     `json:"signerName"`
	Role          SignerRole `json:"role" validate:"required,oneof=client freelancer"`
	WalletAddress string     `json:"walletAddress" validate:"required"`
	Signature     string     `json:"signature" validate:"required"`
	Hash          string     `json:"hash" validate:"required"`
}

// ToSignature converts the submission to the stored form.
func (s SignatureSubmission) ToSignature() Signature {
	return Signature{
		ContractID:    s.ContractID,
		SignerID:      s.SignerID,
		SignerName:    s.SignerName,
		Role:          s.Role,
		WalletAddress: s.WalletAddress,
		Signature:     s.Signature,
		ContentHash:   s.Hash,
	}
}
