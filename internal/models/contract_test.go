package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContractQuorumProgression(t *testing.T) {
	c := Contract{ID: "k1"}
	assert.Equal(t, 0.0, c.SignatureRatio())
	assert.False(t, c.FullySigned())

	c.Signatures = append(c.Signatures, Signature{Role: SignerClient, ContentHash: "0xaa"})
	assert.Equal(t, 0.5, c.SignatureRatio())
	assert.Equal(t, "1/2", c.SignatureProgress())
	assert.False(t, c.FullySigned())

	c.Signatures = append(c.Signatures, Signature{Role: SignerFreelancer, ContentHash: "0xaa"})
	assert.Equal(t, 1.0, c.SignatureRatio())
	assert.Equal(t, "2/2", c.SignatureProgress())
	assert.True(t, c.FullySigned())
}

func TestContractDuplicateRoleIsNotFullySigned(t *testing.T) {
	c := Contract{Signatures: []Signature{{Role: SignerClient}, {Role: SignerClient}}}
	assert.Equal(t, 1.0, c.SignatureRatio())
	assert.False(t, c.FullySigned())
}

func TestContractThirdSignatureIsKept(t *testing.T) {
	c := Contract{Signatures: []Signature{
		{Role: SignerClient},
		{Role: SignerFreelancer},
		{Role: SignerFreelancer},
	}}
	assert.Equal(t, 1.5, c.SignatureRatio())
	assert.Equal(t, "3/2", c.SignatureProgress())
	assert.True(t, c.FullySigned())
}

func TestContractFullySignedIgnoresHashMismatch(t *testing.T) {
	c := Contract{Signatures: []Signature{
		{Role: SignerClient, ContentHash: "0x01"},
		{Role: SignerFreelancer, ContentHash: "0x02"},
	}}
	assert.True(t, c.FullySigned())
}
