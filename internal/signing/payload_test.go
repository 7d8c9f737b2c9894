package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

func sampleContract() models.Contract {
	return models.Contract{
		ID:           "c-1",
		Title:        "Landing page",
		CompanyID:    "acme",
		CompanyName:  "Acme",
		FreelancerID: "fred",
		Value:        1500,
		Currency:     "USD",
		StartDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
		Terms:        "Net 30",
		Deliverables: []string{"design", "build"},
	}
}

func TestCanonicalFieldOrder(t *testing.T) {
	data, err := PayloadFor(sampleContract()).Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":"c-1","title":"Landing page","freelancerId":"fred","clientId":"acme","value":1500,"currency":"USD","startDate":"2024-03-01","endDate":"2024-04-15","terms":"Net 30","deliverables":["design","build"]}`,
		string(data))
}

func TestHashIsDeterministic(t *testing.T) {
	a, err := Hash(sampleContract())
	require.NoError(t, err)
	b, err := Hash(sampleContract())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 66)
	assert.Equal(t, "0x", a[:2])
}

func TestHashIgnoresSignaturesAndNames(t *testing.T) {
	base, err := Hash(sampleContract())
	require.NoError(t, err)

	changed := sampleContract()
	changed.CompanyName = "Other"
	changed.Signatures = []models.Signature{{Role: models.SignerClient}}
	anchor := "0xabc"
	changed.BlockchainHash = &anchor
	got, err := Hash(changed)
	require.NoError(t, err)
	assert.Equal(t, base, got)

	changed.Terms = "Net 60"
	got, err = Hash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, got)
}

func TestNilDeliverablesHashLikeEmpty(t *testing.T) {
	withNil := sampleContract()
	withNil.Deliverables = nil
	withEmpty := sampleContract()
	withEmpty.Deliverables = []string{}

	a, err := Hash(withNil)
	require.NoError(t, err)
	b, err := Hash(withEmpty)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeccak256Hex(t *testing.T) {
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hex(nil))
}

func TestRoleFor(t *testing.T) {
	c := sampleContract()
	role, err := RoleFor(c, "acme")
	require.NoError(t, err)
	assert.Equal(t, models.SignerClient, role)

	role, err = RoleFor(c, "fred")
	require.NoError(t, err)
	assert.Equal(t, models.SignerFreelancer, role)

	_, err = RoleFor(c, "mallory")
	assert.ErrorIs(t, err, ErrNotAParty)
}
