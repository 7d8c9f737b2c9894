package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/models"
)

func TestNewSessionRequiresToken(t *testing.T) {
	_, err := newSession(viper.New())
	require.Error(t, err)
}

func TestNewSessionTakesIdentityFromToken(t *testing.T) {
	token, err := auth.NewVerifier("secret", 0).Issue(models.Company{ID: "c1", Name: "Acme"})
	require.NoError(t, err)

	v := viper.New()
	v.Set("token", token)
	v.Set("api-url", "http://localhost:0")
	v.Set("log-level", "error")

	s, err := newSession(v)
	require.NoError(t, err)
	assert.Equal(t, "c1", s.me.UserID)
	assert.Equal(t, "Acme", s.me.UserName)
	assert.Equal(t, models.RoleCompany, s.me.Role)
}

func TestPrintContractShowsProgress(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	printContract(cmd, models.Contract{
		ID:             "k1",
		Title:          "Landing page",
		CompanyName:    "Acme",
		FreelancerName: "Bob",
		Value:          1200,
		Currency:       "USD",
		Signatures: []models.Signature{
			{Role: models.SignerClient, SignerName: "Acme", WalletAddress: "0xabc"},
		},
	})

	assert.Contains(t, out.String(), "Landing page")
	assert.Contains(t, out.String(), "1/2")
	assert.NotContains(t, out.String(), "fully signed")
}
