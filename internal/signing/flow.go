package signing

import (
	"context"
	"errors"
	"fmt"

	"marketplace-service/internal/models"
)

var (
	// ErrWalletNotConnected is returned after prompting the wallet to connect.
	// The caller must start the flow again once an account is available.
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrNotAParty          = errors.New("signer is not a party to the contract")
)

// Submitter delivers a signature to the contract store.
type Submitter interface {
	SubmitSignature(ctx context.Context, sub models.SignatureSubmission) (models.Contract, error)
}

// Signer identifies who is signing.
type Signer struct {
	ID   string
	Name string
	Role models.SignerRole
}

// RoleFor returns the side userID signs for.
func RoleFor(c models.Contract, userID string) (models.SignerRole, error) {
	switch userID {
	case c.CompanyID:
		return models.SignerClient, nil
	case c.FreelancerID:
		return models.SignerFreelancer, nil
	}
	return "", ErrNotAParty
}

// Flow signs contracts with a wallet and submits the result.
type Flow struct {
	wallet    Wallet
	submitter Submitter
}

func NewFlow(wallet Wallet, submitter Submitter) *Flow {
	return &Flow{wallet: wallet, submitter: submitter}
}

// Sign hashes the contract, signs the hash with the first connected account
// and submits the signature. Without a connected account it requests a
// connection and returns ErrWalletNotConnected without signing.
func (f *Flow) Sign(ctx context.Context, contract models.Contract, signer Signer) (models.Contract, error) {
	accounts, err := f.wallet.Accounts(ctx)
	if err != nil {
		return models.Contract{}, fmt.Errorf("list wallet accounts: %w", err)
	}
	if len(accounts) == 0 {
		if _, err := f.wallet.Connect(ctx); err != nil {
			return models.Contract{}, fmt.Errorf("connect wallet: %w", err)
		}
		return models.Contract{}, ErrWalletNotConnected
	}

	hash, err := Hash(contract)
	if err != nil {
		return models.Contract{}, fmt.Errorf("hash contract: %w", err)
	}
	address := accounts[0]
	signature, err := f.wallet.PersonalSign(ctx, hash, address)
	if err != nil {
		return models.Contract{}, fmt.Errorf("sign contract: %w", err)
	}

	return f.submitter.SubmitSignature(ctx, models.SignatureSubmission{
		ContractID:    contract.ID,
		SignerID:      signer.ID,
		SignerName:    signer.Name,
		Role:          signer.Role,
		WalletAddress: address,
		Signature:     signature,
		Hash:          hash,
	})
}
