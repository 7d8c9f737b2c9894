package signing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

type walletMock struct {
	mock.Mock
}

func (m *walletMock) Accounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *walletMock) Connect(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *walletMock) PersonalSign(ctx context.Context, message, address string) (string, error) {
	args := m.Called(ctx, message, address)
	return args.String(0), args.Error(1)
}

type submitterMock struct {
	mock.Mock
}

func (m *submitterMock) SubmitSignature(ctx context.Context, sub models.SignatureSubmission) (models.Contract, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(models.Contract), args.Error(1)
}

func TestSignWithoutAccountRequestsConnection(t *testing.T) {
	wallet := new(walletMock)
	submitter := new(submitterMock)
	flow := NewFlow(wallet, submitter)

	wallet.On("Accounts", mock.Anything).Return([]string{}, nil).Once()
	wallet.On("Connect", mock.Anything).Return([]string{"0xabc"}, nil).Once()

	_, err := flow.Sign(context.Background(), sampleContract(), Signer{ID: "acme", Role: models.SignerClient})
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	wallet.AssertExpectations(t)
	wallet.AssertNotCalled(t, "PersonalSign", mock.Anything, mock.Anything, mock.Anything)
	submitter.AssertNotCalled(t, "SubmitSignature", mock.Anything, mock.Anything)
}

func TestSignSubmitsHashAndSignature(t *testing.T) {
	wallet := new(walletMock)
	submitter := new(submitterMock)
	flow := NewFlow(wallet, submitter)
	contract := sampleContract()
	hash, err := Hash(contract)
	require.NoError(t, err)

	wallet.On("Accounts", mock.Anything).Return([]string{"0xabc", "0xdef"}, nil).Once()
	wallet.On("PersonalSign", mock.Anything, hash, "0xabc").Return("0xsig", nil).Once()

	expected := models.SignatureSubmission{
		ContractID:    "c-1",
		SignerID:      "fred",
		SignerName:    "Fred",
		Role:          models.SignerFreelancer,
		WalletAddress: "0xabc",
		Signature:     "0xsig",
		Hash:          hash,
	}
	signed := contract
	signed.Signatures = []models.Signature{expected.ToSignature()}
	submitter.On("SubmitSignature", mock.Anything, expected).Return(signed, nil).Once()

	got, err := flow.Sign(context.Background(), contract, Signer{ID: "fred", Name: "Fred", Role: models.SignerFreelancer})
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.SignatureRatio())

	wallet.AssertExpectations(t)
	submitter.AssertExpectations(t)
}

func TestSignRejectedByWalletDoesNotSubmit(t *testing.T) {
	wallet := new(walletMock)
	submitter := new(submitterMock)
	flow := NewFlow(wallet, submitter)

	wallet.On("Accounts", mock.Anything).Return([]string{"0xabc"}, nil).Once()
	wallet.On("PersonalSign", mock.Anything, mock.Anything, "0xabc").Return("", &RPCError{Code: 4001, Message: "User rejected the request."}).Once()

	_, err := flow.Sign(context.Background(), sampleContract(), Signer{ID: "acme", Role: models.SignerClient})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 4001, rpcErr.Code)
	submitter.AssertNotCalled(t, "SubmitSignature", mock.Anything, mock.Anything)
}
