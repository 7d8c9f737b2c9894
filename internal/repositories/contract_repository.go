package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"marketplace-service/internal/models"
)

var ErrContractNotFound = errors.New("contract not found")

var contractColumns = []string{
	"id", "title", "company_id", "company_name", "freelancer_id", "freelancer_name",
	"value", "currency", "start_date", "end_date", "terms", "deliverables", "blockchain_hash", "created_at",
}

var signatureColumns = []string{
	"id", "contract_id", "signer_id", "signer_name", "role", "wallet_address", "signature", "content_hash", "signed_at",
}

// ContractRepository abstracts contract and signature persistence.
type ContractRepository interface {
	CreateContract(ctx context.Context, contract models.Contract) (models.Contract, error)
	GetContract(ctx context.Context, contractID string) (models.Contract, error)
	AppendSignature(ctx context.Context, sig models.Signature) (models.Contract, error)
	SetAnchor(ctx context.Context, contractID string, hash string) error
}

// ContractRepo is a sqlx implementation of ContractRepository.
type ContractRepo struct {
	db *sqlx.DB
}

// NewContractRepo constructs a ContractRepo.
func NewContractRepo(db *sqlx.DB) *ContractRepo {
	return &ContractRepo{db: db}
}

type contractRow struct {
	models.Contract
	Deliverables pq.StringArray `db:"deliverables"`
}

// CreateContract stores a new contract without signatures.
func (r *ContractRepo) CreateContract(ctx context.Context, c models.Contract) (models.Contract, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	deliverables := c.Deliverables
	if deliverables == nil {
		deliverables = []string{}
	}

	_, err := execBuilt(ctx, r.db, psql.Insert("contracts").
		Columns("id", "title", "company_id", "company_name", "freelancer_id", "freelancer_name",
			"value", "currency", "start_date", "end_date", "terms", "deliverables").
		Values(c.ID, c.Title, c.CompanyID, c.CompanyName, c.FreelancerID, c.FreelancerName,
			c.Value, c.Currency, c.StartDate, c.EndDate, c.Terms, pq.StringArray(deliverables)))
	if err != nil {
		return models.Contract{}, err
	}
	return r.GetContract(ctx, c.ID)
}

// GetContract loads a contract with its signatures in signing order.
func (r *ContractRepo) GetContract(ctx context.Context, contractID string) (models.Contract, error) {
	return loadContract(ctx, r.db, contractID, false)
}

// AppendSignature adds a signature under a row lock on the contract, so
// concurrent signers are serialized. Duplicate roles are accepted.
func (r *ContractRepo) AppendSignature(ctx context.Context, sig models.Signature) (models.Contract, error) {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.SignedAt.IsZero() {
		sig.SignedAt = time.Now().UTC()
	}

	var contract models.Contract
	err := atomic(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := loadContract(ctx, tx, sig.ContractID, true); err != nil {
			return err
		}
		if _, err := execBuilt(ctx, tx, psql.Insert("contract_signatures").
			Columns(signatureColumns...).
			Values(sig.ID, sig.ContractID, sig.SignerID, sig.SignerName, string(sig.Role),
				sig.WalletAddress, sig.Signature, sig.ContentHash, sig.SignedAt)); err != nil {
			return err
		}
		var err error
		contract, err = loadContract(ctx, tx, sig.ContractID, false)
		return err
	})
	return contract, err
}

// SetAnchor records the blockchain anchor hash of a contract.
func (r *ContractRepo) SetAnchor(ctx context.Context, contractID string, hash string) error {
	res, err := execBuilt(ctx, r.db, psql.Update("contracts").Set("blockchain_hash", hash).Where(sq.Eq{"id": contractID}))
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrContractNotFound
	}
	return nil
}

func loadContract(ctx context.Context, q sqlx.QueryerContext, contractID string, forUpdate bool) (models.Contract, error) {
	sel := psql.Select(contractColumns...).From("contracts").Where(sq.Eq{"id": contractID})
	if forUpdate {
		sel = sel.Suffix("FOR UPDATE")
	}

	var row contractRow
	err := getBuilt(ctx, q, &row, sel)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contract{}, ErrContractNotFound
	}
	if err != nil {
		return models.Contract{}, err
	}

	contract := row.Contract
	contract.Deliverables = []string(row.Deliverables)

	var sigs []models.Signature
	if err := selectBuilt(ctx, q, &sigs, psql.Select(signatureColumns...).
		From("contract_signatures").
		Where(sq.Eq{"contract_id": contractID}).
		OrderBy("signed_at", "id")); err != nil {
		return models.Contract{}, err
	}
	if sigs == nil {
		sigs = []models.Signature{}
	}
	contract.Signatures = sigs
	return contract, nil
}
