package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"marketplace-service/internal/logging"
	"marketplace-service/internal/middleware"
	"marketplace-service/internal/models"
	"marketplace-service/internal/observability"
	"marketplace-service/internal/repositories"
	"marketplace-service/internal/signing"
	"marketplace-service/internal/telemetry"
	"marketplace-service/internal/updates"
)

// ContractHandler serves contracts and their signatures.
type ContractHandler struct {
	contractRepo repositories.ContractRepository
	updates      updates.Publisher
	audit        *telemetry.AuditEmitter
	validate     *validator.Validate
	verifyHash   bool
	logger       *logrus.Logger
}

// NewContractHandler builds a ContractHandler. With verifyHash set, signatures
// over a hash other than the contract's current one are rejected.
func NewContractHandler(contractRepo repositories.ContractRepository, publisher updates.Publisher, audit *telemetry.AuditEmitter, verifyHash bool, logger *logrus.Logger) *ContractHandler {
	return &ContractHandler{
		contractRepo: contractRepo,
		updates:      publisher,
		audit:        audit,
		validate:     validator.New(),
		verifyHash:   verifyHash,
		logger:       logger,
	}
}

type contractView struct {
	Contract          models.Contract `json:"contract"`
	SignatureRatio    float64         `json:"signature_ratio"`
	SignatureProgress string          `json:"signature_progress"`
	FullySigned       bool            `json:"fully_signed"`
}

func viewOf(c models.Contract) contractView {
	if c.Signatures == nil {
		c.Signatures = []models.Signature{}
	}
	return contractView{
		Contract:          c,
		SignatureRatio:    c.SignatureRatio(),
		SignatureProgress: c.SignatureProgress(),
		FullySigned:       c.FullySigned(),
	}
}

// CreateContract stores an unsigned contract.
func (h *ContractHandler) CreateContract(c *gin.Context) {
	var req struct {
		Title          string    `json:"title" binding:"required"`
		CompanyID      string    `json:"company_id"`
		CompanyName    string    `json:"company_name"`
		FreelancerID   string    `json:"freelancer_id" binding:"required"`
		FreelancerName string    `json:"freelancer_name"`
		Value          float64   `json:"value" binding:"gte=0"`
		Currency       string    `json:"currency" binding:"required,len=3"`
		StartDate      time.Time `json:"start_date" binding:"required"`
		EndDate        time.Time `json:"end_date" binding:"required,gtefield=StartDate"`
		Terms          string    `json:"terms"`
		Deliverables   []string  `json:"deliverables"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, _ := middleware.AccountFrom(c)
	if req.CompanyID == "" && account != nil && account.AccountRole() == models.RoleCompany {
		req.CompanyID = account.AccountID()
		req.CompanyName = account.DisplayName()
	}
	if req.CompanyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
		return
	}
	if req.CompanyID == req.FreelancerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parties must differ"})
		return
	}

	contract, err := h.contractRepo.CreateContract(c.Request.Context(), models.Contract{
		Title:          req.Title,
		CompanyID:      req.CompanyID,
		CompanyName:    req.CompanyName,
		FreelancerID:   req.FreelancerID,
		FreelancerName: req.FreelancerName,
		Value:          req.Value,
		Currency:       strings.ToUpper(req.Currency),
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Terms:          req.Terms,
		Deliverables:   req.Deliverables,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create contract"})
		return
	}

	c.JSON(http.StatusCreated, viewOf(contract))
}

// GetContract returns a contract with its signing progress.
func (h *ContractHandler) GetContract(c *gin.Context) {
	contract, ok := h.loadForParty(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(contract))
}

// GetPayload returns the canonical payload the parties sign and its hash.
func (h *ContractHandler) GetPayload(c *gin.Context) {
	contract, ok := h.loadForParty(c)
	if !ok {
		return
	}
	payload := signing.PayloadFor(contract)
	hash, err := payload.Hash()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash contract"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": payload, "hash": hash})
}

// SubmitSignature appends the caller's wallet signature to a contract.
func (h *ContractHandler) SubmitSignature(c *gin.Context) {
	var sub models.SignatureSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub.ContractID = c.Param("contract_id")
	if err := h.validate.Struct(sub); err != nil {
		observability.IncSignature(string(sub.Role), "invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	if sub.SignerID != userID {
		observability.IncSignature(string(sub.Role), "forbidden")
		c.JSON(http.StatusForbidden, gin.H{"error": "signer must be the caller"})
		return
	}

	contract, err := h.contractRepo.GetContract(c.Request.Context(), sub.ContractID)
	if err != nil {
		notFoundOr500(c, err, repositories.ErrContractNotFound, "contract not found")
		return
	}
	role, err := signing.RoleFor(contract, userID)
	if err != nil || role != sub.Role {
		observability.IncSignature(string(sub.Role), "forbidden")
		c.JSON(http.StatusForbidden, gin.H{"error": "caller does not sign for this role"})
		return
	}

	if h.verifyHash {
		expected, err := signing.Hash(contract)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash contract"})
			return
		}
		if !strings.EqualFold(expected, sub.Hash) {
			observability.IncSignature(string(sub.Role), "hash_mismatch")
			c.JSON(http.StatusConflict, gin.H{"error": "signature hash does not match contract"})
			return
		}
	}

	sig := sub.ToSignature()
	if sig.SignerName == "" {
		if account, ok := middleware.AccountFrom(c); ok {
			sig.SignerName = account.DisplayName()
		}
	}
	updated, err := h.contractRepo.AppendSignature(c.Request.Context(), sig)
	if err != nil {
		observability.IncSignature(string(sub.Role), "failed")
		notFoundOr500(c, err, repositories.ErrContractNotFound, "could not store signature")
		return
	}
	observability.IncSignature(string(sub.Role), "accepted")

	if err := h.updates.ContractSigned(updated, sig); err != nil {
		logging.WithContext(c.Request.Context(), h.logger).WithError(err).WithField("contract_id", updated.ID).Warn("failed to publish contract update")
	}
	h.audit.Emit(c.Request.Context(), "INFO", "contract "+updated.ID+" signed as "+string(sub.Role)+" ("+updated.SignatureProgress()+")",
		requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusCreated, viewOf(updated))
}

// SetAnchor records the blockchain anchor hash of a fully signed contract.
func (h *ContractHandler) SetAnchor(c *gin.Context) {
	var req struct {
		Hash string `json:"hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contract, ok := h.loadForParty(c)
	if !ok {
		return
	}
	if !contract.FullySigned() {
		c.JSON(http.StatusConflict, gin.H{"error": "contract is not fully signed"})
		return
	}

	if err := h.contractRepo.SetAnchor(c.Request.Context(), contract.ID, req.Hash); err != nil {
		notFoundOr500(c, err, repositories.ErrContractNotFound, "could not record anchor")
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", "contract "+contract.ID+" anchored", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// loadForParty loads the path's contract if the caller is a party or an admin.
func (h *ContractHandler) loadForParty(c *gin.Context) (models.Contract, bool) {
	contract, err := h.contractRepo.GetContract(c.Request.Context(), c.Param("contract_id"))
	if err != nil {
		if errors.Is(err, repositories.ErrContractNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
			return models.Contract{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contract"})
		return models.Contract{}, false
	}

	if _, err := signing.RoleFor(contract, c.GetString(middleware.ContextUserID)); err != nil {
		if account, ok := middleware.AccountFrom(c); !ok || account.AccountRole() != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a contract party"})
			return models.Contract{}, false
		}
	}
	return contract, true
}
