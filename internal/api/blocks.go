package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/middleware"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

// BlockHandler serves block and chain endpoints.
type BlockHandler struct {
	svc LedgerService
	log *logrus.Logger
}

// NewBlockHandler creates a BlockHandler.
func NewBlockHandler(svc LedgerService, log *logrus.Logger) *BlockHandler {
	return &BlockHandler{svc: svc, log: log}
}

// List handles GET /api/v1/blocks.
func (h *BlockHandler) List(c *gin.Context) {
	limit, offset, err := parsePage(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	blocks, hasMore, err := h.svc.ListBlocks(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, h.log, "api.list_blocks_failed", err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "has_more": hasMore})
}

// Get handles GET /api/v1/blocks/:number.
func (h *BlockHandler) Get(c *gin.Context) {
	n, err := strconv.ParseUint(c.Param("number"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "block number must be a non-negative integer")

		return
	}

	block, err := h.svc.Block(c.Request.Context(), n)
	if err != nil {
		respondServiceError(c, h.log, "api.get_block_failed", err)

		return
	}

	c.JSON(http.StatusOK, block)
}

// Seal handles POST /api/v1/blocks/seal.
func (h *BlockHandler) Seal(c *gin.Context) {
	block, err := h.svc.Seal(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, "api.seal_failed", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":       "block.seal",
		"principal":    middleware.Principal(c),
		"block_number": block.BlockNumber,
	}).Info("audit")

	c.JSON(http.StatusCreated, block.Header())
}

// Verify handles GET /api/v1/chain/verify. A broken chain is still a
// successful request; the report says what is wrong.
func (h *BlockHandler) Verify(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Verify(c.Request.Context()))
}

// chainStatusResponse is the chain status plus the report of the most recent
// verification of the current tip, when one was recorded.
type chainStatusResponse struct {
	service.ChainStatus
	LastVerification *models.VerificationReport `json:"last_verification,omitempty"`
}

// Status handles GET /api/v1/chain/status.
func (h *BlockHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, chainStatusResponse{
		ChainStatus:      h.svc.Status(),
		LastVerification: h.svc.LastVerification(c.Request.Context()),
	})
}
