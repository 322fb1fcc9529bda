package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ClassifyOptions bounds classify requests
type ClassifyOptions struct {
	// MaxBatchSize is the largest accepted number of addresses per request
	MaxBatchSize int

	// Timeout is the deadline of a batch, 0 means none
	Timeout time.Duration

	// Workers is passed to the data plane for every batch
	Workers int
}

// ClassifyHandler handles classification requests
type ClassifyHandler struct {
	dataPlane dataplane.DataPlaneInterface
	opts      ClassifyOptions
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(dp dataplane.DataPlaneInterface, opts ClassifyOptions) *ClassifyHandler {
	return &ClassifyHandler{
		dataPlane: dp,
		opts:      opts,
	}
}

func toClassifyResult(addr string, r classifier.Result) models.ClassifyResult {
	result := models.ClassifyResult{
		Address: addr,
		Matched: r.Matched,
		Action:  r.Action.String(),
		Answer:  r.String(),
	}
	if r.Matched {
		idx := r.Index
		result.RuleIndex = &idx
	}
	return result
}

// ClassifyBatch handles POST /api/v1/classify
func (h *ClassifyHandler) ClassifyBatch(c *gin.Context) {
	var req models.ClassifyRequest

	// Bind and validate JSON request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			models.ErrCodeValidation,
			"Invalid request body",
			err.Error(),
		))
		return
	}

	if h.opts.MaxBatchSize > 0 && len(req.Addresses) > h.opts.MaxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, models.NewErrorResponse(
			http.StatusRequestEntityTooLarge,
			models.ErrCodeTooLarge,
			fmt.Sprintf("At most %d addresses per request", h.opts.MaxBatchSize),
			nil,
		))
		return
	}

	// Invalid addresses are answered in place, valid ones go in one batch
	response := models.ClassifyResponse{
		Results: make([]models.ClassifyResult, len(req.Addresses)),
		Count:   len(req.Addresses),
	}
	addrs := make([]netip.Addr, 0, len(req.Addresses))
	positions := make([]int, 0, len(req.Addresses))

	for i, s := range req.Addresses {
		addr, err := policy.ParseAddr(s)
		if err != nil {
			h.dataPlane.RecordMalformed()
			response.Results[i] = models.ClassifyResult{Address: s, Error: err.Error()}
			response.Invalid++
			continue
		}
		addrs = append(addrs, addr)
		positions = append(positions, i)
	}

	ctx := c.Request.Context()
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	results, err := h.dataPlane.ClassifyAll(ctx, addrs, h.opts.Workers)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, models.NewErrorResponse(
				http.StatusGatewayTimeout,
				models.ErrCodeTimeout,
				"Classification timed out",
				err.Error(),
			))
			return
		}
		log.Errorf("Failed to classify batch: %v", err)
		c.JSON(http.StatusInternalServerError, models.NewErrorResponse(
			http.StatusInternalServerError,
			models.ErrCodeInternal,
			"Failed to classify addresses",
			err.Error(),
		))
		return
	}

	for j, r := range results {
		i := positions[j]
		response.Results[i] = toClassifyResult(req.Addresses[i], r)
	}

	c.JSON(http.StatusOK, response)
}

// Classify handles GET /api/v1/classify/:addr
// With ?explain=true every containing rule is listed as well
func (h *ClassifyHandler) Classify(c *gin.Context) {
	s := c.Param("addr")

	addr, err := policy.ParseAddr(s)
	if err != nil {
		h.dataPlane.RecordMalformed()
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			models.ErrCodeValidation,
			"Invalid address",
			err.Error(),
		))
		return
	}

	if c.Query("explain") != "true" {
		r, err := h.dataPlane.Classify(addr)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				http.StatusBadRequest,
				models.ErrCodeValidation,
				"Invalid address",
				err.Error(),
			))
			return
		}
		c.JSON(http.StatusOK, toClassifyResult(s, r))
		return
	}

	e, err := h.dataPlane.Explain(addr)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			models.ErrCodeValidation,
			"Invalid address",
			err.Error(),
		))
		return
	}

	response := models.ExplainResponse{
		ClassifyResult: toClassifyResult(s, e.Result),
		Matches:        make([]models.MatchResponse, 0, len(e.Matches)),
	}
	for _, m := range e.Matches {
		network := netip.PrefixFrom(addr, m.PrefixLen).Masked()
		response.Matches = append(response.Matches, models.MatchResponse{
			RuleIndex: m.Index,
			Network:   network.String(),
			PrefixLen: m.PrefixLen,
			Action:    policy.Resolve(m.Label).String(),
		})
	}

	c.JSON(http.StatusOK, response)
}
