package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ebpf-microsegment/firstmatch/pkg/api/models"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
	"github.com/gin-gonic/gin"
)

const (
	defaultRuleLimit = 100
	maxRuleLimit     = 10000
)

// RulesHandler handles read-only rule listing requests
type RulesHandler struct {
	rules policy.RuleLister
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(rules policy.RuleLister) *RulesHandler {
	return &RulesHandler{
		rules: rules,
	}
}

func (h *RulesHandler) toRuleResponse(r policy.Rule) models.RuleResponse {
	return models.RuleResponse{
		Index:     r.Index,
		Network:   r.Prefix.String(),
		Label:     int(r.Label),
		Action:    policy.Resolve(r.Label).String(),
		Duplicate: h.rules.Duplicate(r.Index),
	}
}

func queryInt(c *gin.Context, name string, def, lo, hi int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d]", name, lo, hi)
	}
	return v, nil
}

// ListRules handles GET /api/v1/rules
func (h *RulesHandler) ListRules(c *gin.Context) {
	total := h.rules.Len()

	offset, err := queryInt(c, "offset", 0, 0, total)
	if err != nil {
		h.badPagination(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultRuleLimit, 1, maxRuleLimit)
	if err != nil {
		h.badPagination(c, err)
		return
	}

	all := h.rules.Rules()
	end := min(offset+limit, len(all))

	response := models.RuleListResponse{
		Rules:  make([]models.RuleResponse, 0, end-offset),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}
	for _, r := range all[offset:end] {
		response.Rules = append(response.Rules, h.toRuleResponse(r))
	}
	response.Count = len(response.Rules)

	c.JSON(http.StatusOK, response)
}

func (h *RulesHandler) badPagination(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.NewErrorResponse(
		http.StatusBadRequest,
		models.ErrCodeValidation,
		"Invalid pagination",
		err.Error(),
	))
}

// GetRule handles GET /api/v1/rules/:index
func (h *RulesHandler) GetRule(c *gin.Context) {
	// Get rule index from URL parameter
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			models.ErrCodeValidation,
			"Invalid rule index",
			"Rule index must be a non-negative integer",
		))
		return
	}

	r, ok := h.rules.Rule(index)
	if !ok {
		c.JSON(http.StatusNotFound, models.NewErrorResponse(
			http.StatusNotFound,
			models.ErrCodeNotFound,
			"Rule not found",
			fmt.Sprintf("No accepted rule with index %d", index),
		))
		return
	}

	c.JSON(http.StatusOK, h.toRuleResponse(r))
}
