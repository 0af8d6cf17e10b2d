package handler

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/rbac"
	"github.com/agriview/console-gateway/internal/transport"
)

// KYCHandler issues KYC decisions upstream. These are the high-value
// mutations that must tolerate endpoint drift between platform versions, so
// each decision goes out through an ordered list of candidate request
// shapes.
type KYCHandler struct {
	resolver *rbac.Resolver
	client   *transport.Client
	log      *zap.Logger
}

// NewKYCHandler creates a KYC handler.
func NewKYCHandler(resolver *rbac.Resolver, client *transport.Client, log *zap.Logger) *KYCHandler {
	return &KYCHandler{resolver: resolver, client: client, log: log}
}

type kycDecisionRequest struct {
	Remarks string `json:"remarks"`
}

// Approve handles POST /v1/kyc/:farmerId/approve.
func (h *KYCHandler) Approve(c *fiber.Ctx) error {
	return h.decide(c, "APPROVED", "approve")
}

// Reject handles POST /v1/kyc/:farmerId/reject.
func (h *KYCHandler) Reject(c *fiber.Ctx) error {
	return h.decide(c, "REJECTED", "reject")
}

func (h *KYCHandler) decide(c *fiber.Ctx, status, verb string) error {
	// The matrix loads lazily on first need; a session restored at startup
	// may reach a KYC decision before anything else warmed it. A failed load
	// leaves every permission denied, which the check below turns into 403.
	if err := h.resolver.Load(c.UserContext()); err != nil {
		h.log.Warn("permission load failed before KYC decision", zap.Error(err))
	}

	if !h.resolver.HasPermission(domain.ModuleKYC, "edit") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "KYC decisions require edit permission on the KYC module",
		})
	}

	farmerID := c.Params("farmerId")
	var req kycDecisionRequest
	_ = c.BodyParser(&req)

	route := sourceRoute(c)

	// Candidate shapes, newest first. Order is fixed for the lifetime of
	// this invocation; the first success wins, and if all fail the last
	// error is what the console sees.
	candidates := []transport.Request{
		{
			Method:      http.MethodPost,
			Path:        fmt.Sprintf("/api/v2/kyc/documents/%s/%s", farmerID, verb),
			Body:        fiber.Map{"remarks": req.Remarks},
			SourceRoute: route,
		},
		{
			Method:      http.MethodPost,
			Path:        fmt.Sprintf("/api/v1/kyc/%s", verb),
			Body:        fiber.Map{"farmer_id": farmerID, "remarks": req.Remarks},
			SourceRoute: route,
		},
		{
			Method:      http.MethodPut,
			Path:        fmt.Sprintf("/api/kyc/%s/status", farmerID),
			Body:        fiber.Map{"status": status, "remarks": req.Remarks},
			SourceRoute: route,
		},
	}

	resp, err := h.client.DoFirst(c.UserContext(), candidates)
	if err != nil {
		h.log.Warn("KYC decision failed on all candidate endpoints",
			zap.String("farmer_id", farmerID),
			zap.String("decision", status),
			zap.Error(err))
		return err
	}

	h.log.Info("KYC decision recorded",
		zap.String("farmer_id", farmerID),
		zap.String("decision", status))
	c.Set("Content-Type", "application/json")
	return c.Status(resp.StatusCode).Send(resp.Body)
}
