package api

import (
	"io"
	"net/http"

	"github.com/Domenick1991/ticketbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody mirrors the gateway's documented payload cap.
const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	service payment.PaymentUseCase
}

func NewWebhookHandler(service payment.PaymentUseCase) *WebhookHandler {
	return &WebhookHandler{service: service}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/webhook", h.handle)
}

// handle needs the raw body: the signature covers its exact bytes.
func (h *WebhookHandler) handle(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	ack, err := h.service.HandleNotification(c.Request.Context(), c.GetHeader("Stripe-Signature"), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"duplicate": ack.Duplicate,
		"ignored":   ack.Ignored,
	})
}
