package api

import (
	"net/http"

	"github.com/Domenick1991/ticketbooking/internal/service/booking"
	"github.com/Domenick1991/ticketbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service  booking.BookingUseCase
	payments payment.PaymentUseCase
}

type createBookingRequest struct {
	EventID  string `json:"event_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=10"`
}

type confirmBookingRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

func NewBookingHandler(service booking.BookingUseCase, payments payment.PaymentUseCase) *BookingHandler {
	return &BookingHandler{service: service, payments: payments}
}

// Register expects Authenticate to run before every route.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
	router.POST("/:id/payment-intent", h.paymentIntent)
	router.POST("/:id/confirm", RequireAdmin(), h.confirm)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.Reserve(c.Request.Context(), booking.ReserveInput{
		EventID:  req.EventID,
		UserID:   callerFrom(c).UserID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(b, nil))
}

func (h *BookingHandler) list(c *gin.Context) {
	list, err := h.service.ListUserBookings(c.Request.Context(), callerFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]bookingResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newBookingResponse(&list[i], nil))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) get(c *gin.Context) {
	details, err := h.service.GetBooking(c.Request.Context(), c.Param("id"), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(details.Booking, details.Tickets))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	b, err := h.service.CancelBooking(c.Request.Context(), c.Param("id"), callerFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(b, nil))
}

func (h *BookingHandler) paymentIntent(c *gin.Context) {
	p, err := h.payments.CreatePaymentIntent(c.Request.Context(), c.Param("id"), callerFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentIntentResponse{
		BookingID:       p.BookingID,
		PaymentIntentID: p.PaymentIntentID,
		ClientSecret:    p.ClientSecret,
		Amount:          money(p.AmountCents),
		Currency:        p.Currency,
	})
}

func (h *BookingHandler) confirm(c *gin.Context) {
	var req confirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	confirmed, err := h.payments.ConfirmBooking(c.Request.Context(), c.Param("id"), req.PaymentReference)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(confirmed.Booking, confirmed.Tickets))
}
