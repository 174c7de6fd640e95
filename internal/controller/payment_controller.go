package controller

import (
	"net/http"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/google/uuid"
)

const msgPaymentAlreadyInitiated = "Payment was already initiated for this transaction"

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	start   *paymentApp.StartPaymentUseCase
	confirm *paymentApp.ConfirmPaymentUseCase
	fail    *paymentApp.FailPaymentUseCase
	get     *paymentApp.GetPaymentUseCase
}

// PaymentUseCases groups the use cases served by PaymentController.
type PaymentUseCases struct {
	Start   *paymentApp.StartPaymentUseCase
	Confirm *paymentApp.ConfirmPaymentUseCase
	Fail    *paymentApp.FailPaymentUseCase
	Get     *paymentApp.GetPaymentUseCase
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(uc PaymentUseCases) *PaymentController {
	return &PaymentController{
		start:   uc.Start,
		confirm: uc.Confirm,
		fail:    uc.Fail,
		get:     uc.Get,
	}
}

// Start handles POST /api/v1/payments. Without an amount the transaction is looked up and
// ownership is verified.
func (h *PaymentController) Start(w http.ResponseWriter, r *http.Request) {
	var req StartPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.start.Execute(r.Context(), paymentApp.StartPaymentRequest{
		TransactionID: uuid.MustParse(req.TransactionID),
		CustomerID:    uuid.MustParse(req.CustomerID),
		Amount:        req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if resp.AlreadyExisted {
		writeJSON(w, http.StatusOK, StartPaymentResponse{
			Payment: FromPayment(resp.Payment),
			Message: msgPaymentAlreadyInitiated,
		})
		return
	}
	writeJSON(w, http.StatusCreated, StartPaymentResponse{Payment: FromPayment(resp.Payment)})
}

// Get handles GET /api/v1/payments/{id}
func (h *PaymentController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.get.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Confirm handles POST /api/v1/payments/{id}/confirm
func (h *PaymentController) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.confirm.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Fail handles POST /api/v1/payments/{id}/fail
func (h *PaymentController) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req FailPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.fail.Execute(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}
