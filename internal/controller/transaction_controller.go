package controller

import (
	"net/http"

	txApp "github.com/cassiomorais/checkout/internal/application/transaction"
	"github.com/google/uuid"
)

// TransactionController handles transaction-related HTTP requests.
type TransactionController struct {
	create *txApp.CreateTransactionUseCase
	add    *txApp.AddItemUseCase
	submit *txApp.SubmitTransactionUseCase
	cancel *txApp.CancelTransactionUseCase
	get    *txApp.GetTransactionUseCase
}

// TransactionUseCases groups the use cases served by TransactionController.
type TransactionUseCases struct {
	Create *txApp.CreateTransactionUseCase
	Add    *txApp.AddItemUseCase
	Submit *txApp.SubmitTransactionUseCase
	Cancel *txApp.CancelTransactionUseCase
	Get    *txApp.GetTransactionUseCase
}

// NewTransactionController creates a new TransactionController.
func NewTransactionController(uc TransactionUseCases) *TransactionController {
	return &TransactionController{
		create: uc.Create,
		add:    uc.Add,
		submit: uc.Submit,
		cancel: uc.Cancel,
		get:    uc.Get,
	}
}

// Create handles POST /api/v1/transactions
func (h *TransactionController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.create.Execute(r.Context(), uuid.MustParse(req.CustomerID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromTransaction(t))
}

// Get handles GET /api/v1/transactions/{id}
func (h *TransactionController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	t, err := h.get.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// AddItem handles POST /api/v1/transactions/{id}/items
func (h *TransactionController) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req AddItemRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.add.Execute(r.Context(), txApp.AddItemRequest{
		TransactionID: id,
		ProductID:     uuid.MustParse(req.ProductID),
		ProductName:   req.ProductName,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromItem(resp.Item))
}

// Submit handles POST /api/v1/transactions/{id}/submit
func (h *TransactionController) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	t, err := h.submit.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// Cancel handles POST /api/v1/transactions/{id}/cancel
func (h *TransactionController) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	t, err := h.cancel.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(t))
}
