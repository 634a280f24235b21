package http

import (
	"net/http"
	"sync/atomic"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	q := r.URL.Query()
	filter, err := services.ParseTransactionFilter(q.Get("type"), q.Get("category"))
	if err != nil {
		respondError(w, r, err, "Invalid filter", "Failed to fetch transactions")
		return
	}

	txs, err := s.finance.ListTransactions(r.Context(), user.ID, filter)
	if err != nil {
		respondError(w, r, err, "Invalid filter", "Failed to fetch transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var in core.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err, "Invalid transaction data", "Failed to create transaction")
		return
	}

	tx, err := s.finance.CreateTransaction(r.Context(), user.ID, in)
	if err != nil {
		respondError(w, r, err, "Invalid transaction data", "Failed to create transaction")
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	s.structured.LogTransactionCreated(r.Context(), tx.ID, tx.UserID, string(tx.Type), string(tx.Category), tx.Amount.String())
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	budgets, err := s.finance.ListBudgets(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err, "Invalid request", "Failed to fetch budgets")
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var in core.BudgetInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err, "Invalid budget data", "Failed to create budget")
		return
	}

	b, err := s.finance.CreateBudget(r.Context(), user.ID, in)
	if err != nil {
		respondError(w, r, err, "Invalid budget data", "Failed to create budget")
		return
	}

	atomic.AddInt64(&s.appMetrics.budgetsCreated, 1)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Budget created",
		applog.FieldCategory, b.Category,
		applog.FieldAmount, b.Amount.String(),
		applog.FieldOperation, applog.OpCreate)
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	summary, err := s.finance.Summary(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err, "Invalid request", "Failed to fetch dashboard summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExpenseBreakdown(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	breakdown, err := s.finance.ExpenseBreakdown(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err, "Invalid request", "Failed to fetch expense breakdown")
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleIncomeExpense(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	series, err := s.finance.IncomeVsExpense(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err, "Invalid request", "Failed to fetch income vs expense data")
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleBudgetProgress(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	progress, err := s.finance.BudgetProgress(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err, "Invalid request", "Failed to fetch budget progress")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
