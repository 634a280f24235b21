package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const incomeExpenseWindow = 6

type (
	Summary struct {
		Balance     decimal.Decimal `json:"balance"`
		Income      decimal.Decimal `json:"income"`
		Expenses    decimal.Decimal `json:"expenses"`
		SavingsRate decimal.Decimal `json:"savingsRate"`
	}

	CategoryAmount struct {
		Category Category        `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	MonthlyTotals struct {
		Month    string          `json:"month"`
		Income   decimal.Decimal `json:"income"`
		Expenses decimal.Decimal `json:"expenses"`
	}

	BudgetStatus struct {
		Category     Category        `json:"category"`
		BudgetAmount decimal.Decimal `json:"budgetAmount"`
		Spent        decimal.Decimal `json:"spent"`
		PercentUsed  decimal.Decimal `json:"percentUsed"`
		Remaining    decimal.Decimal `json:"remaining"`
	}
)

// Summarize totals income and expenses. The savings rate is zero when
// there is no income.
func Summarize(txs []Transaction) Summary {
	income, expenses := decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case Income:
			income = income.Add(t.Amount)
		case Expense:
			expenses = expenses.Add(t.Amount)
		}
	}

	balance := income.Sub(expenses)
	return Summary{
		Balance:     balance,
		Income:      income,
		Expenses:    expenses,
		SavingsRate: Percent(balance, income),
	}
}

// ExpenseBreakdown sums expenses per category, in order of each category's
// first appearance. The result is never nil.
func ExpenseBreakdown(txs []Transaction) []CategoryAmount {
	out := make([]CategoryAmount, 0)
	index := make(map[Category]int)

	for _, t := range txs {
		if t.Type != Expense {
			continue
		}
		i, ok := index[t.Category]
		if !ok {
			i = len(out)
			index[t.Category] = i
			out = append(out, CategoryAmount{Category: t.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}

	// a category whose expenses are all zero contributes nothing
	filtered := out[:0]
	for _, ca := range out {
		if !ca.Amount.IsZero() {
			filtered = append(filtered, ca)
		}
	}
	return filtered
}

// IncomeVsExpense buckets transactions into the six calendar months ending
// with now's month. Matching is by year and month, in UTC.
func IncomeVsExpense(txs []Transaction, now time.Time) []MonthlyTotals {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	out := make([]MonthlyTotals, incomeExpenseWindow)
	slot := make(map[int]int, incomeExpenseWindow)
	for i := 0; i < incomeExpenseWindow; i++ {
		m := first.AddDate(0, i-(incomeExpenseWindow-1), 0)
		out[i] = MonthlyTotals{
			Month:    m.Format("Jan"),
			Income:   decimal.Zero,
			Expenses: decimal.Zero,
		}
		slot[monthKey(m)] = i
	}

	for _, t := range txs {
		i, ok := slot[monthKey(t.Date.UTC())]
		if !ok {
			continue
		}
		if t.Type == Income {
			out[i].Income = out[i].Income.Add(t.Amount)
		} else {
			out[i].Expenses = out[i].Expenses.Add(t.Amount)
		}
	}
	return out
}

func monthKey(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// BudgetProgress reports spending against each budget, in budget order.
// Remaining goes negative when a budget is exceeded.
func BudgetProgress(budgets []Budget, txs []Transaction) []BudgetStatus {
	spent := make(map[Category]decimal.Decimal)
	for _, t := range txs {
		if t.Type == Expense {
			spent[t.Category] = spent[t.Category].Add(t.Amount)
		}
	}

	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		s := spent[b.Category]
		out = append(out, BudgetStatus{
			Category:     b.Category,
			BudgetAmount: b.Amount,
			Spent:        s,
			PercentUsed:  Percent(s, b.Amount),
			Remaining:    b.Amount.Sub(s),
		})
	}
	return out
}
