package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxDescriptionLength = 255

// MaxPasswordBytes is the longest input bcrypt will hash.
const MaxPasswordBytes = 72

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts RFC3339 timestamps, naive timestamps and plain dates.
// Naive values are read as UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FlexibleDate decodes a JSON date given as a string or as epoch
// milliseconds. Undecodable values are kept as invalid instead of failing
// the whole body, so they surface as field errors.
type FlexibleDate struct {
	time.Time
	present bool
	invalid bool
}

func NewFlexibleDate(t time.Time) FlexibleDate {
	return FlexibleDate{Time: t.UTC(), present: true}
}

func (d *FlexibleDate) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*d = FlexibleDate{}
		return nil
	}
	d.present = true

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			d.invalid = true
			return nil
		}
		t, ok := ParseDate(s)
		if !ok {
			d.invalid = true
			return nil
		}
		d.Time = t
		return nil
	}

	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || ms < float64(MinDate.UnixMilli()) || ms > float64(MaxDate.UnixMilli()) {
		d.invalid = true
		return nil
	}
	d.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// AmountInput decodes an amount that must be sent as a JSON number. Other
// JSON kinds are kept as invalid so they report under the amount field.
type AmountInput struct {
	Value   decimal.Decimal
	present bool
	problem string
}

func NewAmountInput(d decimal.Decimal) AmountInput {
	return AmountInput{Value: d, present: true}
}

func (a *AmountInput) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	*a = AmountInput{}
	if raw == "null" {
		return nil
	}
	a.present = true

	if kind := jsonKindOf(raw); kind != "number" {
		a.problem = "Expected number, received " + kind
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		a.problem = "Invalid number"
		return nil
	}
	a.Value = d
	return nil
}

func jsonKindOf(raw string) string {
	switch {
	case raw == "":
		return "undefined"
	case raw[0] == '"':
		return "string"
	case raw == "true", raw == "false":
		return "boolean"
	case raw[0] == '{':
		return "object"
	case raw[0] == '[':
		return "array"
	default:
		return "number"
	}
}

// TransactionInput is the accepted body of a transaction create request.
type TransactionInput struct {
	Description string          `json:"description"`
	Amount      AmountInput     `json:"amount"`
	Category    Category        `json:"category"`
	Type        TransactionType `json:"type"`
	Date        FlexibleDate    `json:"date"`
}

// NewTransaction validates in and builds the transaction owned by userID.
func NewTransaction(userID int64, in TransactionInput) (Transaction, error) {
	fe := FieldErrors{}

	desc := strings.TrimSpace(in.Description)
	switch {
	case desc == "":
		fe.Add("description", "Required")
	case utf8.RuneCountInString(desc) > maxDescriptionLength:
		fe.Add("description", fmt.Sprintf("String must contain at most %d character(s)", maxDescriptionLength))
	}

	amount := validateAmount(fe, in.Amount)

	if !in.Type.IsValid() {
		fe.Add("type", "Invalid enum value. Expected 'income' | 'expense'")
	}
	if !in.Category.IsValid() {
		fe.Add("category", categoryEnumMessage())
	}

	switch {
	case !in.Date.present:
		fe.Add("date", "Required")
	case in.Date.invalid, !DateInRange(in.Date.Time):
		fe.Add("date", "Invalid date")
	}

	if err := fe.Err(); err != nil {
		return Transaction{}, err
	}

	return Transaction{
		UserID:      userID,
		Description: desc,
		Amount:      amount,
		Category:    in.Category,
		Type:        in.Type,
		Date:        in.Date.Time.UTC(),
	}, nil
}

// BudgetInput is the accepted body of a budget create request.
type BudgetInput struct {
	Category Category    `json:"category"`
	Amount   AmountInput `json:"amount"`
	Period   Period      `json:"period"`
}

func NewBudget(userID int64, in BudgetInput) (Budget, error) {
	fe := FieldErrors{}

	if !in.Category.IsValid() {
		fe.Add("category", categoryEnumMessage())
	}
	amount := validateAmount(fe, in.Amount)

	period := in.Period
	if period == "" {
		period = Monthly
	}
	if !period.IsValid() {
		fe.Add("period", "Invalid enum value. Expected 'monthly' | 'yearly'")
	}

	if err := fe.Err(); err != nil {
		return Budget{}, err
	}

	return Budget{
		UserID:   userID,
		Category: in.Category,
		Amount:   amount,
		Period:   period,
	}, nil
}

// validateAmount checks the sign on the raw value and the cap on the
// rounded one. An absent amount is zero.
func validateAmount(fe FieldErrors, in AmountInput) decimal.Decimal {
	switch {
	case in.problem != "":
		fe.Add("amount", in.problem)
		return decimal.Zero
	case !in.present:
		return decimal.Zero
	case in.Value.IsNegative():
		fe.Add("amount", "Number must be greater than or equal to 0")
		return decimal.Zero
	}
	amount := NormalizeAmount(in.Value)
	if amount.GreaterThanOrEqual(MaxAmount) {
		fe.Add("amount", "Number must be less than "+MaxAmount.String())
	}
	return amount
}

func categoryEnumMessage() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = "'" + string(c) + "'"
	}
	return "Invalid enum value. Expected " + strings.Join(names, " | ")
}

type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (in RegisterInput) Validate() error {
	fe := FieldErrors{}
	checkLength(fe, "username", in.Username, 3, 20)
	if in.Username != "" && !usernamePattern.MatchString(in.Username) {
		fe.Add("username", "Username can only contain letters, numbers and underscores")
	}
	checkLength(fe, "password", in.Password, 6, 50)
	checkPasswordBytes(fe, "password", in.Password)
	checkLength(fe, "fullName", strings.TrimSpace(in.FullName), 1, 50)
	return fe.Err()
}

type LoginInput struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (in LoginInput) Validate() error {
	fe := FieldErrors{}
	if in.Username == "" {
		fe.Add("username", "Username is required")
	}
	if in.Password == "" {
		fe.Add("password", "Password is required")
	}
	return fe.Err()
}

type ProfileInput struct {
	FullName string `json:"fullName"`
}

func (in ProfileInput) Validate() error {
	fe := FieldErrors{}
	checkLength(fe, "fullName", strings.TrimSpace(in.FullName), 1, 50)
	return fe.Err()
}

type PasswordChangeInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (in PasswordChangeInput) Validate() error {
	fe := FieldErrors{}
	if in.CurrentPassword == "" {
		fe.Add("currentPassword", "Current password is required")
	}
	checkLength(fe, "newPassword", in.NewPassword, 8, 50)
	checkPasswordBytes(fe, "newPassword", in.NewPassword)
	return fe.Err()
}

// checkPasswordBytes enforces the bcrypt input limit, which counts bytes,
// once the rune count has passed.
func checkPasswordBytes(fe FieldErrors, field, value string) {
	if len(fe[field]) == 0 && len(value) > MaxPasswordBytes {
		fe.Add(field, fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes))
	}
}

func checkLength(fe FieldErrors, field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min:
		fe.Add(field, fmt.Sprintf("String must contain at least %d character(s)", min))
	case n > max:
		fe.Add(field, fmt.Sprintf("String must contain at most %d character(s)", max))
	}
}
