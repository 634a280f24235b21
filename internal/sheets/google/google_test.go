package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromEnv(context.Background(), "  ", "Ledger")
	assert.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	clearCredentialEnv(t)

	_, err := NewFromEnv(context.Background(), "sheet-id", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNewFromEnv_InvalidCredentials(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "invalid-json")

	_, err := NewFromEnv(context.Background(), "sheet-id", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse service account credentials")
}

func TestLoadCredentials(t *testing.T) {
	t.Run("inline json wins", func(t *testing.T) {
		clearCredentialEnv(t)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/does/not/exist")

		b, err := loadCredentials(context.Background())
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"service_account"}`, string(b))
	})

	t.Run("application credentials file", func(t *testing.T) {
		clearCredentialEnv(t)
		path := filepath.Join(t.TempDir(), "sa.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)

		b, err := loadCredentials(context.Background())
		require.NoError(t, err)
		assert.Contains(t, string(b), "service_account")
	})

	t.Run("unreadable file", func(t *testing.T) {
		clearCredentialEnv(t)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", filepath.Join(t.TempDir(), "missing.json"))

		_, err := loadCredentials(context.Background())
		assert.ErrorContains(t, err, "read service account file")
	})
}

func TestNewWithService_DefaultSheetName(t *testing.T) {
	c := NewWithService(nil, "id", " ")
	assert.Equal(t, "Transactions", c.sheet)
}

func TestNewHTTPClientWithPooling(t *testing.T) {
	c := newHTTPClientWithPooling()
	assert.Equal(t, 60*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.ForceAttemptHTTP2)
}

type appendCall struct {
	path        string
	inputOption string
	values      [][]any
}

func newTestClient(t *testing.T, status int, calls *[]appendCall) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		*calls = append(*calls, appendCall{
			path:        r.URL.Path,
			inputOption: r.URL.Query().Get("valueInputOption"),
			values:      body.Values,
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Ledger!A5:G5","updatedRows":1}}`))
	}))
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewWithService(svc, "sheet-id", "Ledger")
}

func sampleTransaction() core.Transaction {
	return core.Transaction{
		ID:          5,
		UserID:      2,
		Description: "Salary",
		Amount:      decimal.NewFromInt(1000),
		Category:    core.IncomeCategory,
		Type:        core.Income,
		Date:        time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestClient_AppendTransaction(t *testing.T) {
	var calls []appendCall
	c := newTestClient(t, http.StatusOK, &calls)

	ref, err := c.AppendTransaction(context.Background(), sampleTransaction())
	require.NoError(t, err)
	assert.Equal(t, "Ledger!A5:G5", ref)

	require.Len(t, calls, 1)
	assert.True(t, strings.HasSuffix(calls[0].path, ":append"), calls[0].path)
	assert.Contains(t, calls[0].path, "sheet-id")
	assert.Equal(t, "USER_ENTERED", calls[0].inputOption)
	assert.Equal(t, [][]any{{"2024-03-01", "income", "Income", "Salary", "1000.00", "2", "5"}}, calls[0].values)
}

func TestClient_AppendTransactionErrors(t *testing.T) {
	t.Run("api failure is wrapped", func(t *testing.T) {
		var calls []appendCall
		c := newTestClient(t, http.StatusServiceUnavailable, &calls)

		_, err := c.AppendTransaction(context.Background(), sampleTransaction())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append to sheet Ledger")
	})

	t.Run("uninitialized service", func(t *testing.T) {
		c := &Client{spreadsheetID: "id", sheet: "Ledger"}
		_, err := c.AppendTransaction(context.Background(), sampleTransaction())
		assert.EqualError(t, err, "sheets service not initialized")
	})

	t.Run("unsaved transaction", func(t *testing.T) {
		var calls []appendCall
		c := newTestClient(t, http.StatusOK, &calls)

		_, err := c.AppendTransaction(context.Background(), core.Transaction{})
		assert.EqualError(t, err, "transaction id missing")
		assert.Empty(t, calls)
	})
}
