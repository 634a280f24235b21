package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func decode(t *testing.T, body string) (core.LoginInput, error) {
	t.Helper()
	var in core.LoginInput
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := decodeJSON(httptest.NewRecorder(), req, &in)
	return in, err
}

func TestDecodeJSON(t *testing.T) {
	in, err := decode(t, `{"username":"alice","password":"pw","rememberMe":true}`)
	require.NoError(t, err)
	assert.Equal(t, core.LoginInput{Username: "alice", Password: "pw", RememberMe: true}, in)

	tests := []struct {
		name  string
		body  string
		field string
		msg   string
	}{
		{"empty body", ``, "body", "Request body is required"},
		{"malformed", `{"username":`, "body", "Malformed JSON"},
		{"syntax error", `{username}`, "body", "Malformed JSON"},
		{"unknown key", `{"username":"a","admin":true}`, "admin", "Unrecognized key"},
		{"wrong type", `{"username":5}`, "username", "Expected string, received number"},
		{"wrong bool", `{"rememberMe":"yes"}`, "rememberMe", "Expected boolean, received string"},
		{"trailing data", `{"username":"a"} {"username":"b"}`, "body", "Request body must contain a single JSON object"},
		{"not an object", `[1,2]`, "body", "Expected object, received array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.body)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, []string{tt.msg}, verr.Fields[tt.field])
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	body := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	_, err := decode(t, body)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Request body too large"}, verr.Fields["body"])
}

func TestPathID(t *testing.T) {
	for value, want := range map[string]int64{"7": 7, "0": 0, "-3": 0, "abc": 0} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", value)
		id, ok := pathID(req, "id")
		assert.Equal(t, want, id, value)
		assert.Equal(t, want > 0, ok, value)
	}
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, sessionToken(req))

	req.Header.Set("Authorization", "bearer abc123")
	assert.Equal(t, "abc123", sessionToken(req))

	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "fromcookie"})
	assert.Equal(t, "fromcookie", sessionToken(req), "cookie wins over header")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, sessionToken(req))
}
