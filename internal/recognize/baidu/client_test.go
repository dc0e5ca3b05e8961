package baidu

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casekit/evidence-extractor/internal/common"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:    "ak",
		SecretKey: "sk",
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
	}, nil)
}

func TestAuthenticate_Success(t *testing.T) {
	var gotQuery map[string][]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, tokenPath, r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"access_token":"tok-123","expires_in":2592000}`)
	}))

	tok, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.Equal(t, []string{"client_credentials"}, gotQuery["grant_type"])
	assert.Equal(t, []string{"ak"}, gotQuery["client_id"])
	assert.Equal(t, []string{"sk"}, gotQuery["client_secret"])
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, common.ErrAuth)
}

func TestAuthenticate_NoTokenInResponse(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))

	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, common.ErrAuth)
}

func TestAuthenticate_HTTPError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, common.ErrAuth)
}

func TestRecognize_JoinsLines(t *testing.T) {
	png := []byte("fake image bytes")
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, recognizePath, r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, base64.StdEncoding.EncodeToString(png), r.PostForm.Get("image"))
		assert.Equal(t, "true", r.PostForm.Get("detect_direction"))
		assert.Equal(t, "true", r.PostForm.Get("paragraph"))
		fmt.Fprint(w, `{"words_result":[{"words":"第一行"},{"words":"第二行"}],"words_result_num":2}`)
	}))

	text, err := c.Recognize(context.Background(), png, "tok")
	require.NoError(t, err)
	assert.Equal(t, "第一行\n第二行", text)
}

func TestRecognize_TokenErrorsMapToAuth(t *testing.T) {
	for _, code := range []int{110, 111} {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `{"error_code":%d,"error_msg":"token stale"}`, code)
		}))

		_, err := c.Recognize(context.Background(), []byte("img"), "old-token")
		assert.ErrorIs(t, err, common.ErrAuth, "code %d", code)
	}
}

func TestRecognize_OtherProviderError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error_code":282000,"error_msg":"internal error"}`)
	}))

	_, err := c.Recognize(context.Background(), []byte("img"), "tok")
	assert.ErrorIs(t, err, common.ErrRecognition)
	assert.NotErrorIs(t, err, common.ErrAuth)
}

func TestRecognize_NonOKStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Recognize(context.Background(), []byte("img"), "tok")
	assert.ErrorIs(t, err, common.ErrTransport)
}

func TestConfigured(t *testing.T) {
	assert.False(t, NewClient(Config{}, nil).Configured())
	assert.False(t, NewClient(Config{APIKey: "ak"}, nil).Configured())
	assert.True(t, NewClient(Config{APIKey: "ak", SecretKey: "sk"}, nil).Configured())
}
