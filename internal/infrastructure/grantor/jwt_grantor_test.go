package grantor

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/internal/infrastructure/kms"
	"github.com/turtacn/contentsdk/internal/infrastructure/transport"
	"github.com/turtacn/contentsdk/pkg/clock"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func generateTestKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(testKey),
	})
	return testKey, pemBytes
}

type tokenEndpoint struct {
	t      *testing.T
	key    *rsa.PrivateKey
	mu     sync.Mutex
	forms  []map[string]string
	claims []jwt.MapClaims
	ips    []string
	handle func(w http.ResponseWriter, call int)
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.NoError(e.t, r.ParseForm())
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	e.mu.Lock()
	e.forms = append(e.forms, form)
	e.ips = append(e.ips, r.Header.Get(constants.HeaderForwardedFor))
	if assertion := form["assertion"]; assertion != "" {
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(assertion, claims, func(tok *jwt.Token) (interface{}, error) {
			assert.Equal(e.t, "key-1", tok.Header["kid"])
			return &e.key.PublicKey, nil
		}, jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{constants.AssertionAlgorithm}))
		require.NoError(e.t, err)
		require.True(e.t, token.Valid)
		e.claims = append(e.claims, claims)
	}
	call := len(e.forms)
	e.mu.Unlock()

	if e.handle != nil {
		e.handle(w, call)
		return
	}
	fmt.Fprint(w, `{"access_token":"T1","expires_in":3600,"token_type":"Bearer","restricted_to":[]}`)
}

func newTestGrantor(t *testing.T, endpoint *tokenEndpoint, now time.Time) (*JWTGrantor, *httptest.Server) {
	t.Helper()
	key, pemBytes := generateTestKey(t)
	endpoint.t = t
	endpoint.key = key
	server := httptest.NewServer(endpoint)
	t.Cleanup(server.Close)

	httpClient := transport.NewClient(transport.Config{MaxRetries: 0}, nil, nil)
	g, err := NewJWTGrantor(httpClient, kms.StaticKeySource(pemBytes), Config{
		ClientID:     "client",
		ClientSecret: "secret",
		PublicKeyID:  "key-1",
		TokenURL:     server.URL + "/oauth2/token",
		RevokeURL:    server.URL + "/oauth2/revoke",
	}, WithClock(clock.Fake(now)))
	require.NoError(t, err)
	return g, server
}

func TestJWTGrantor_GetTokensJWTGrant(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	endpoint := &tokenEndpoint{}
	g, server := newTestGrantor(t, endpoint, now)

	token, err := g.GetTokensJWTGrant(context.Background(), constants.EntityTypeEnterprise, "123", models.TokenRequestOptions{IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, "T1", token.AccessToken)
	assert.Equal(t, now.Add(time.Hour), token.ExpiresAt)
	assert.Equal(t, constants.TokenTypeBearer, token.TokenType)

	require.Len(t, endpoint.forms, 1)
	form := endpoint.forms[0]
	assert.Equal(t, string(constants.GrantTypeJWT), form["grant_type"])
	assert.Equal(t, "client", form["client_id"])
	assert.Equal(t, "secret", form["client_secret"])
	assert.Equal(t, "10.0.0.1", endpoint.ips[0])

	claims := endpoint.claims[0]
	assert.Equal(t, "client", claims["iss"])
	assert.Equal(t, "123", claims["sub"])
	assert.Equal(t, "enterprise", claims["box_sub_type"])
	assert.Equal(t, server.URL+"/oauth2/token", claims["aud"])
	assert.NotEmpty(t, claims["jti"])
	assert.Equal(t, float64(now.Add(30*time.Second).Unix()), claims["exp"])
}

func TestJWTGrantor_RetriesWithServerTimeOnExpClaim(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	serverNow := now.Add(-2 * time.Hour)
	endpoint := &tokenEndpoint{handle: func(w http.ResponseWriter, call int) {
		if call == 1 {
			w.Header().Set("Date", serverNow.Format(http.TimeFormat))
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Please check the 'exp' claim."}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"T2","expires_in":600,"token_type":"bearer"}`)
	}}
	g, _ := newTestGrantor(t, endpoint, now)

	token, err := g.GetTokensJWTGrant(context.Background(), constants.EntityTypeUser, "u1", models.TokenRequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "T2", token.AccessToken)

	require.Len(t, endpoint.claims, 2)
	assert.Equal(t, float64(serverNow.Add(30*time.Second).Unix()), endpoint.claims[1]["exp"])
	assert.NotEqual(t, endpoint.claims[0]["jti"], endpoint.claims[1]["jti"])
}

func TestJWTGrantor_InvalidGrantIsAuthExpired(t *testing.T) {
	endpoint := &tokenEndpoint{handle: func(w http.ResponseWriter, call int) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid user"}`)
	}}
	g, _ := newTestGrantor(t, endpoint, time.Now())

	_, err := g.GetTokensJWTGrant(context.Background(), constants.EntityTypeUser, "u1", models.TokenRequestOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsAuthExpired(err))
	assert.Contains(t, err.Error(), "Invalid user")
	assert.Len(t, endpoint.forms, 1)
}

func TestJWTGrantor_OtherFailuresKeepTheirKind(t *testing.T) {
	endpoint := &tokenEndpoint{handle: func(w http.ResponseWriter, call int) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}}
	g, _ := newTestGrantor(t, endpoint, time.Now())

	_, err := g.GetTokensJWTGrant(context.Background(), constants.EntityTypeEnterprise, "1", models.TokenRequestOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
}

func TestJWTGrantor_MalformedTokenResponse(t *testing.T) {
	endpoint := &tokenEndpoint{handle: func(w http.ResponseWriter, call int) {
		fmt.Fprint(w, `{"token_type":"bearer"}`)
	}}
	g, _ := newTestGrantor(t, endpoint, time.Now())

	_, err := g.GetTokensJWTGrant(context.Background(), constants.EntityTypeEnterprise, "1", models.TokenRequestOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsMalformed(err))
}

func TestJWTGrantor_ExchangeToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	endpoint := &tokenEndpoint{handle: func(w http.ResponseWriter, call int) {
		fmt.Fprint(w, `{"access_token":"DOWN","expires_in":120,"token_type":"bearer","issued_token_type":"urn:ietf:params:oauth:token-type:access_token"}`)
	}}
	g, _ := newTestGrantor(t, endpoint, now)

	token, err := g.ExchangeToken(context.Background(), "T1", []string{"item_preview", "item_download"}, "https://api.example.com/2.0/files/1", models.TokenRequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "DOWN", token.AccessToken)
	assert.Equal(t, []string{"item_preview", "item_download"}, token.GrantedScopes)

	form := endpoint.forms[0]
	assert.Equal(t, string(constants.GrantTypeTokenExchange), form["grant_type"])
	assert.Equal(t, "T1", form["subject_token"])
	assert.Equal(t, string(constants.TokenTypeAccess), form["subject_token_type"])
	assert.Equal(t, "item_preview item_download", form["scope"])
	assert.Equal(t, "https://api.example.com/2.0/files/1", form["resource"])
}

func TestJWTGrantor_RevokeTokens(t *testing.T) {
	endpoint := &tokenEndpoint{handle: func(w http.ResponseWriter, call int) {}}
	g, _ := newTestGrantor(t, endpoint, time.Now())

	require.NoError(t, g.RevokeTokens(context.Background(), "T1", models.TokenRequestOptions{}))
	assert.Equal(t, map[string]string{"client_id": "client", "client_secret": "secret", "token": "T1"}, endpoint.forms[0])
}

func TestJWTGrantor_IsAccessTokenValid(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g, _ := newTestGrantor(t, &tokenEndpoint{}, now)

	token := &models.TokenInfo{AccessToken: "T", ExpiresAt: now.Add(5 * time.Minute)}
	assert.True(t, g.IsAccessTokenValid(token, 3*time.Minute))
	assert.False(t, g.IsAccessTokenValid(token, 10*time.Minute))
	assert.False(t, g.IsAccessTokenValid(nil, 0))
}

func TestNewJWTGrantor_Validation(t *testing.T) {
	httpClient := transport.NewClient(transport.Config{}, nil, nil)
	_, err := NewJWTGrantor(httpClient, kms.StaticKeySource("x"), Config{ClientID: "id"})
	assert.Error(t, err)
	_, err = NewJWTGrantor(nil, kms.StaticKeySource("x"), Config{ClientID: "id", ClientSecret: "s"})
	assert.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	key, plain := generateTestKey(t)

	t.Run("pkcs1", func(t *testing.T) {
		parsed, err := parsePrivateKey(plain, "")
		require.NoError(t, err)
		assert.True(t, key.Equal(parsed))
	})

	t.Run("encrypted", func(t *testing.T) {
		//nolint:staticcheck
		block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), []byte("pass"), x509.PEMCipherAES256)
		require.NoError(t, err)
		encrypted := pem.EncodeToMemory(block)

		parsed, err := parsePrivateKey(encrypted, "pass")
		require.NoError(t, err)
		assert.True(t, key.Equal(parsed))

		_, err = parsePrivateKey(encrypted, "")
		assert.Error(t, err)
		_, err = parsePrivateKey(encrypted, "wrong")
		assert.Error(t, err)
	})

	t.Run("not pem", func(t *testing.T) {
		_, err := parsePrivateKey([]byte("nope"), "")
		assert.Error(t, err)
	})
}
