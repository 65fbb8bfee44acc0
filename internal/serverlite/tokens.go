package serverlite

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/contentsdk/pkg/constants"
)

type issuedToken struct {
	subject   string
	subType   string
	scopes    []string
	expiresAt time.Time
}

func oauthError(c *gin.Context, status int, code, description string) {
	c.JSON(status, gin.H{"error": code, "error_description": description})
}

func (s *Server) issueToken(c *gin.Context) {
	if c.PostForm("client_id") != s.cfg.ClientID || c.PostForm("client_secret") != s.cfg.ClientSecret {
		oauthError(c, http.StatusBadRequest, "invalid_client", "The client credentials are invalid")
		return
	}

	switch constants.GrantType(c.PostForm("grant_type")) {
	case constants.GrantTypeJWT:
		claims, err := s.verifyAssertion(c.PostForm("assertion"))
		if err != nil {
			oauthError(c, http.StatusBadRequest, "invalid_grant", err.Error())
			return
		}
		sub, _ := claims["sub"].(string)
		subType, _ := claims["box_sub_type"].(string)
		s.mu.Lock()
		s.grants++
		s.mu.Unlock()
		s.respondToken(c, issuedToken{subject: sub, subType: subType})
	case constants.GrantTypeTokenExchange:
		parent, ok := s.lookup(c.PostForm("subject_token"))
		if !ok {
			oauthError(c, http.StatusBadRequest, "invalid_grant", "The subject token is invalid or expired")
			return
		}
		parent.scopes = strings.Fields(c.PostForm("scope"))
		s.respondToken(c, parent)
	default:
		oauthError(c, http.StatusBadRequest, "unsupported_grant_type", "Grant type is not supported")
	}
}

func (s *Server) respondToken(c *gin.Context, tok issuedToken) {
	tok.expiresAt = s.now().Add(s.cfg.TokenTTL)
	access := uuid.NewString()
	s.mu.Lock()
	s.tokens[access] = tok
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int(s.cfg.TokenTTL / time.Second),
		"restricted_to": []any{},
	})
}

func (s *Server) revokeToken(c *gin.Context) {
	if c.PostForm("client_id") != s.cfg.ClientID || c.PostForm("client_secret") != s.cfg.ClientSecret {
		oauthError(c, http.StatusBadRequest, "invalid_client", "The client credentials are invalid")
		return
	}
	token := c.PostForm("token")
	s.mu.Lock()
	if _, ok := s.tokens[token]; ok {
		delete(s.tokens, token)
		s.revoked = append(s.revoked, token)
	}
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

// requireToken rejects API calls without a live bearer token.
func (s *Server) requireToken(c *gin.Context) {
	raw, found := strings.CutPrefix(c.GetHeader(constants.HeaderAuthorization), "Bearer ")
	if !found {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if _, ok := s.lookup(raw); !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Next()
}

func (s *Server) lookup(access string) (issuedToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[access]
	if !ok || !s.now().Before(tok.expiresAt) {
		return issuedToken{}, false
	}
	return tok, true
}

// VerifyAndParseToken checks a grant assertion and returns its claims.
func (s *Server) VerifyAndParseToken(assertion string) (jwt.MapClaims, error) {
	return s.verifyAssertion(assertion)
}

func (s *Server) verifyAssertion(assertion string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	var err error
	if s.cfg.PublicKey != nil {
		_, err = jwt.ParseWithClaims(assertion, claims, func(*jwt.Token) (any, error) {
			return s.cfg.PublicKey, nil
		}, jwt.WithValidMethods([]string{constants.AssertionAlgorithm}), jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(s.now))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(assertion, claims)
	}
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return nil, errExpClaim
		}
		return nil, err
	}
	if iss, _ := claims["iss"].(string); iss != s.cfg.ClientID {
		return nil, errIssuer
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, errSubject
	}
	return claims, nil
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

const (
	errExpClaim = assertionError("Please check the 'exp' claim.")
	errIssuer   = assertionError("The 'iss' claim does not match the client id")
	errSubject  = assertionError("The 'sub' claim is missing")
)
