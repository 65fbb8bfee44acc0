// Package models defines the domain models for the content API client.
// This file contains the TokenInfo model issued by the token endpoint.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/turtacn/contentsdk/pkg/constants"
)

// TokenInfo is an access token together with its expiry and scope restrictions.
// A TokenInfo is never mutated after it is issued; a refresh replaces it wholesale.
// TokenInfo 是访问令牌及其过期时间和范围限制。
// TokenInfo 颁发后不会被修改；刷新时整体替换。
type TokenInfo struct {
	// AccessToken is the bearer credential sent on API calls.
	// AccessToken 是 API 调用时发送的 bearer 凭证。
	AccessToken string `json:"access_token" gorm:"column:access_token"`

	// RefreshToken is only returned by grants that support refresh.
	RefreshToken string `json:"refresh_token,omitempty" gorm:"column:refresh_token"`

	// ExpiresAt is the absolute expiry computed from expires_in at issue time.
	// ExpiresAt 是根据颁发时的 expires_in 计算出的绝对过期时间。
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at"`

	// GrantedScopes lists the scopes of a downscoped token.
	GrantedScopes []string `json:"granted_scopes,omitempty" gorm:"-"`

	// RestrictedTo is the raw restricted_to list of a downscoped token.
	RestrictedTo json.RawMessage `json:"restricted_to,omitempty" gorm:"-"`

	TokenType constants.TokenType `json:"token_type,omitempty" gorm:"column:token_type"`
}

// ValidAt reports whether the token can still be used at now, leaving buffer before expiry.
// A nil token or an empty access token is never valid.
func (t *TokenInfo) ValidAt(now time.Time, buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-buffer))
}

// TokenResponse is the token endpoint's JSON body.
type TokenResponse struct {
	AccessToken     string          `json:"access_token"`
	ExpiresIn       int64           `json:"expires_in"`
	TokenType       string          `json:"token_type"`
	RestrictedTo    json.RawMessage `json:"restricted_to,omitempty"`
	RefreshToken    string          `json:"refresh_token,omitempty"`
	IssuedTokenType string          `json:"issued_token_type,omitempty"`
}

// ToTokenInfo converts the response into a TokenInfo issued at now.
// scopes are recorded as granted when the request asked for them.
func (r *TokenResponse) ToTokenInfo(now time.Time, scopes []string) *TokenInfo {
	info := &TokenInfo{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
		RestrictedTo: r.RestrictedTo,
		TokenType:    constants.TokenType(strings.ToLower(r.TokenType)),
	}
	if len(scopes) > 0 {
		info.GrantedScopes = append([]string(nil), scopes...)
	}
	return info
}

// TokenRequestOptions carries per-request hints for grant calls.
type TokenRequestOptions struct {
	// IP is the end user's address, forwarded on grant requests.
	IP string
}
