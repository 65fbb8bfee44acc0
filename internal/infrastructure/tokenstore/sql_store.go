package tokenstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/constants"
)

// tokenRecord is one stored token, keyed by store key.
type tokenRecord struct {
	Key           string    `gorm:"column:store_key;primaryKey;size:255"`
	AccessToken   string    `gorm:"column:access_token;not null"`
	RefreshToken  string    `gorm:"column:refresh_token"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null"`
	TokenType     string    `gorm:"column:token_type;size:64"`
	GrantedScopes string    `gorm:"column:granted_scopes"`
	RestrictedTo  string    `gorm:"column:restricted_to"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (tokenRecord) TableName() string { return "contentsdk_tokens" }

// SQLStore persists the token in a relational database through GORM.
// SQLStore 通过 GORM 将令牌持久化到关系型数据库。
type SQLStore struct {
	db  *gorm.DB
	key string
}

var _ domainService.TokenStore = (*SQLStore)(nil)

// NewSQLStore creates a store for key and migrates its table.
func NewSQLStore(ctx context.Context, db *gorm.DB, key string) (*SQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&tokenRecord{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, key: key}, nil
}

func (s *SQLStore) Read(ctx context.Context) (*models.TokenInfo, error) {
	var rec tokenRecord
	err := s.db.WithContext(ctx).Where("store_key = ?", s.key).Take(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	token := &models.TokenInfo{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
		TokenType:    constants.TokenType(rec.TokenType),
	}
	if rec.GrantedScopes != "" {
		token.GrantedScopes = strings.Fields(rec.GrantedScopes)
	}
	if rec.RestrictedTo != "" {
		token.RestrictedTo = json.RawMessage(rec.RestrictedTo)
	}
	return token, nil
}

func (s *SQLStore) Write(ctx context.Context, token *models.TokenInfo) error {
	rec := tokenRecord{
		Key:           s.key,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     token.ExpiresAt.UTC(),
		TokenType:     string(token.TokenType),
		GrantedScopes: strings.Join(token.GrantedScopes, " "),
		RestrictedTo:  string(token.RestrictedTo),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (s *SQLStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("store_key = ?", s.key).Delete(&tokenRecord{}).Error
}
