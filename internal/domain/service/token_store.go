package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/pkg/errors"
)

type tokenReader interface {
	Read(ctx context.Context) (*models.TokenInfo, error)
}

type tokenWriter interface {
	Write(ctx context.Context, token *models.TokenInfo) error
}

type tokenClearer interface {
	Clear(ctx context.Context) error
}

// WrapTokenStore validates a caller-supplied persistence object.
// A nil value means no store and returns (nil, nil). Otherwise v must provide
// Read, Write and Clear; the error names every operation that is missing.
func WrapTokenStore(v any) (TokenStore, error) {
	if v == nil {
		return nil, nil
	}
	if store, ok := v.(TokenStore); ok {
		return store, nil
	}

	var missing []string
	if _, ok := v.(tokenReader); !ok {
		missing = append(missing, "Read")
	}
	if _, ok := v.(tokenWriter); !ok {
		missing = append(missing, "Write")
	}
	if _, ok := v.(tokenClearer); !ok {
		missing = append(missing, "Clear")
	}
	return nil, errors.ErrInvalidConfig(fmt.Sprintf("token store %T is missing %s", v, strings.Join(missing, ", "))).
		WithCause(errors.ErrInvalidTokenStore).
		WithMetadata("missing", missing)
}
