package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/llmgate/internal/oauth"
	"github.com/nao1215/llmgate/pkg/middleware"
)

// bearerVerifier はoauth.Verifierをmiddleware.TokenVerifierとして使うためのアダプタ。
// 検証したクレームはoauth.WithClaimsでリクエストコンテキストに設定する。
type bearerVerifier struct {
	verifier *oauth.Verifier
}

// Authenticate はmiddleware.TokenVerifierを実装する。
func (b bearerVerifier) Authenticate(ctx context.Context, token string) (context.Context, middleware.Principal, error) {
	claims, err := b.verifier.Verify(token)
	switch {
	case err == nil:
	case errors.Is(err, oauth.ErrKeyUninitialized):
		return nil, middleware.Principal{}, fmt.Errorf("%w: %w", middleware.ErrVerifierUnavailable, err)
	case errors.Is(err, oauth.ErrTokenExpired):
		return nil, middleware.Principal{}, fmt.Errorf("%w: %w", middleware.ErrTokenExpired, err)
	case errors.Is(err, oauth.ErrTokenNotYetValid):
		return nil, middleware.Principal{}, fmt.Errorf("%w: %w", middleware.ErrTokenNotYetValid, err)
	default:
		return nil, middleware.Principal{}, err
	}

	principal := middleware.Principal{Subject: claims.Subject, Role: string(claims.Role)}
	return oauth.WithClaims(ctx, *claims), principal, nil
}
