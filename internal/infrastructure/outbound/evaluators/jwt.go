package evaluators

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sophialabs/mimic/internal/domain/exchange"
)

// JWT exposes the bearer token of the request: jwt.claims.<name> and
// jwt.header.<name>. Signatures are not verified. A missing or malformed
// token is null.
type JWT struct{}

func (JWT) Eval(_ context.Context, expr string, ex *exchange.Exchange) (any, error) {
	parts := strings.SplitN(expr, ".", 3)
	if len(parts) < 2 || (parts[1] != "claims" && parts[1] != "header") {
		return nil, fmt.Errorf("unsupported jwt expression %q", expr)
	}

	raw, ok := bearerToken(ex.Request)
	if !ok {
		return nil, nil
	}
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, nil
	}

	section := map[string]any(claims)
	if parts[1] == "header" {
		section = token.Header
	}
	if len(parts) == 2 {
		return maps.Clone(section), nil
	}
	return section[parts[2]], nil
}

func bearerToken(req *exchange.Request) (string, bool) {
	auth, ok := req.Header("Authorization")
	if !ok {
		return "", false
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(auth), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
