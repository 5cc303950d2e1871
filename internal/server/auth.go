package server

import (
	"net/http"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/gatewayerr"
)

// extractBearer pulls the token out of an "Authorization: Bearer <token>"
// header, grounded on original_source/gateway/src/auth.rs: extract_bearer.
func extractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", gatewayerr.Unauthorizedf("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", gatewayerr.Unauthorizedf("Authorization header is not a Bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", gatewayerr.Unauthorizedf("empty bearer token")
	}
	return token, nil
}

// validateGatewayKey checks token against the configured allow-list. An
// empty allow-list means any non-empty token is accepted
// (original_source/gateway/src/auth.rs: validate_gateway_key).
func validateGatewayKey(token string, allowList []string) error {
	if len(allowList) == 0 {
		return nil
	}
	for _, key := range allowList {
		if key == token {
			return nil
		}
	}
	return gatewayerr.Unauthorizedf("bearer token is not in the gateway allow-list")
}

// resolveProviderAPIKey validates the client's gateway key, then returns
// the key the provider adapter should use: the configured per-provider
// key if present, else the client's own bearer token
// (original_source/gateway/src/auth.rs: resolve_provider_api_key; spec.md
// §4.E credential resolution).
func resolveProviderAPIKey(r *http.Request, allowList []string, configuredKey string) (string, error) {
	token, err := extractBearer(r)
	if err != nil {
		return "", err
	}
	if err := validateGatewayKey(token, allowList); err != nil {
		return "", err
	}
	if configuredKey != "" {
		return configuredKey, nil
	}
	return token, nil
}
