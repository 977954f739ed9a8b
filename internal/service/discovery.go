package service

import "fmt"

// DiscoveryService builds responses for discovery endpoints.
type DiscoveryService struct{}

// NewDiscoveryService creates a DiscoveryService.
func NewDiscoveryService() *DiscoveryService {
	return &DiscoveryService{}
}

// OpenIDConfiguration matches the OIDC discovery document.
type OpenIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	EndSessionEndpoint               string   `json:"end_session_endpoint"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

// OpenIDConfigurationResponse builds the OIDC document using the request
// scheme and host.
func (s *DiscoveryService) OpenIDConfigurationResponse(scheme, host string) OpenIDConfiguration {
	issuer := fmt.Sprintf("%s://%s", scheme, host)
	return OpenIDConfiguration{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/connect/authorize",
		TokenEndpoint:                    issuer + "/connect/token",
		UserinfoEndpoint:                 issuer + "/connect/userinfo",
		EndSessionEndpoint:               issuer + "/connect/logout",
		IntrospectionEndpoint:            issuer + "/connect/introspect",
		RevocationEndpoint:               issuer + "/connect/revoke",
		JWKSURI:                          issuer + "/.well-known/jwks.json",
		GrantTypesSupported:              []string{"authorization_code", "refresh_token"},
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"HS256"},
		ScopesSupported:                  []string{"openid", "profile", "email", "roles", "offline_access", "resource_api"},
		TokenEndpointAuthMethods:         []string{"client_secret_post"},
		CodeChallengeMethodsSupported:    []string{"S256", "plain"},
		ClaimsSupported:                  []string{"sub", "email", "name", "given_name", "family_name", "roles"},
	}
}
