// Package endpoints derives the public URLs of a realm's OAuth/OIDC endpoints
// from the server base URI. A client assertion must name one of these URLs in
// its "aud" claim.
package endpoints

import "net/url"

const (
	tokenPath         = "protocol/openid-connect/token"
	parPath           = "protocol/openid-connect/ext/par/request"
	backchannelPath   = "protocol/openid-connect/ext/ciba/auth"
	realmsPathSegment = "realms"
)

// Issuer returns the realm issuer URL: {base}/realms/{realm}.
func Issuer(base *url.URL, realm string) string {
	return realmURL(base, realm).String()
}

// Token returns the realm token endpoint URL.
func Token(base *url.URL, realm string) string {
	return realmURL(base, realm).JoinPath(tokenPath).String()
}

// PushedAuthorizationRequest returns the realm PAR endpoint URL (RFC 9126).
func PushedAuthorizationRequest(base *url.URL, realm string) string {
	return realmURL(base, realm).JoinPath(parPath).String()
}

// BackchannelAuthentication returns the realm CIBA backchannel authentication
// endpoint URL.
func BackchannelAuthentication(base *url.URL, realm string) string {
	return realmURL(base, realm).JoinPath(backchannelPath).String()
}

// ExpectedAudiences lists every audience a client assertion may carry for
// realm, in order: issuer, token, PAR and CIBA endpoints.
func ExpectedAudiences(base *url.URL, realm string) []string {
	return []string{
		Issuer(base, realm),
		Token(base, realm),
		PushedAuthorizationRequest(base, realm),
		BackchannelAuthentication(base, realm),
	}
}

func realmURL(base *url.URL, realm string) *url.URL {
	u := *base
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	// JoinPath takes escaped elements; escaping keeps the realm one segment.
	return u.JoinPath(realmsPathSegment, url.PathEscape(realm))
}
