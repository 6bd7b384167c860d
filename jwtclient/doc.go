// Package jwtclient implements RFC 7523 "private_key_jwt" client
// authentication: the client proves its identity with a JWT it signed with
// its own private key, sent as the client_assertion form parameter.
//
// An assertion is accepted only when every check passes, in order:
//
//   - the request is form encoded and client_assertion_type is the JWT
//     bearer assertion type
//   - the assertion decodes, names the client in sub and iss alike, and the
//     client exists and is enabled
//   - the header alg is present and matches the client's configured
//     token_endpoint_auth_signing_alg, if any
//   - a key resolves for the client and verifies the signature
//   - aud contains the realm issuer, token, PAR or CIBA endpoint URL
//   - the token is active, and tokens without exp are at most ten seconds old
//   - jti is present and has not been seen before
//
// The jti is recorded in a singleuse.Cache only after the signature has been
// verified, so unauthenticated tokens cannot poison the cache. The cache entry
// lives until exp, and at least ten seconds.
package jwtclient
