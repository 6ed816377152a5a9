// Package jwt reads bearer credentials on the client side and, for development servers
// and tests, issues them.
//
// [Inspector] decodes a token's claims WITHOUT verifying its signature: the client only
// needs the expiration instant to schedule an automatic logout, and it never holds the
// issuer's verification key. Nothing in this package should be used to make an
// authorization decision on a server.
package jwt
