// Package identity owns user accounts: registration records, username rules,
// credential hashes and the password-change transaction that revokes every
// session of the user.
package identity
