// Package password hashes and verifies user credentials with Argon2id.
//
// Hashes are stored in the PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Verify has three outcomes: match, mismatch, and malformed (ErrInvalidHash).
// Stored hash strings are treated as untrusted input; verification refuses hashes
// whose cost parameters exceed reasonable bounds.
//
// Policy (length limits) is enforced by Validate and is kept apart from Hash so
// that hashing fails only when the parameters themselves are broken.
package password
