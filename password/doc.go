// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the cost parameters from the stored hash, so raising the configured cost
// does not lock anyone out. [Argon2.NeedsUpgrade] reports hashes produced with weaker
// parameters so the engine can re-hash them after the next successful login.
//
// Length policy is enforced by the engine. This package only refuses empty input and inputs
// above MaxPasswordBytes, and it never logs or stores plaintext.
package password
