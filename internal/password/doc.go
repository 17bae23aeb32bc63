// Package password hashes and verifies account passwords with Argon2id for
// the local analysis service.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Password bytes are used exactly as provided; no Unicode normalization is
// applied.
package password
