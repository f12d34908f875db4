// Package password implements password hashing, verification and policy.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher] also verifies legacy bcrypt hashes ($2a$, $2b$, $2y$) and reports
// them through [Hasher.NeedsUpgrade], together with Argon2id hashes made with
// weaker parameters, so callers can rehash on the next successful login.
//
// [Pool] bounds concurrent hashing with a weighted semaphore. [ValidatePolicy]
// is the single policy used by registration and password reset.
//
// This package never stores passwords and never logs plaintext or hash
// parameters.
package password
