// Package auth provides the email/password auth provider used by the portal.
//
// # Provider Contract
//
// A Provider is the remote identity service the session layer depends on:
//
//   - CreateUser registers an identity without signing it in
//   - SignIn and SignOut move the current session
//   - OnAuthStateChanged delivers every session transition, synchronously
//     and in emission order
//   - Start emits the initial state, restoring a persisted session if any
//
// Providers report failures as *ProviderError values carrying
// Firebase-style codes such as "auth/email-already-in-use". Callers never
// see those codes: TranslateError is the single boundary function mapping
// them into the apperr taxonomy.
//
// # Local Provider
//
// LocalProvider keeps identities in a store.RecordStore:
//
//	auth_identities/<uid>  {email, passwordHash, disabled}
//	auth_emails/<email>    {uid}
//
// Passwords are hashed with bcrypt. The signed-in session is an HS256 JWT
// (claims sub, email, iat, exp) held in memory and optionally written to a
// 0600 session file so a later process can resume it.
//
// # Session Tokens
//
//	v, err := NewJWTVerifier(secret)         // secret >= 32 bytes
//	token, err := v.Generate(uid, email, ttl)
//	claims, err := v.Verify(token)
package auth
