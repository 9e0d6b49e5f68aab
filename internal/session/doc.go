// Package session tracks who is signed in.
//
// Store sits between an auth.Provider and the rest of the portal. The
// provider pushes identity transitions; Store queues them without
// blocking, resolves each identity to its users/<uid> principal record on
// a single dispatcher goroutine, and hands the results to subscribers in
// the order the provider emitted them.
//
//	s := session.New(provider, records, session.Options{Logger: logger})
//	unsubscribe := s.Subscribe(func(p *access.Principal) { ... })
//	if err := s.Start(ctx); err != nil { ... }
//	defer s.Close()
//
// SignUp, Login, and Logout wrap the provider and return only apperr
// taxonomy errors.
//
// Bootstrapper seeds configured accounts into an empty store at first
// start. A transactional marker in system/bootstrap keeps concurrent
// processes from seeding twice. A run that fails part way leaves the
// marker in the failed state, and the next attempt resumes the seed.
package session
