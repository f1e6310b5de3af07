// Package suppression implements the recipient suppression service.
//
// This is the single source of truth for whether an address should receive
// mail. Suppressions flow in from the feedback processor (complaints,
// permanent bounces) and from operator actions, and are checked before
// every send.
//
// The service layer contains pure business logic and depends on the Store
// interface. It never imports net/http or a database driver directly.
package suppression
