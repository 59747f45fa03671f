// Package session is the durable store of record for conversations.
//
// It owns three concerns:
//
//   - Session resolution: Store.ResolveOrCreate returns the single active
//     session for a participant, creating one only when none is resumable.
//     The check-then-create runs in one transaction anchored on the
//     participant row, so concurrent resolutions for the same user can
//     never yield two active sessions.
//
//   - Token resumption: Tokens maps an opaque session token back to its
//     participant and session, honoring it only while the session is
//     active and inside the inactivity window.
//
//   - The message log: Store.Append assigns sequence numbers inside a
//     transaction holding the session row lock. sequence_number is the
//     single source of truth for conversation order; timestamps are
//     informational only.
//
// All mutating operations rely on database transactions and row locks,
// never on in-process locks: the calling UI process re-executes and may
// not be singular.
package session
