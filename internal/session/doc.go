// ABOUTME: Package session persists the support session and coordinates its creation
// ABOUTME: Provides file, SQLite and memory stores plus the single-flight Manager

// Package session owns the opaque session id that ties this client to its
// conversation on the support server.
//
// A Store persists at most one session under the logical key
// "support-session" as the JSON document {"sessionId": "..."}. Stores never
// return errors: unreadable or malformed data is logged, cleared and treated
// as absent.
//
// The Manager moves between three states:
//
//	Absent  -> Loading  (Refresh, or auto-create at startup)
//	Loading -> Ready    (creation succeeded; session persisted)
//	Loading -> Absent   (creation failed; store cleared, Err set)
//	Ready   -> Absent   (Reset)
//
// Concurrent Refresh calls share one CreateSession request. Reset drops the
// in-flight request; when it later completes its result is discarded and
// waiters receive ErrReset.
package session
