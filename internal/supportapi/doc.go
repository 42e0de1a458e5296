// Package supportapi is the typed HTTP client for the support backend.
//
// # Overview
//
// The support backend owns sessions, tickets and messages. This package only
// consumes its fixed HTTP contract:
//
//	POST /session                  create a session
//	GET  /session/{id}             fetch the conversation snapshot
//	POST /session/{id}/messages    send a visitor message (or a ticket)
//	POST /session/{id}/new-ticket  close the active ticket and open a new one
//	POST /tickets/{id}/close       close a ticket
//	POST /tickets/{id}/reopen      reopen a closed ticket
//	GET  /health                   liveness probe
//
// # Errors
//
// Every non-2xx response becomes an *Error carrying the HTTP status. The
// message is taken from the JSON body's "detail" or "error" field when
// present. A 404 means the session (or ticket) no longer exists server-side:
//
//	snap, err := client.FetchConversation(ctx, sessionID)
//	if supportapi.IsNotFound(err) {
//	    // session is gone, recreate it
//	}
//
// Validation failures (empty message body, zero ticket id) are returned
// before any request is made, as sentinel errors.
//
// # Wire types
//
// Ticket and Message decode the backend's camelCase JSON. Message ids arrive
// as numbers and are normalised to strings. Timestamps accept RFC 3339 as
// well as the zone-less ISO format the backend emits (read as UTC).
package supportapi
