// ABOUTME: Package fakeapi serves an in-memory support backend over HTTP with gin
// ABOUTME: Used by cmd/fake-support-api for local runs and by end-to-end tests

// Package fakeapi implements the support widget HTTP contract in memory.
//
// Widget endpoints (all under /api):
//
//	GET  /health
//	POST /session                    {locale, user_agent, referer} -> {session_id}
//	GET  /session/:id                -> {ticket?, messages[]}
//	POST /session/:id/messages       {body, category?, priority?, contact_name?, contact_email?}
//	POST /session/:id/new-ticket
//	POST /tickets/:id/close
//	POST /tickets/:id/reopen
//
// Agent-side hooks, standing in for the agent console:
//
//	POST   /tickets/:id/claim           {agent_id}
//	POST   /tickets/:id/agent-messages  {body}
//	DELETE /session/:id                 simulate server-side session expiry
//
// Errors use the {"detail": "..."} body. Timestamps are zone-less UTC and
// message ids are numbers, matching what the production backend emits.
package fakeapi
