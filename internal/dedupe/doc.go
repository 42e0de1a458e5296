// Package dedupe tracks which conversation messages have already been
// displayed, so a full-history poll only surfaces what is new.
package dedupe
