// Package rate throttles failed logins with Redis fixed-window counters.
//
// # Window semantics
//
// INCR + conditional EXPIRE on the first hit. Keys are "<prefix>:login:<email>".
// A successful login deletes the counter.
package rate
