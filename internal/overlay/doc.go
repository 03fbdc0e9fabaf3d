// Package overlay holds the per-instance overlay state machines and the
// manager that routes director envelopes to them by channel.
//
// A Machine is hidden, visible, crossfading between two items, or hiding.
// Every mutation happens under the machine lock. Timers and asynchronous
// continuations capture a generation or request token when they are armed
// and do nothing once a newer show or hide has superseded them.
package overlay
