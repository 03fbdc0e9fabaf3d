// Package playback drives the media element attached to a visible overlay
// item.
//
// Two sources are supported:
//   - LocalElement plays a file or URL whose position is derived from the
//     clock. Its duration arrives asynchronously from a media.Prober.
//   - RemotePlayer mirrors an embedded player running in the renderer. Every
//     command updates an optimistic shadow immediately and is pushed onto a
//     bounded CommandQueue; the player's own notifications overwrite the
//     shadow when they arrive.
//
// A Controller owns one source for exactly one item. It ticks on the clock,
// enforces the sub-clip window and reports state upstream. Remote players are
// exclusively owned through Leases, so a new item taking a player over
// revokes the previous owner.
package playback
