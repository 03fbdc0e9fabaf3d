// Package channel maintains the director connection.
//
// One Client owns one websocket and multiplexes any number of logical
// channels over it. After every successful dial the client subscribes every
// registered channel again. Inbound frames are handed to a single dispatcher
// goroutine so handlers observe them in arrival order, and each frame that
// carries an id is acknowledged exactly once after its handler returns.
//
// The socket is re-dialed after an abnormal closure only; a normal or
// going-away close from the director, or a local Close, ends the client.
package channel
