// Package protocol defines the frames exchanged with the director over the
// control channel and with embedded players over the render API.
//
// Director frames are JSON envelopes {type, channel, id, payload}. Every
// inbound envelope with an id is answered by exactly one Ack once its handler
// finishes. Embedded player traffic uses the {event, func, args} command
// shape outbound and onReady/infoDelivery notifications inbound.
package protocol
