// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Status,
// overlay and journal payloads reuse the internal/api types so the CLI and
// the render API agree on field names. Errors returned by the daemon cross
// the socket as plain strings.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
