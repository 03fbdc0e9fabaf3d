// Package preflight provides readiness checks for the director endpoint,
// the local filesystem paths and the external binaries overlaycast uses.
//
// The daemon runs RunAll at startup and logs each failed check; nothing is
// fatal because the channel client keeps reconnecting. The CLI status
// command uses the individual checks (CheckDirectoryAccess,
// DirectorStatusFromConfig) to render service health when no daemon is
// running.
package preflight
