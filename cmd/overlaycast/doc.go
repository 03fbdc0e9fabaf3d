// Command overlaycast runs and controls the overlay daemon.
//
// The daemon subcommand is the long-running process; every other command
// talks to it over the Unix socket in the state directory, or reads the
// configuration and journal directly when no daemon is running.
package main
