// Package cmd implements the command-line interface of solo. It provides a hierarchical
// command structure to run instances of an application and to talk to a running primary.
//
// The package is organized into several subpackages:
//
//   - run: Runs an instance, either as the primary printing the messages of secondaries
//     or as a secondary announcing itself
//   - msg: Commands for sending messages to the primary (send, announce, perf)
//   - query: Commands for querying the primary (pid, user)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set via SOLO_<FLAG> environment variables or .env files.
// See solo -help for a list of all commands.
package cmd
