// Package rpc provides the communication layer between the instances of an application:
// one primary owning a local endpoint and any number of short lived secondaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, errors and logging.
//
//   - codec: The frame codec converting Messages to checksummed frames and decoding
//     them from a byte stream, resynchronizing after corruption.
//
//   - transport: Local IPC abstractions (exclusive bind, connect with timeout) with a
//     unix socket implementation and the connection handling shared by both sides.
//
//   - client: The secondary side, announcements, messages and queries with
//     bounded deadlines.
//
//   - server: The primary side, acknowledging and answering requests through adapters
//     and queueing inbound messages for dispatch.
package rpc
