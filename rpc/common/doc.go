// Package common provides core data structures and utilities shared across
// the single instance coordination stack. It defines the protocol message,
// configuration structures, the error taxonomy and the logging setup.
//
// The package focuses on:
//   - Message definition for all communication between a secondary and the primary
//   - Configuration structures for primary and secondary instances
//   - Sentinel errors for transport, handshake and query failures
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - Message: the immutable value exchanged over the wire. It carries the message
//     type, the instance id of the sender and an opaque content of at most 1 MiB.
//     The instance id 0 (PrimaryInstanceID) is reserved for the primary.
//
//   - MessageType: enumeration of the five protocol message types. The ordinal is
//     the value written to the wire.
//
//   - InstanceConfig: timeouts, poll interval, buffer sizes and log level of an instance.
//
//   - Logger: custom logging implementation that plugs into Dragonboat's logging
//     facade, every package obtains its logger via logger.GetLogger(name).
package common
