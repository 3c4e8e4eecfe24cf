// Package server implements the primary side of the single instance protocol.
// It accepts connections of secondaries, replies to their requests and hands
// acknowledged messages to the application in arrival order.
//
// The package focuses on:
//   - Adapter pattern to decouple request handling from connection handling
//   - One goroutine per connection decoding its byte stream
//   - A lock-free queue between the connection goroutines and the single consumer
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method returning the reply and whether to dispatch.
//
//   - NewInstanceServerAdapter: acknowledges NewInstance and InstanceMessage requests
//     (instance id 0) and marks them for dispatch.
//
//   - NewQueryServerAdapter: answers PrimaryPidRequest (int64 big endian) and
//     PrimaryUserRequest (UTF-8 user name) with a frame of the request's type.
//
//   - RPCServer: binds the endpoint, owns the connection table and the message queue.
//
// Ordering: the reply to a request is written before the request is queued, so a
// secondary that received its acknowledge knows the message is on its way to the
// application. Messages of one connection are queued in arrival order.
//
// Thread Safety:
//
//	All methods of RPCServer are safe for concurrent use. Replies on one connection are
//	serialized by a per connection write mutex. Messages must be consumed by a single
//	goroutine.
package server
