// Package client implements the secondary side of the single instance protocol.
//
// The package focuses on:
//   - Announcing a secondary to the primary and delivering application messages
//   - Querying the process id and the user of the primary
//   - Bounded waits: every request has a deadline, no request is retried
//
// Key Components:
//
//   - RPCInstanceClient: one connection to the primary, established lazily and
//     re-established by the next request after a failure.
//
// Error Handling:
//
//	Announce and SendMessage return nil only if the primary acknowledged the message
//	(type Acknowledge, instance id 0). Deadline errors wrap common.ErrHandshakeTimeout,
//	any other wrong or missing reply wraps common.ErrInvalidAcknowledge.
//
//	PrimaryPid and PrimaryUser return -1 or "" together with an error wrapping
//	common.ErrQueryTimeout or common.ErrQueryDecodeFailure.
//
//	If no primary is reachable the connect error (common.ErrConnectRefused or
//	common.ErrConnectTimeout) is returned unchanged.
//
// Usage Example:
//
//	config := common.DefaultInstanceConfig(identity.EndpointName(opts))
//	c := client.NewRPCInstanceClient(config, unix.NewUnixTransport(), identity.NewInstanceID())
//	defer c.Close()
//
//	if err := c.SendMessage([]byte("raise window"), time.Second); err != nil {
//	  log.Printf("primary did not acknowledge: %v", err)
//	}
//
//	pid, err := c.PrimaryPid(0) // default query timeout (1000 ms)
package client
