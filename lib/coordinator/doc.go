// Package coordinator is the entry point for applications: it decides whether a process
// is the primary of its application or a secondary, and runs the matching side of the
// single instance protocol.
//
// Election: the first process that binds the endpoint is the primary. Binding is
// exclusive across processes, so at most one primary exists per endpoint. A process
// that cannot bind connects to the primary and becomes a secondary. The role never
// changes afterwards.
//
// Primary: messages of secondaries are acknowledged and handed to the handlers
// registered with OnNewInstance and OnMessage. All handlers run on one dispatch
// goroutine, messages of one secondary arrive in the order they were sent. Register
// handlers before ClaimOrJoin, messages without a handler are dropped.
//
// Secondary: AnnounceSecondary and SendMessage block until the primary acknowledged or
// the timeout passed. PrimaryPid and PrimaryUser query the primary.
//
// Usage Example:
//
//	c := coordinator.New(common.DefaultInstanceConfig(identity.EndpointName(opts)))
//	defer c.Close()
//
//	c.OnMessage(func(instanceID uint16, content []byte) {
//	  raiseWindow()
//	})
//
//	role, err := c.ClaimOrJoin("", 5*time.Second)
//	if err != nil {
//	  log.Fatal(err)
//	}
//
//	if role == coordinator.RoleSecondary {
//	  _ = c.SendMessage([]byte(strings.Join(os.Args[1:], " ")), 5*time.Second)
//	  os.Exit(0)
//	}
//
// Stats are kept in a go-metrics registry per coordinator.
package coordinator
