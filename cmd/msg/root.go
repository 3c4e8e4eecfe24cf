package msg

import (
	"fmt"
	"github.com/ValentinKolb/solo/cmd/util"
	"github.com/ValentinKolb/solo/lib/identity"
	"github.com/ValentinKolb/solo/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.RPCInstanceClient

	// MessageCommands represents the message command group
	MessageCommands = &cobra.Command{
		Use:               "msg",
		Short:             "Send messages to a running primary",
		PersistentPreRunE: setupMessageClient,
	}
	sendCmd = &cobra.Command{
		Use:   "send [message]",
		Short: "Sends a message to the primary and waits for the acknowledge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcClient.Close()
			if err := rpcClient.SendMessage([]byte(args[0]), 0); err != nil {
				return err
			}
			fmt.Println("acknowledged")
			return nil
		},
	}
	announceCmd = &cobra.Command{
		Use:   "announce [message]",
		Short: "Announces a new instance to the primary and waits for the acknowledge",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcClient.Close()
			content := ""
			if len(args) > 0 {
				content = args[0]
			}
			if err := rpcClient.Announce([]byte(content), 0); err != nil {
				return err
			}
			fmt.Printf("acknowledged instance %d\n", rpcClient.InstanceID())
			return nil
		},
	}
)

func init() {
	// Add subcommands
	MessageCommands.AddCommand(sendCmd)
	MessageCommands.AddCommand(announceCmd)
	MessageCommands.AddCommand(perfTestCmd)
}

// setupMessageClient initializes the client of the primary
func setupMessageClient(cmd *cobra.Command, args []string) error {
	if err := util.Setup(cmd, args); err != nil {
		return err
	}

	rpcClient = client.NewRPCInstanceClient(
		util.GetInstanceConfig(),
		util.GetTransport(),
		identity.NewInstanceID(),
	)
	return nil
}
