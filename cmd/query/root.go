package query

import (
	"fmt"
	"github.com/ValentinKolb/solo/cmd/util"
	"github.com/ValentinKolb/solo/lib/identity"
	"github.com/ValentinKolb/solo/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.RPCInstanceClient

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:               "query",
		Short:             "Query information about the running primary",
		PersistentPreRunE: setupQueryClient,
	}
	pidCmd = &cobra.Command{
		Use:   "pid",
		Short: "Prints the process id of the primary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcClient.Close()
			pid, err := rpcClient.PrimaryPid(0)
			if err != nil {
				return err
			}
			fmt.Println(pid)
			return nil
		},
	}
	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Prints the user name the primary runs as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer rpcClient.Close()
			user, err := rpcClient.PrimaryUser(0)
			if err != nil {
				return err
			}
			fmt.Println(user)
			return nil
		},
	}
)

func init() {
	QueryCommands.AddCommand(pidCmd)
	QueryCommands.AddCommand(userCmd)
}

// setupQueryClient initializes the client of the primary
func setupQueryClient(cmd *cobra.Command, args []string) error {
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
