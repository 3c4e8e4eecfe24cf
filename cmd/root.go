package cmd

import (
	"fmt"
	"github.com/ValentinKolb/solo/cmd/msg"
	"github.com/ValentinKolb/solo/cmd/query"
	"github.com/ValentinKolb/solo/cmd/run"
	"github.com/ValentinKolb/solo/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "solo",
		Short: "single instance coordination for local applications",
		Long: fmt.Sprintf(`solo (v%s)

Elects one primary instance per application over a local socket. Every further
instance becomes a secondary that hands its message to the primary and exits.`, Version),
		PersistentPreRunE: util.Setup,
		SilenceUsage:      true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of solo",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("solo v%s\n", Version)
		},
	}
	endpointCmd = &cobra.Command{
		Use:   "endpoint",
		Short: "Print the endpoint name and socket path of the application",
		Run: func(cmd *cobra.Command, args []string) {
			endpoint := util.GetEndpoint()
			fmt.Printf("endpoint: %s\n", endpoint)
			fmt.Printf("address:  %s\n", util.GetTransport().Address(endpoint))
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(run.RunCmd)
	RootCmd.AddCommand(msg.MessageCommands)
	RootCmd.AddCommand(query.QueryCommands)
	RootCmd.AddCommand(endpointCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupInstanceFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
