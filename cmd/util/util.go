package util

import (
	"github.com/ValentinKolb/solo/lib/identity"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/ValentinKolb/solo/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupInstanceFlags adds the identity and connection flags shared by all commands
func SetupInstanceFlags(cmd *cobra.Command) {
	key := "app"
	cmd.PersistentFlags().String(key, "solo", WrapString("Name of the application the instance belongs to"))

	key = "org"
	cmd.PersistentFlags().String(key, "", WrapString("Organization of the application"))

	key = "domain"
	cmd.PersistentFlags().String(key, "", WrapString("Domain of the organization"))

	key = "app-version"
	cmd.PersistentFlags().String(key, "", WrapString("Version of the application, ignored with --exclude-version"))

	key = "app-data"
	cmd.PersistentFlags().StringSlice(key, nil, WrapString("Additional data taking part in the endpoint name (comma separated)"))

	key = "user-scope"
	cmd.PersistentFlags().Bool(key, true, WrapString("Allow one primary per user (false: one primary per machine)"))

	key = "exclude-version"
	cmd.PersistentFlags().Bool(key, false, WrapString("Instances of different application versions share the endpoint"))

	key = "exclude-path"
	cmd.PersistentFlags().Bool(key, false, WrapString("Instances started from different executable paths share the endpoint"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Use this endpoint name (or socket path) instead of deriving it from the identity flags"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultHandshakeTimeout, WrapString("Timeout of the election and the handshake with the primary"))

	key = "query-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultQueryTimeout, WrapString("Timeout of queries to the primary (pid, user)"))

	key = "poll-interval"
	cmd.PersistentFlags().Duration(key, common.DefaultPollInterval, WrapString("Accept poll interval of the primary, bounds the shutdown latency"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("solo")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// Setup binds the flags of cmd and initializes the loggers, it is used as PersistentPreRunE
func Setup(cmd *cobra.Command, _ []string) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// GetIdentityOptions reads the identity of the application from viper
func GetIdentityOptions() identity.Options {
	var mode identity.Mode
	if viper.GetBool("user-scope") {
		mode |= identity.ModeUser
	} else {
		mode |= identity.ModeSystem
	}
	if viper.GetBool("exclude-version") {
		mode |= identity.ModeExcludeAppVersion
	}
	if viper.GetBool("exclude-path") {
		mode |= identity.ModeExcludeAppPath
	}

	return identity.Options{
		AppName:      viper.GetString("app"),
		Organization: viper.GetString("org"),
		Domain:       viper.GetString("domain"),
		Version:      viper.GetString("app-version"),
		AppData:      viper.GetStringSlice("app-data"),
		Mode:         mode,
	}
}

// GetEndpoint returns the --endpoint override or the name derived from the identity flags
func GetEndpoint() string {
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		return endpoint
	}
	return identity.EndpointName(GetIdentityOptions())
}

// GetInstanceConfig reads the instance configuration from viper
func GetInstanceConfig() common.InstanceConfig {
	conf := common.DefaultInstanceConfig(GetEndpoint())
	conf.Timeout = viper.GetDuration("timeout")
	conf.QueryTimeout = viper.GetDuration("query-timeout")
	conf.PollInterval = viper.GetDuration("poll-interval")
	conf.LogLevel = viper.GetString("log-level")
	return conf.WithDefaults()
}

// GetTransport creates the local transport of this OS family
func GetTransport() transport.ITransport {
	return unix.NewUnixTransport()
}

