package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/solo/cmd/util"
	"github.com/ValentinKolb/solo/lib/coordinator"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("cmd")

var (
	// RunCmd runs an instance of the application
	RunCmd = &cobra.Command{
		Use:   "run [message]",
		Short: "Run an instance: become the primary or hand the message to it",
		Long: `Run an instance of the application. The first instance claims the endpoint and becomes
the primary, it prints every message of a secondary as one JSON line to stdout until it
receives SIGINT or SIGTERM. Every later instance becomes a secondary, announces itself with
the optional message and exits. The exit code is non zero if the primary did not
acknowledge the announcement.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: processRunConfig,
		RunE:    run,
	}
	metricsEndpoint = ""
)

func init() {
	key := "metrics-endpoint"
	RunCmd.Flags().String(key, "", util.WrapString("Address on which the primary serves Prometheus metrics (e.g. localhost:9100), disabled if empty"))
}

// Event is one line of the primary's output
type Event struct {
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	InstanceID uint16    `json:"instance_id"`
	Content    string    `json:"content"`
}

func processRunConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	metricsEndpoint = viper.GetString("metrics-endpoint")
	return nil
}

func run(_ *cobra.Command, args []string) error {
	message := ""
	if len(args) > 0 {
		message = args[0]
	}

	config := util.GetInstanceConfig()
	c := coordinator.NewWithTransport(config, util.GetTransport())
	defer c.Close()

	// handlers must be in place before the role is decided
	out := json.NewEncoder(os.Stdout)
	c.OnNewInstance(printer(out, "new_instance"))
	c.OnMessage(printer(out, "message"))

	role, err := c.ClaimOrJoin("", config.Timeout)
	if err != nil {
		return err
	}

	switch role {
	case coordinator.RolePrimary:
		if message != "" {
			Logger.Infof("Ignoring message of the primary: %q", message)
		}
		return servePrimary(c)
	case coordinator.RoleSecondary:
		if err := c.AnnounceSecondary([]byte(message), config.Timeout); err != nil {
			return fmt.Errorf("primary did not acknowledge: %w", err)
		}
		Logger.Infof("Primary acknowledged instance %d", c.InstanceID())
		return nil
	default:
		return fmt.Errorf("unexpected role %s", role)
	}
}

// servePrimary blocks until the process is signalled or the endpoint is lost
func servePrimary(c *coordinator.Coordinator) error {
	fmt.Fprintf(os.Stderr, "primary on %s (pid %d)\n", c.Address(), os.Getpid())

	if metricsEndpoint != "" {
		go serveMetrics(metricsEndpoint)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			Logger.Infof("Received %s, shutting down", sig)
			return printStats(c)
		case err := <-c.Errors():
			if errors.Is(err, common.ErrEndpointRemoved) {
				return fmt.Errorf("lost endpoint %s: %w", c.Endpoint(), err)
			}
			Logger.Warningf("Primary error: %v", err)
		}
	}
}

// serveMetrics exposes the process wide VictoriaMetrics counters in Prometheus format
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	Logger.Infof("Serving metrics on http://%s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		Logger.Errorf("Metrics endpoint failed: %v", err)
	}
}

func printer(out *json.Encoder, eventType string) coordinator.MessageHandler {
	return func(instanceID uint16, content []byte) {
		err := out.Encode(Event{
			Time:       time.Now(),
			Type:       eventType,
			InstanceID: instanceID,
			Content:    string(content),
		})
		if err != nil {
			Logger.Errorf("Failed to print %s of instance %d: %v", eventType, instanceID, err)
		}
	}
}

func printStats(c *coordinator.Coordinator) error {
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Stats())
}
