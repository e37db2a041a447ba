package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relab/solid/internal/config"
	"github.com/relab/solid/internal/demo"
	"github.com/relab/solid/internal/profiling"
	"github.com/relab/solid/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a network of validators in this process.",
	Long: `Starts the given number of validators with fresh keys. The validators agree on a counter
and exchange manifests and accepts in memory. The command stops after the given duration,
or when interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return runNetwork(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("replicas", 4, "number of validators to run")
	runCmd.Flags().Duration("duration", 10*time.Second, "how long to run; zero runs until interrupted")
	runCmd.Flags().String("metrics-addr", "", "address to serve prometheus metrics on, such as :9090")

	runCmd.Flags().String("cpu-profile", "", "path to store a CPU profile")
	runCmd.Flags().String("mem-profile", "", "path to store a memory profile")
	runCmd.Flags().String("trace", "", "path to store a trace")
	runCmd.Flags().String("fgprof-profile", "", "path to store a fgprof profile")

	config.RegisterFlags(runCmd.Flags())
}

func runNetwork(ctx context.Context) (err error) {
	logger := logging.New("cli")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	stopProfilers, err := profiling.StartProfilers(
		viper.GetString("cpu-profile"),
		viper.GetString("mem-profile"),
		viper.GetString("trace"),
		viper.GetString("fgprof-profile"),
	)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, stopProfilers()) }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if d := viper.GetDuration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	registry := prometheus.NewRegistry()
	nw, err := demo.NewNetwork(viper.GetInt("replicas"), cfg, demo.WithRegisterer(registry))
	if err != nil {
		return err
	}

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer func() { err = multierr.Append(err, srv.Close()) }()
	}

	logger.Infof("running %d validators", len(nw.Nodes()))
	if err := nw.Run(ctx); err != nil {
		return err
	}
	for i, node := range nw.Nodes() {
		r := node.Replica()
		logger.Infof("validator %d (%s): height %d, counter %d", i, node.ID(), r.Height(), demo.DecodeCounter(r.LastConfirmed().State))
	}
	return nil
}
