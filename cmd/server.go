package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/entities"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/handlers"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/history"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/mqttbus"
	"github.com/jake-scott/ufanet-bridge/pkg/middlewares"
)

var _serverCmdOpts struct {
	httpPort        uint16
	tlsCertPath     string
	tlsKeyPath      string
	gracefulTimeout time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	corsOrigins     []string
	logRequests     bool
	mqttBroker      string
	mqttClientID    string
	mqttUsername    string
	mqttPassword    string
	mqttTopicPrefix string
	historyDatabase string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the bridge: refresh on a schedule and serve the host API",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doServer(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRequiredFlags(credentialFlags...); err != nil {
			return err
		}

		// TLS needs both halves
		if (viper.GetString("http.tls-cert") == "") != (viper.GetString("http.tls-key") == "") {
			return checkRequiredFlags("http.tls-cert", "http.tls-key")
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().Uint16Var(&_serverCmdOpts.httpPort, "http-port", 8080, "HTTP port number")
	serverCmd.Flags().StringVar(&_serverCmdOpts.tlsCertPath, "tls-cert", "", "TLS certificate file, serves plain HTTP if unset")
	serverCmd.Flags().StringVar(&_serverCmdOpts.tlsKeyPath, "tls-key", "", "TLS key file")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.gracefulTimeout, "graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.readTimeout, "read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.writeTimeout, "write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	serverCmd.Flags().StringSliceVar(&_serverCmdOpts.corsOrigins, "cors-origins", nil, "origins allowed to call the API from a browser")
	serverCmd.Flags().BoolVar(&_serverCmdOpts.logRequests, "log-requests", false, "log requests and responses (only in debug mode)")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttBroker, "mqtt-broker", "", "MQTT broker URL for events and states, eg. tcp://localhost:1883")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttClientID, "mqtt-client-id", "", "MQTT client ID")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttUsername, "mqtt-username", "", "MQTT user name")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttPassword, "mqtt-password", "", "MQTT password")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttTopicPrefix, "mqtt-topic-prefix", mqttbus.DefaultTopicPrefix, "MQTT topic prefix")
	serverCmd.Flags().StringVar(&_serverCmdOpts.historyDatabase, "history-db", "", "sqlite file to record door openings in")

	errPanic(viper.GetViper().BindPFlag("http.port", serverCmd.Flags().Lookup("http-port")))
	errPanic(viper.GetViper().BindPFlag("http.tls-cert", serverCmd.Flags().Lookup("tls-cert")))
	errPanic(viper.GetViper().BindPFlag("http.tls-key", serverCmd.Flags().Lookup("tls-key")))
	errPanic(viper.GetViper().BindPFlag("http.graceful-timeout", serverCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.read-timeout", serverCmd.Flags().Lookup("read-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.write-timeout", serverCmd.Flags().Lookup("write-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.cors-origins", serverCmd.Flags().Lookup("cors-origins")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", serverCmd.Flags().Lookup("log-requests")))
	errPanic(viper.GetViper().BindPFlag("mqtt.broker", serverCmd.Flags().Lookup("mqtt-broker")))
	errPanic(viper.GetViper().BindPFlag("mqtt.client-id", serverCmd.Flags().Lookup("mqtt-client-id")))
	errPanic(viper.GetViper().BindPFlag("mqtt.username", serverCmd.Flags().Lookup("mqtt-username")))
	errPanic(viper.GetViper().BindPFlag("mqtt.password", serverCmd.Flags().Lookup("mqtt-password")))
	errPanic(viper.GetViper().BindPFlag("mqtt.topic-prefix", serverCmd.Flags().Lookup("mqtt-topic-prefix")))
	errPanic(viper.GetViper().BindPFlag("history.database", serverCmd.Flags().Lookup("history-db")))

	rootCmd.AddCommand(serverCmd)
}

func doServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, err := newCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	coord.WithRegisterer(reg)
	middlewares.RegisterMetrics(reg)

	// the host surface only comes up on live data
	if err := firstRefresh(ctx, coord); err != nil {
		return err
	}

	bus := events.NewBus()

	var hist *history.Store
	if f := viper.GetString("history.database"); f != "" {
		hist, err = openHistory(ctx, f)
		if err != nil {
			return err
		}
		defer hist.Close()
		bus.Attach(hist)
	}

	set := entities.NewSet(coord, bus)
	defer set.Close()

	if broker := viper.GetString("mqtt.broker"); broker != "" {
		pub, err := mqttbus.Connect(mqttbus.Options{
			Broker:      broker,
			ClientID:    viper.GetString("mqtt.client-id"),
			Username:    viper.GetString("mqtt.username"),
			Password:    viper.GetString("mqtt.password"),
			TopicPrefix: viper.GetString("mqtt.topic-prefix"),
		})
		if err != nil {
			return err
		}
		defer pub.Close()

		bus.Attach(pub)
		unwatch := set.Watch(pub.PublishStates)
		defer unwatch()
		pub.PublishStates(set.States())
	}

	bh := handlers.NewBridgeHandler(coord, set)
	if hist != nil {
		bh.WithHistory(hist)
	}

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", viper.GetUint("http.port")),
		ReadTimeout:  viper.GetDuration("http.read-timeout"),
		WriteTimeout: viper.GetDuration("http.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(bh, reg),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coord.Run(gctx)
	})

	g.Go(func() error {
		certFile := viper.GetString("http.tls-cert")
		keyFile := viper.GetString("http.tls-key")

		var err error
		if certFile != "" {
			logging.Logger(nil).Infof("Serving HTTPS on %s", s.Addr)
			err = s.ListenAndServeTLS(certFile, keyFile)
		} else {
			logging.Logger(nil).Infof("Serving HTTP on %s", s.Addr)
			err = s.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "running server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("http.graceful-timeout"))
		defer cancel()

		logging.Logger(nil).Info("shutting down")
		if err := s.Shutdown(sctx); err != nil {
			logging.Logger(nil).WithError(err).Errorf("shutting down")
		}
		return nil
	})

	err = g.Wait()
	logging.Logger(nil).Info("exiting")
	return err
}

func openHistory(ctx context.Context, f string) (*history.Store, error) {
	path, err := homedir.Expand(f)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding history database name %s", f)
	}

	hist, err := history.Open(path)
	if err != nil {
		return nil, err
	}

	if err := hist.InitSchema(ctx); err != nil {
		hist.Close()
		return nil, err
	}

	logging.Logger(ctx).Infof("recording door openings in %s", path)
	return hist, nil
}

func newRouter(bh *handlers.BridgeHandler, reg *prometheus.Registry) http.Handler {
	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	r := mux.NewRouter()
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	r.Use(middlewares.NewCorrelationMw(middlewares.DefaultCorrelationHeader))
	r.Use(middlewares.NewMetricsMw())

	bh.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// preflight requests match no route, so CORS wraps the router
	if origins := viper.GetStringSlice("http.cors-origins"); len(origins) > 0 {
		return middlewares.NewCorsMw(middlewares.CorsOptions(origins))(r)
	}
	return r
}
