package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

var _rootCmdOpts struct {
	cfgFile    string
	debug      bool
	contract   string
	password   string
	baseURL    string
	apiTimeout time.Duration
	interval   time.Duration
	tokenFile  string
}

var rootCmd = &cobra.Command{
	Use:   "ufanet-bridge",
	Short: "Bridge Ufanet intercoms, cameras and account balances to a home automation host",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the command selected on the command line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&_rootCmdOpts.cfgFile, "config", "", "config file (default is $HOME/.ufanet-bridge.yaml)")
	flags.BoolVar(&_rootCmdOpts.debug, "debug", false, "log at debug level")
	flags.StringVar(&_rootCmdOpts.contract, "contract", "", "Ufanet contract number")
	flags.StringVar(&_rootCmdOpts.password, "password", "", "Ufanet account password")
	flags.StringVar(&_rootCmdOpts.baseURL, "base-url", ufanetapi.DefaultBaseURL, "Ufanet API base URL")
	flags.DurationVar(&_rootCmdOpts.apiTimeout, "api-timeout", time.Second*15, "maximum duration of a Ufanet API call, eg. 1m or 10s")
	flags.DurationVar(&_rootCmdOpts.interval, "poll-interval", coordinator.DefaultInterval, "time between scheduled refreshes, eg. 30m or 1h")
	flags.StringVar(&_rootCmdOpts.tokenFile, "token-file", "", "file to cache the Ufanet session token in")

	errPanic(viper.GetViper().BindPFlag("ufanet.contract", flags.Lookup("contract")))
	errPanic(viper.GetViper().BindPFlag("ufanet.password", flags.Lookup("password")))
	errPanic(viper.GetViper().BindPFlag("ufanet.base-url", flags.Lookup("base-url")))
	errPanic(viper.GetViper().BindPFlag("ufanet.api-timeout", flags.Lookup("api-timeout")))
	errPanic(viper.GetViper().BindPFlag("ufanet.poll-interval", flags.Lookup("poll-interval")))
	errPanic(viper.GetViper().BindPFlag("ufanet.token-file", flags.Lookup("token-file")))
}

func initConfig() {
	if _rootCmdOpts.debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if _rootCmdOpts.cfgFile != "" {
		viper.SetConfigFile(_rootCmdOpts.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			logging.Logger(nil).WithError(err).Fatal("finding home directory")
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".ufanet-bridge")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("UFANET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("using config file %s", viper.ConfigFileUsed())
	} else if _rootCmdOpts.cfgFile != "" {
		logging.Logger(nil).WithError(err).Fatalf("reading config file %s", _rootCmdOpts.cfgFile)
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) || viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}
