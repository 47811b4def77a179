package cmd

import (
	"context"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/session"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

var credentialFlags = []string{"ufanet.contract", "ufanet.password"}

// newCoordinator wires the vendor client, the session and the coordinator
// from the configuration.  Empty credentials are rejected here, before any
// network call.
func newCoordinator() (*coordinator.Coordinator, error) {
	creds := ufanetapi.Credentials{
		Contract: viper.GetString("ufanet.contract"),
		Password: viper.GetString("ufanet.password"),
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	api := ufanetapi.NewLiveClient(viper.GetString("ufanet.base-url")).
		WithTimeout(viper.GetDuration("ufanet.api-timeout"))

	sess := session.NewManager(api, creds)
	if f := viper.GetString("ufanet.token-file"); f != "" {
		path, err := homedir.Expand(f)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding token file name %s", f)
		}
		sess = sess.WithTokenFile(path)
	}

	logging.Logger(nil).Debugf("session: %s", sess)

	return coordinator.New(api, sess).WithInterval(viper.GetDuration("ufanet.poll-interval")), nil
}

// firstRefresh runs the startup cycle, telling a credentials problem apart
// from everything else
func firstRefresh(ctx context.Context, coord *coordinator.Coordinator) error {
	err := coord.FirstRefresh(ctx)
	if err == nil {
		return nil
	}

	if coordinator.IsAuthFailure(err) {
		logging.Logger(ctx).WithError(err).Error("Ufanet rejected the credentials")
		return errors.Wrap(err, "re-authenticate: check the Ufanet contract and password")
	}

	return errors.Wrap(err, "initial refresh failed")
}
