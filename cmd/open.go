package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

var openCmd = &cobra.Command{
	Use:   "open <domofon-id>",
	Short: "Open the door of one intercom",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doOpen(cmd.Context(), ufanetapi.Identifier(args[0])); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags(credentialFlags...)
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func doOpen(ctx context.Context, id ufanetapi.Identifier) error {
	if ctx == nil {
		ctx = context.Background()
	}

	coord, err := newCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	if !coord.OpenDoor(ctx, id) {
		return errors.Errorf("door of domofon %s did not open", id)
	}

	fmt.Printf("door of domofon %s opened\n", id)
	return nil
}
