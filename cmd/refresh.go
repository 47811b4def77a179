package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/entities"
)

var _refreshCmdOpts struct {
	asJSON bool
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and print the entities",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRefresh(cmd.Context()); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags(credentialFlags...)
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&_refreshCmdOpts.asJSON, "json", false, "print the snapshot as JSON")
	errPanic(viper.GetViper().BindPFlag("refresh.json", refreshCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(refreshCmd)
}

func doRefresh(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	coord, err := newCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	if err := firstRefresh(ctx, coord); err != nil {
		return err
	}

	if viper.GetBool("refresh.json") {
		b, err := json.MarshalIndent(coord.Snapshot(), "", "    ")
		if err != nil {
			return err
		}

		fmt.Println(string(b))
		return nil
	}

	set := entities.NewSet(coord, nil)
	defer set.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "UNIQUE ID\tKIND\tNAME\tVALUE\tAVAILABLE")
	for _, st := range set.States() {
		value := "-"
		if st.Value != nil {
			value = fmt.Sprintf("%v", st.Value)
			if st.Unit != "" {
				value += " " + st.Unit
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", st.UniqueID, st.Kind, st.Name, value, st.Available)
	}

	return w.Flush()
}
