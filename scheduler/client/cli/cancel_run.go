package cli

/**
implements the command line entry for the cancel run command
*/

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
)

type cancelRunCmd struct {
}

func (c *cancelRunCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "cancel_run",
		Short: "CancelRun",
	}
	return r
}

func (c *cancelRunCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Info("Cancelling run ", args)

	if len(args) == 0 {
		return errors.New("a run entry id must be provided")
	}

	entryId := args[0]

	if err := cl.FarmClient.CancelRun(entryId); err != nil {
		return returnError(err)
	}

	log.Infof("Run %s cancel requested", entryId)
	fmt.Printf("cancel requested for %s; running devices finish their in-flight scenario first\n", entryId)

	return nil
}
