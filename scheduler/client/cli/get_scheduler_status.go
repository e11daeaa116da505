package cli

/**
implements the command line entry for the get scheduler status command
*/

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
)

type getSchedulerStatusCmd struct {
	printAsJson bool
}

func (c *getSchedulerStatusCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "get_scheduler_status",
		Short: "GetSchedulerStatus",
	}
	r.Flags().BoolVar(&c.printAsJson, "json", false, "Print out status as JSON")
	return r
}

func (c *getSchedulerStatusCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Info("Checking status for scheduler", args)

	status, err := cl.FarmClient.GetSchedulerStatus()

	if err != nil {
		return returnError(err)
	}

	if c.printAsJson {
		asJson, err := json.Marshal(status)
		if err != nil {
			return fmt.Errorf("Error converting status to JSON: %v", err.Error())
		}
		log.Infof("%s\n", asJson)
		fmt.Printf("%s\n", asJson) // must also go to stdout in case caller looking in stdout for the results
	} else {
		log.Info("Scheduler Status:", status)
		fmt.Printf("paused=%t maxRunning=%d running=%d pending=%d\n",
			status.Paused, status.MaxRunningEntries, status.NumRunningEntries, status.NumPendingEntries)
	}

	return nil
}
