package cli

/**
implements the command line entry for the get status command
*/

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
	"github.com/testfarm/testfarm/scheduler/api"
)

type getStatusCmd struct {
	requester   string
	printAsJson bool
}

func (c *getStatusCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "get_status",
		Short: "GetStatus",
	}
	r.Flags().StringVar(&c.requester, "requester", "", "Viewing requester, whose busy devices show as busy_self")
	r.Flags().BoolVar(&c.printAsJson, "json", false, "Print out status as JSON")
	return r
}

func (c *getStatusCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Info("Checking status for the farm", args)

	status, err := cl.FarmClient.GetStatus(c.requester)

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
		printFarmStatus(status)
	}

	return nil
}

// printFarmStatus writes the snapshot to stdout in a line oriented form.
func printFarmStatus(status *api.FarmStatusMsg) {
	s := status.SchedulerStatus
	fmt.Printf("scheduler: paused=%t running=%d pending=%d maxRunning=%d\n",
		s.Paused, s.NumRunningEntries, s.NumPendingEntries, s.MaxRunningEntries)
	for _, d := range status.DeviceLockStatuses {
		line := fmt.Sprintf("device %s: %s", d.DeviceId, d.Status)
		if d.HeldBy != "" {
			line += " (held by " + d.HeldBy + ")"
		}
		if d.Offline {
			line += " [offline]"
		}
		fmt.Println(line)
	}
	for _, e := range status.RunningEntries {
		fmt.Printf("running %s: %s on %v\n", e.EntryId, e.RequesterName, e.DeviceIds)
	}
	for _, e := range status.PendingEntries {
		blocked := ""
		for i, b := range e.BlockedBy {
			if i > 0 {
				blocked += ", "
			}
			blocked += b.DeviceId
			if b.HeldBy != "" {
				blocked += " (held by " + b.HeldBy + ")"
			}
		}
		fmt.Printf("pending %s: %s waiting for %s\n", e.EntryId, e.RequesterName, blocked)
	}
	for _, rec := range status.CompletedEntries {
		fmt.Printf("done %s: %s %s after %dms\n", rec.EntryId, rec.RequesterName, rec.Status, rec.DurationMs)
	}
}
