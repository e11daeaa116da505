package cli

/**
implements the command line entry for the set scheduler status command
*/

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
)

type setSchedulerStatusCmd struct {
	pause      bool
	resume     bool
	maxRunning int
}

func (c *setSchedulerStatusCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "set_scheduler_status",
		Short: "SetSchedulerStatus",
	}
	r.Flags().BoolVar(&c.pause, "pause", false, "Stop admitting new runs; queued and running entries keep draining")
	r.Flags().BoolVar(&c.resume, "resume", false, "Resume admitting new runs")
	r.Flags().IntVar(&c.maxRunning, "max_running", 0, "Cap on concurrently running entries, 0 means unlimited")
	return r
}

func (c *setSchedulerStatusCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Info("Setting the scheduler admission controls. A paused scheduler rejects"+
		" new submissions but keeps draining entries it already admitted.", args)

	if c.pause && c.resume {
		return fmt.Errorf("at most one of --pause and --resume may be set")
	}

	// current controls carry over unless explicitly changed
	status, err := cl.FarmClient.GetSchedulerStatus()
	if err != nil {
		return returnError(err)
	}
	paused := status.Paused
	if c.pause {
		paused = true
	}
	if c.resume {
		paused = false
	}
	maxRunning := status.MaxRunningEntries
	if cmd.Flags().Changed("max_running") {
		maxRunning = c.maxRunning
	}

	if err := cl.FarmClient.SetSchedulerStatus(paused, maxRunning); err != nil {
		return returnError(err)
	}

	fmt.Printf("scheduler controls set: paused=%t maxRunning=%d\n", paused, maxRunning)

	return nil
}
