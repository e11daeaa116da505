package cli

/**
implements the command line entry for the watch run command
*/

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
	"github.com/testfarm/testfarm/scheduler/api"
	"github.com/testfarm/testfarm/scheduler/domain"
)

type watchRunCmd struct {
	quiet bool
}

func (c *watchRunCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "watch_run",
		Short: "WatchRun",
	}
	r.Flags().BoolVar(&c.quiet, "quiet", false, "Only print the completion record, not the live events")
	return r
}

func (c *watchRunCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Println("Watching run:", args)

	if len(args) == 0 {
		return errors.New("a run entry id must be provided")
	}

	entryId := args[0]

	onEvent := PrintRunEvent
	if c.quiet {
		onEvent = nil
	}
	record, err := cl.FarmClient.WatchRun(entryId, onEvent)
	if err != nil {
		return returnError(err)
	}

	asJson, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("Error converting record to JSON: %v", err.Error())
	}
	fmt.Printf("%s\n", asJson)

	return nil
}

// PrintRunEvent writes one stream event to stdout in a line oriented form.
func PrintRunEvent(ev *api.EventMsg) {
	switch domain.EventType(ev.Type) {
	case domain.EventDeviceStarted:
		fmt.Printf("%s: started\n", ev.DeviceId)
	case domain.EventScenarioStarted:
		fmt.Printf("%s: scenario %s attempt %d started\n", ev.DeviceId, ev.ScenarioId, ev.Attempt)
	case domain.EventScenarioCompleted:
		outcome := "passed"
		if ev.Passed != nil && !*ev.Passed {
			outcome = "failed"
		}
		fmt.Printf("%s: scenario %s attempt %d %s\n", ev.DeviceId, ev.ScenarioId, ev.Attempt, outcome)
	case domain.EventStepFailed:
		fmt.Printf("%s: step %q failed: %s\n", ev.DeviceId, ev.Step, ev.Detail)
	case domain.EventDeviceCompleted:
		fmt.Printf("%s: done (%s)\n", ev.DeviceId, ev.DeviceStatus)
	case domain.EventRunProgress:
		if ev.Progress != nil {
			fmt.Printf("progress: %.0f%% (%d of %d scenarios)\n",
				ev.Progress.Percent, ev.Progress.Completed+ev.Progress.Failed, ev.Progress.Total)
		}
	case domain.EventRunStopping:
		fmt.Println("run is stopping, letting in-flight scenarios finish")
	case domain.EventRunCompleted:
		fmt.Println("run completed")
	}
}
