package cli

/**
implements the command line entry for the run command
*/

import (
	"encoding/json"
	"fmt"
	"os/user"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
	"github.com/testfarm/testfarm/scheduler/api"
)

type runCmd struct {
	requester   string
	displayName string
	kind        string
	devices     []string
	scenarios   []string
	repeat      int
	intervalMs  int64
	printAsJson bool
}

func (c *runCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "run",
		Short: "run scenarios on a set of devices",
	}
	r.Flags().StringVar(&c.requester, "requester", "", "Requester name, defaults to the current OS user")
	r.Flags().StringVar(&c.displayName, "display_name", "", "Display name for the run")
	r.Flags().StringVar(&c.kind, "kind", "test", "Run kind (test|suite)")
	r.Flags().StringSliceVar(&c.devices, "device", nil, "Device id to run on, repeatable")
	r.Flags().StringSliceVar(&c.scenarios, "scenario", nil, "Scenario id to run, repeatable")
	r.Flags().IntVar(&c.repeat, "repeat", 1, "How many times each device walks the scenario list")
	r.Flags().Int64Var(&c.intervalMs, "interval_ms", 0, "Pause between scenarios on a device, in milliseconds")
	r.Flags().BoolVar(&c.printAsJson, "json", false, "Print the admission reply as JSON")
	return r
}

func (c *runCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Info("Submitting run to the farm", args)

	requester := c.requester
	if requester == "" {
		u, err := user.Current()
		if err != nil {
			return err
		}
		requester = u.Username
	}

	reply, err := cl.FarmClient.SubmitRun(&api.RunRequestMsg{
		RequesterName:      requester,
		DisplayName:        c.displayName,
		Kind:               c.kind,
		ScenarioIds:        c.scenarios,
		DeviceIds:          c.devices,
		RepeatCount:        c.repeat,
		ScenarioIntervalMs: c.intervalMs,
	})

	if err != nil {
		return returnError(err)
	}

	if c.printAsJson {
		asJson, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("Error converting reply to JSON: %v", err.Error())
		}
		log.Infof("%s\n", asJson)
		fmt.Printf("%s\n", asJson) // must also go to stdout in case caller looking in stdout for the results
	} else {
		log.Info("Run submitted: ", reply.Status, " ", reply.EntryIds)
		fmt.Printf("%s: %s %v\n", reply.Status, reply.Message, reply.EntryIds)
	}

	return nil
}
