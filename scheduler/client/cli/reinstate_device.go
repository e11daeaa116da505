package cli

/**
implements the command line entry for the reinstate device command
*/

import (
	"fmt"
	"os/user"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
)

type reinstateDeviceCmd struct {
	requester string
}

func (c *reinstateDeviceCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "reinstate_device",
		Short: "ReinstateDevice",
	}
	r.Flags().StringVar(&c.requester, "requester", "", "Acting requester, defaults to the current OS user")
	return r
}

func (c *reinstateDeviceCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Infof("Reinstating farm device %s", args)

	if len(args) == 0 {
		return fmt.Errorf("A device id must be provided in order to reinstate")
	}

	id := args[0]
	requester := c.requester
	if requester == "" {
		u, err := user.Current()
		if err != nil {
			return err
		}
		requester = u.Username
	}

	if err := cl.FarmClient.ReinstateDevice(id, requester); err != nil {
		return returnError(err)
	}

	log.Infof("Device %s reinstated", id)
	fmt.Printf("device %s reinstated\n", id)

	return nil
}
