package cli

/**
implements the command line entry for the offline device command
*/

import (
	"fmt"
	"os/user"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testfarm/testfarm/common/client"
)

type offlineDeviceCmd struct {
	requester string
}

func (c *offlineDeviceCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "offline_device",
		Short: "OfflineDevice",
	}
	r.Flags().StringVar(&c.requester, "requester", "", "Acting requester, defaults to the current OS user")
	return r
}

func (c *offlineDeviceCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {

	log.Infof("Offlining farm device %s", args)

	if len(args) == 0 {
		return fmt.Errorf("A device id must be provided in order to offline")
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

	if err := cl.FarmClient.OfflineDevice(id, requester); err != nil {
		return returnError(err)
	}

	log.Infof("Device %s offlined", id)
	fmt.Printf("device %s offlined\n", id)

	return nil
}
