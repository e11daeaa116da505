package cli

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	commoncli "github.com/testfarm/testfarm/common/client"
	"github.com/testfarm/testfarm/scheduler/client"
)

// FarmCLIClient includes fields required for CLI client handling
type FarmCLIClient struct {
	commoncli.SimpleClient
}

// returnError extends the error with Invalid Request, farm server error, or a
// connection failure message
func returnError(err error) error {
	if reply, ok := err.(*client.ReplyError); ok {
		switch reply.StatusCode {
		case http.StatusBadRequest, http.StatusForbidden:
			return fmt.Errorf("Invalid Request: %v", reply.Message)
		default:
			return fmt.Errorf("Farm server error: %v", reply.Message)
		}
	}
	return fmt.Errorf("Error talking to the farm: %v", err.Error())
}

func (c *FarmCLIClient) Exec() error {
	return c.RootCmd.Execute()
}

func NewSimpleCLIClient() (commoncli.CLIClient, error) {
	c := &FarmCLIClient{}

	c.RootCmd = &cobra.Command{
		Use:               "farmcl",
		Short:             "farmcl is a command-line client to the test farm",
		PersistentPreRunE: c.Init,
		Run:               func(*cobra.Command, []string) {},
	}
	sched, _, _ := client.GetFarmAddr() // ignore err & ops addr
	c.RootCmd.PersistentFlags().StringVar(&c.Addr, "addr", sched, "Farm scheduler address. If unset, uses default value of first line of $HOME/.testfarmaddr$TESTFARM_ID")
	c.RootCmd.PersistentFlags().StringVar(&c.LogLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")

	c.addCmd(&runCmd{})
	c.addCmd(&getStatusCmd{})
	c.addCmd(&watchRunCmd{})
	c.addCmd(&cancelRunCmd{})
	c.addCmd(&offlineDeviceCmd{})
	c.addCmd(&reinstateDeviceCmd{})
	c.addCmd(&setSchedulerStatusCmd{})
	c.addCmd(&getSchedulerStatusCmd{})

	return c, nil
}

// Can only be called from cobra command run or hook
func (c *FarmCLIClient) Init(cmd *cobra.Command, args []string) error {
	if c.Addr == "" {
		var err error
		c.Addr, _, err = client.GetFarmAddr()
		if err != nil {
			return fmt.Errorf("farmcl addr unset and no value in %s", client.GetFarmAddrPath())
		}
		if c.Addr == "" {
			c.Addr = client.DefaultSched_HTTP
		}
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Error(err)
		return err
	}
	log.SetLevel(level)

	c.FarmClient = client.NewFarmClient(client.FarmClientConfig{Addr: c.Addr})

	return nil
}

func (c *FarmCLIClient) addCmd(cmd commoncli.Cmd) {
	cobraCmd := cmd.RegisterFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.Run(&c.SimpleClient, innerCmd, args)
	}
	c.RootCmd.AddCommand(cobraCmd)
}
