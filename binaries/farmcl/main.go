package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/log/hooks"
	"github.com/testfarm/testfarm/scheduler/client/cli"
)

// CLI binary to talk to the farm scheduler API
//	Supported commands: (see "-h" for all options)
//		run --device [id] --scenario [id]
//		get_status
//		watch_run [entry id]
//		cancel_run [entry id]
//		offline_device [device id]
//		reinstate_device [device id]
//		get_scheduler_status
//		set_scheduler_status [--pause|--resume] [--max_running n]
//	Global flags:
//		--addr [<host:port> of the farm scheduler]
// 		--log_level [<error|info|debug> level and above should be logged]

func main() {
	log.AddHook(hooks.NewContextHook())

	cl, err := cli.NewSimpleCLIClient()
	if err != nil {
		log.Fatal("Failed to create new farm CLI client: ", err)
	}

	err = cl.Exec()
	if err != nil {
		log.Fatal("Error running farmcl ", err)
	}
}
