package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/endpoints"
	"github.com/testfarm/testfarm/common/log/hooks"
	"github.com/testfarm/testfarm/scheduler/client"
	"github.com/testfarm/testfarm/scheduler/config"
	"github.com/testfarm/testfarm/scheduler/starter"
)

func main() {
	log.AddHook(hooks.NewContextHook())

	// Set Flags Needed by this Server
	apiAddr := flag.String("addr", client.DefaultSched_HTTP, "Bind address for api server")
	opsAddr := flag.String("ops_addr", client.DefaultOps_HTTP, "Bind address for ops http server")
	configFlag := flag.String("config", "local.memory", "Scheduler config (either an embedded config name like local.memory or JSON text)")
	logLevelFlag := flag.String("log_level", "info", "Log everything at this level and above (error|info|debug)")
	flag.Parse()

	level, err := log.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Error(err)
		return
	}
	log.SetLevel(level)

	configs, err := config.GetSchedulerConfigs(*configFlag)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("scheduler configs: %s", configs)

	schedulerConfig, err := configs.Scheduler.CreateSchedulerConfig()
	if err != nil {
		log.Fatal(err)
	}

	stat := starter.GetStatsReceiver()
	ops := endpoints.NewOpsServer(*opsAddr, stat)

	log.Info("Starting Farm Scheduler & API Server on ", *apiAddr)
	err = starter.StartServer(
		*schedulerConfig,
		configs.Devices,
		configs.RunLog,
		configs.Catalog,
		configs.Reports,
		configs.Sessions,
		*apiAddr,
		&stat,
		ops)
	if err != nil {
		log.Fatal("Error starting scheduler: ", err)
	}
}
