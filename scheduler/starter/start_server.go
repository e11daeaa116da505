package starter

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/endpoints"
	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/scheduler/api"
	"github.com/testfarm/testfarm/scheduler/config"
	"github.com/testfarm/testfarm/scheduler/server"
)

type servers struct {
	api *http.Server
	ops *endpoints.OpsServer
}

func makeServers(api *http.Server, ops *endpoints.OpsServer) servers {
	return servers{api, ops}
}

// StartServer construct and start scheduler service
func StartServer(schedulerConfig server.SchedulerConfiguration,
	devicesConfig config.DevicesJSONConfig,
	runLogConfig config.RunLogJSONConfig,
	catalogConfig config.CatalogJSONConfig,
	reportsConfig config.ReportsJSONConfig,
	sessionsConfig config.SessionsJSONConfig,
	apiAddr string,
	statsReceiver *stats.StatsReceiver,
	ops *endpoints.OpsServer) error {

	pool, err := MakeDevicePool(devicesConfig)
	if err != nil {
		return err
	}

	rlog, err := MakeRunLog(runLogConfig)
	if err != nil {
		return err
	}

	catalog, err := MakeCatalog(catalogConfig, *statsReceiver)
	if err != nil {
		return err
	}

	publisher, err := MakePublisher(reportsConfig)
	if err != nil {
		return err
	}

	dialer, err := MakeDialer(sessionsConfig)
	if err != nil {
		return err
	}

	statefulScheduler := server.NewStatefulScheduler(pool.Updates(), rlog, dialer, catalog, publisher, schedulerConfig, *statsReceiver)

	apiHandler := api.NewHandler(statefulScheduler, *statsReceiver)
	apiServer := api.MakeServer(apiHandler, apiAddr)

	servers := makeServers(apiServer, ops)

	errCh := make(chan error)
	go func() {
		errCh <- servers.ops.Serve()
	}()
	go func() {
		errCh <- servers.api.ListenAndServe()
	}()
	log.Fatal("Error serving: ", <-errCh)

	return nil
}
