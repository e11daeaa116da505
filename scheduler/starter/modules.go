package starter

import (
	"fmt"
	"time"

	"github.com/testfarm/testfarm/common/endpoints"
	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/reports"
	"github.com/testfarm/testfarm/runlog"
	"github.com/testfarm/testfarm/scenarios"
	"github.com/testfarm/testfarm/scheduler/config"
	"github.com/testfarm/testfarm/session"
)

// MakeDevicePool makes the device pool described by the Devices config section.
func MakeDevicePool(cfg config.DevicesJSONConfig) (devices.Pool, error) {
	if cfg.Type == "memory" {
		count := cfg.Count
		if count == 0 {
			count = 10
		}
		return devices.NewSimplePool(devices.NewIdDevices(count)), nil
	}

	return nil, fmt.Errorf("unsupported device pool type: %s.  No device pool created", cfg.Type)
}

// MakeRunLog makes the run journal described by the RunLog config section.
func MakeRunLog(cfg config.RunLogJSONConfig) (runlog.RunLog, error) {
	if cfg.Type == "memory" {
		return runlog.MakeInMemoryRunLog(time.Duration(cfg.ExpirationSec)*time.Second, time.Duration(cfg.GCIntervalSec)*time.Second), nil
	}
	if cfg.Type == "file" {
		return runlog.MakeFileRunLog(cfg.Directory)
	}

	return nil, fmt.Errorf("unsupported runlog type: %s.  No runlog created", cfg.Type)
}

// MakeCatalog makes the scenario catalog described by the Catalog config
// section. CacheBytes > 0 puts a read-through cache in front of it.
func MakeCatalog(cfg config.CatalogJSONConfig, stat stats.StatsReceiver) (scenarios.Catalog, error) {
	var catalog scenarios.Catalog
	switch cfg.Type {
	case "static":
		catalog = scenarios.NewStaticCatalog(DemoScenarios()...)
	case "http":
		catalog = scenarios.MakeHTTPCatalog(cfg.Addr)
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s.  No catalog created", cfg.Type)
	}
	if cfg.CacheBytes > 0 {
		catalog = scenarios.MakeCachedCatalog(catalog, &scenarios.CacheConfig{Name: "scenarios", MemoryBytes: cfg.CacheBytes}, stat)
	}
	return catalog, nil
}

// DemoScenarios is the built-in set a static catalog serves, so a farm brought
// up from an embedded config has something to run.
func DemoScenarios() []scenarios.Scenario {
	return []scenarios.Scenario{
		{Id: "boot", Name: "Boot Check", Steps: []string{"power_on", "wait_ready", "verify_home"}},
		{Id: "smoke", Name: "Smoke Test", Steps: []string{"launch_app", "tap_through", "verify_exit"}},
		{Id: "network", Name: "Network Check", Steps: []string{"join_wifi", "ping_gateway", "fetch_page"}},
	}
}

// MakePublisher makes the report publisher described by the Reports config section.
func MakePublisher(cfg config.ReportsJSONConfig) (reports.Publisher, error) {
	if cfg.Type == "memory" {
		return reports.MakeInMemPublisher(), nil
	}
	if cfg.Type == "http" {
		return reports.MakeHTTPPublisher(cfg.Addr), nil
	}

	return nil, fmt.Errorf("unsupported reports type: %s.  No publisher created", cfg.Type)
}

// MakeDialer makes the session dialer described by the Sessions config
// section, wrapped with dial retry.
func MakeDialer(cfg config.SessionsJSONConfig) (session.Dialer, error) {
	if cfg.Type == "sim" {
		return session.NewRetryDialer(session.NewSimDialer()), nil
	}

	return nil, fmt.Errorf("unsupported sessions type: %s.  No dialer created", cfg.Type)
}

func GetStatsReceiver() stats.StatsReceiver {
	return endpoints.MakeStatsReceiver("scheduler")
}
