package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/scheduler/server"
)

// JSONConfigs config structure holding original json configs
type JSONConfigs struct {
	Devices   DevicesJSONConfig   `json:"Devices"`
	Scheduler SchedulerJSONConfig `json:"SchedulerConfig"`
	RunLog    RunLogJSONConfig    `json:"RunLog"`
	Catalog   CatalogJSONConfig   `json:"Catalog"`
	Reports   ReportsJSONConfig   `json:"Reports"`
	Sessions  SessionsJSONConfig  `json:"Sessions"`
}

func (s JSONConfigs) String() string {
	return fmt.Sprintf("\n%s\n%s\n%s\n%s\n%s\n%s", s.Devices, s.Scheduler, s.RunLog, s.Catalog, s.Reports, s.Sessions)
}

type DevicesJSONConfig struct {
	Type  string `json:"Type"`  // device pool type: memory
	Count int    `json:"Count"` // default to 10 for Type == memory
}

func (c DevicesJSONConfig) String() string {
	return fmt.Sprintf("DevicesJSONConfig: Type: %s, Count: %d", c.Type, c.Count)
}

type RunLogJSONConfig struct {
	Type          string `json:"Type"`          // memory, file
	Directory     string `json:"Directory"`     // default to .testfarmdata/runlog
	ExpirationSec int    `json:"ExpirationSec"` // default to 0
	GCIntervalSec int    `json:"GCIntervalSec"` // default to 1
}

func (r RunLogJSONConfig) String() string {
	return fmt.Sprintf("RunLogJSONConfig: Type: %s, Directory: %s, ExpirationSec: %d, GCIntervalSec: %d",
		r.Type, r.Directory, r.ExpirationSec, r.GCIntervalSec)
}

type CatalogJSONConfig struct {
	Type       string `json:"Type"`       // static, http
	Addr       string `json:"Addr"`       // catalog service root, for Type == http
	CacheBytes int64  `json:"CacheBytes"` // > 0 puts a read-through cache in front
}

func (c CatalogJSONConfig) String() string {
	return fmt.Sprintf("CatalogJSONConfig: Type: %s, Addr: %s, CacheBytes: %d", c.Type, c.Addr, c.CacheBytes)
}

type ReportsJSONConfig struct {
	Type string `json:"Type"` // memory, http
	Addr string `json:"Addr"` // report service root, for Type == http
}

func (r ReportsJSONConfig) String() string {
	return fmt.Sprintf("ReportsJSONConfig: Type: %s, Addr: %s", r.Type, r.Addr)
}

type SessionsJSONConfig struct {
	Type string `json:"Type"` // sim
}

func (s SessionsJSONConfig) String() string {
	return fmt.Sprintf("SessionsJSONConfig: Type: %s", s.Type)
}

type SchedulerJSONConfig struct {
	Type                   string   `json:"Type"` // scheduler type: stateful
	MaxRequesters          int      `json:"MaxRequesters"`
	MaxEntriesPerRequester int      `json:"MaxEntriesPerRequester"`
	MaxRunningEntries      int      `json:"MaxRunningEntries"` // default to 0, unlimited
	MaxHistory             int      `json:"MaxHistory"`
	DebugMode              bool     `json:"DebugMode"`            // default to false
	RecoverRunsOnStartup   bool     `json:"RecoverRunsOnStartup"` // default to false
	ProgressInterval       string   `json:"ProgressInterval"`     // default to 500ms
	Admins                 []string `json:"Admins"`               // empty means anyone may offline/reinstate
}

func (sc SchedulerJSONConfig) String() string {
	return fmt.Sprintf("SchedulerJSONConfig: Type: %s, MaxRequesters: %d, MaxEntriesPerRequester: %d, MaxRunningEntries: %d, "+
		"MaxHistory: %d, DebugMode: %t, RecoverRunsOnStartup: %t, ProgressInterval: %s, Admins: %v",
		sc.Type, sc.MaxRequesters, sc.MaxEntriesPerRequester, sc.MaxRunningEntries,
		sc.MaxHistory, sc.DebugMode, sc.RecoverRunsOnStartup, sc.ProgressInterval, sc.Admins)
}

func GetConfigText(configSelector string) ([]byte, error) {
	configText, ok := SchedulerConfigs[configSelector]
	if !ok {
		keys := make([]string, 0, len(SchedulerConfigs))
		for k := range SchedulerConfigs {
			keys = append(keys, k)
		}
		return nil, fmt.Errorf("invalid configuration %s, supported values are %v", configSelector, keys)
	}

	return []byte(configText), nil
}

func (jc *SchedulerJSONConfig) CreateSchedulerConfig() (*server.SchedulerConfiguration, error) {
	var err error
	serverConfig := &server.SchedulerConfiguration{}
	if jc.ProgressInterval != "" {
		serverConfig.ProgressInterval, err = time.ParseDuration(jc.ProgressInterval)
		if err != nil {
			return nil, err
		}
	}

	serverConfig.DebugMode = jc.DebugMode
	serverConfig.RecoverRunsOnStartup = jc.RecoverRunsOnStartup
	serverConfig.MaxRequesters = jc.MaxRequesters
	serverConfig.MaxEntriesPerRequester = jc.MaxEntriesPerRequester
	serverConfig.MaxRunningEntries = jc.MaxRunningEntries
	serverConfig.MaxHistory = jc.MaxHistory
	serverConfig.Admins = jc.Admins
	return serverConfig, nil
}

// GetSchedulerConfigs gets the scheduler config. The selector either names an
// embedded config or is itself a JSON config literal.
func GetSchedulerConfigs(configSelector string) (*JSONConfigs, error) {
	// get the default values, these will override any of the config
	// sections whose Type is ""
	defaultConfigText, _ := GetConfigText("default")
	defaultConfig := &JSONConfigs{}
	err := json.Unmarshal(defaultConfigText, defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse the default config: %v", err)
	}

	// get the config values as per the command line config selector
	var configText []byte
	if strings.HasPrefix(strings.TrimSpace(configSelector), "{") {
		log.Infof("using -config as JSON config: %v", configSelector)
		configText = []byte(configSelector)
	} else if configText, err = GetConfigText(configSelector); err != nil {
		return nil, err
	}

	farmConfig := &JSONConfigs{}
	err = json.Unmarshal(configText, farmConfig)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse top-level config: %v", err)
	}

	// use the default values for any sections whose type was not set in the
	// selected config
	if farmConfig.Devices.Type == "" {
		log.Infof("using default Devices config")
		farmConfig.Devices = defaultConfig.Devices
	}
	if farmConfig.RunLog.Type == "" {
		log.Infof("using default RunLog config")
		farmConfig.RunLog = defaultConfig.RunLog
	}
	if farmConfig.Catalog.Type == "" {
		log.Infof("using default Catalog config")
		farmConfig.Catalog = defaultConfig.Catalog
	}
	if farmConfig.Reports.Type == "" {
		log.Infof("using default Reports config")
		farmConfig.Reports = defaultConfig.Reports
	}
	if farmConfig.Sessions.Type == "" {
		log.Infof("using default Sessions config")
		farmConfig.Sessions = defaultConfig.Sessions
	}
	if farmConfig.Scheduler.Type == "" {
		log.Infof("using default Scheduler config")
		farmConfig.Scheduler = defaultConfig.Scheduler
	}

	return farmConfig, nil
}
