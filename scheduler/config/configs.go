package config

// SchedulerConfigs the map of available configurations
var SchedulerConfigs = map[string]string{
	"default":      defaultConfig,
	"local.memory": localMemory,
	"local.file":   localFile,
}

// defaultConfig the configuration values that are used for nil parts of a specific configuration and for integration tests
const defaultConfig = `{
	"Devices": {
		"Type": "memory",
		"Count": 10
	},
	"SchedulerConfig": {
		"Type": "stateful",
		"MaxRequesters": 100,
		"MaxEntriesPerRequester": 200,
		"MaxHistory": 50,
		"ProgressInterval": "500ms"
	},
	"RunLog": {
		"Type": "memory",
		"GCIntervalSec": 1
	},
	"Catalog": {
		"Type": "static"
	},
	"Reports": {
		"Type": "memory"
	},
	"Sessions": {
		"Type": "sim"
	}
}`

// localMemory config for local.memory - !!! make sure this constant is added to SchedulerConfigs map above !!!
const localMemory = `{
	"Devices": {
		"Type": "memory",
		"Count": 10
	},
	"SchedulerConfig": {
		"Type": "stateful",
		"MaxRequesters": 100,
		"MaxEntriesPerRequester": 200,
		"MaxHistory": 50,
		"RecoverRunsOnStartup": false,
		"ProgressInterval": "500ms"
	},
	"RunLog": {
		"Type": "memory",
		"ExpirationSec": 0,
		"GCIntervalSec": 1
	},
	"Catalog": {
		"Type": "static"
	},
	"Reports": {
		"Type": "memory"
	},
	"Sessions": {
		"Type": "sim"
	}
}`

// localFile config for local.file - !!! make sure this constant is added to SchedulerConfigs map above !!!
const localFile = `{
	"Devices": {
		"Type": "memory",
		"Count": 10
	},
	"SchedulerConfig": {
		"Type": "stateful",
		"MaxRequesters": 100,
		"MaxEntriesPerRequester": 200,
		"MaxHistory": 50,
		"RecoverRunsOnStartup": true,
		"ProgressInterval": "500ms"
	},
	"RunLog": {
		"Type": "file",
		"Directory": ".testfarmdata/runlog"
	},
	"Catalog": {
		"Type": "static"
	},
	"Reports": {
		"Type": "memory"
	},
	"Sessions": {
		"Type": "sim"
	}
}`
