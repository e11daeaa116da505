package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var tests = []string{"local.memory", "local.file"}

// Tests to ensure configs are properly specified
// and that they parse correctly
func TestGettingConfigurations(t *testing.T) {
	for _, configSelector := range tests {
		_, err := GetSchedulerConfigs(configSelector)
		assert.Nil(t, err, fmt.Sprintf("error getting scheduler config.  %s", err))
	}

	selector := "invalid.selector"
	config, err := GetSchedulerConfigs(selector)
	assert.NotNil(t, err, fmt.Sprintf("configuration returned for %s: %s", selector, config))
}

// TestCreatingConfigStruct test overriding default structure values with values from
// the command line's selected configuration.
func TestCreatingConfigStruct(t *testing.T) {
	config, err := GetSchedulerConfigs("local.file")
	assert.Nil(t, err)
	assert.Equal(t, "memory", config.Devices.Type)
	assert.Equal(t, "file", config.RunLog.Type)
	assert.Equal(t, ".testfarmdata/runlog", config.RunLog.Directory)

	assert.True(t, config.Scheduler.RecoverRunsOnStartup)
}

// A config literal passed on the command line only specifies the sections it
// cares about; the rest come from the defaults.
func TestJSONLiteralAndSectionDefaults(t *testing.T) {
	config, err := GetSchedulerConfigs(`{"SchedulerConfig": {"Type": "stateful", "MaxRunningEntries": 5, "Admins": ["alice"]}}`)
	assert.Nil(t, err)
	assert.Equal(t, 5, config.Scheduler.MaxRunningEntries)
	assert.Equal(t, []string{"alice"}, config.Scheduler.Admins)

	// unspecified sections fall back to the defaults
	assert.Equal(t, "memory", config.Devices.Type)
	assert.Equal(t, "memory", config.RunLog.Type)
	assert.Equal(t, "static", config.Catalog.Type)
	assert.Equal(t, "sim", config.Sessions.Type)
}

func TestCreateSchedulerConfig(t *testing.T) {
	config, err := GetSchedulerConfigs("local.memory")
	assert.Nil(t, err)

	serverConfig, err := config.Scheduler.CreateSchedulerConfig()
	assert.Nil(t, err)
	assert.Equal(t, 100, serverConfig.MaxRequesters)
	assert.Equal(t, 200, serverConfig.MaxEntriesPerRequester)
	assert.Equal(t, 50, serverConfig.MaxHistory)
	assert.Equal(t, 500*time.Millisecond, serverConfig.ProgressInterval)
	assert.False(t, serverConfig.RecoverRunsOnStartup)

	badInterval := SchedulerJSONConfig{ProgressInterval: "not-a-duration"}
	_, err = badInterval.CreateSchedulerConfig()
	assert.NotNil(t, err)
}
