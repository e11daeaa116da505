package stats

/*
This file defines all the metrics being collected.  As new metrics are added please follow this pattern.
*/

const (
	/************************* Catalog metrics **************************/
	/*
		number of scenario catalog reads served from the local copy
	*/
	CatalogCacheHitCounter = "cacheHitCounter"

	/*
		number of scenario catalog reads that missed the local copy
	*/
	CatalogCacheMissCounter = "cacheMissCounter"

	/*
		amount of time it takes to fetch a scenario definition (includes fetches that errored)
	*/
	CatalogFetchLatency_ms = "fetchLatency_ms"

	/*
		number of times the catalog cache had to read from its underlying source
	*/
	CatalogReadUnderlyingCounter = "readUnderlyingCounter"

	/************************* Events metrics ***************************/
	/*
		number of events dropped because a subscriber channel was full
	*/
	EventsDroppedCounter = "eventsDroppedCounter"

	/*
		number of events fanned out to subscribers
	*/
	EventsPublishedCounter = "eventsPublishedCounter"

	/*
		the current number of event subscribers
	*/
	EventSubscribersGauge = "eventSubscribersGauge"

	/************************ Executor metrics **************************/
	/*
		number of device sessions that could not be established
	*/
	ExecutorDeviceFailuresCounter = "deviceFailuresCounter"

	/*
		number of device executions halted by a cancel request
	*/
	ExecutorDevicesStoppedCounter = "devicesStoppedCounter"

	/*
		number of scenario executions that completed successfully
	*/
	ExecutorScenariosCompletedCounter = "scenariosCompletedCounter"

	/*
		number of scenario executions that failed
	*/
	ExecutorScenariosFailedCounter = "scenariosFailedCounter"

	/*
		amount of time it takes to run one scenario on one device
	*/
	ExecutorScenarioLatency_ms = "scenarioLatency_ms"

	/*
		amount of time it takes to establish a device session
	*/
	ExecutorSessionDialLatency_ms = "sessionDialLatency_ms"

	/************************* Reports metrics **************************/
	/*
		number of report publish attempts that gave up after retries
	*/
	ReportPublishFailuresCounter = "publishFailuresCounter"

	/*
		amount of time it takes to publish one completed run report
	*/
	ReportPublishLatency_ms = "publishLatency_ms"

	/*
		number of completed run reports published
	*/
	ReportsPublishedCounter = "reportsPublishedCounter"

	/************************* RunLog metrics ***************************/
	/*
		number of interrupted runs recovered from the run log at startup
	*/
	RunLogRecoveredRunsCounter = "recoveredRunsCounter"

	/*
		number of run log writes that failed
	*/
	RunLogWriteFailuresCounter = "writeFailuresCounter"

	/*********************** Scheduler metrics **************************/
	/*
		number of runs admitted straight to devices (no queueing)
	*/
	SchedAdmittedCounter = "runsAdmittedCounter"

	/*
		number of cancel requests received
	*/
	SchedCancelRequestsCounter = "cancelRequestsCounter"

	/*
		number of entries that reached a terminal state with all devices done
	*/
	SchedEntriesCompletedCounter = "entriesCompletedCounter"

	/*
		number of entries cancelled before or during execution
	*/
	SchedEntriesCancelledCounter = "entriesCancelledCounter"

	/*
		time an entry spends running, from first device start to completion
	*/
	SchedEntryRunLatency_ms = "entryRunLatency_ms"

	/*
		time an entry spends waiting in the queue before its devices free up
	*/
	SchedEntryWaitLatency_ms = "entryWaitLatency_ms"

	/*
		the number of devices in the pool with no entry holding them
	*/
	SchedFreeDevicesGauge = "freeDevicesGauge"

	/*
		the number of devices currently held by running entries
	*/
	SchedLockedDevicesGauge = "lockedDevicesGauge"

	/*
		the number of devices marked offline by an operator
	*/
	SchedOfflineDevicesGauge = "offlineDevicesGauge"

	/*
		the number of entries waiting for devices
	*/
	SchedPendingEntriesGauge = "pendingEntriesGauge"

	/*
		the total number of devices the scheduler knows about
	*/
	SchedPoolDevicesGauge = "poolDevicesGauge"

	/*
		amount of time it takes the scheduler loop to process completion callbacks
	*/
	SchedProcessMessagesLatency_ms = "processMessagesLatency_ms"

	/*
		amount of time it takes to scan the wait queue for runnable entries
	*/
	SchedQueueEvalLatency_ms = "queueEvalLatency_ms"

	/*
		number of runs that had to wait for at least one device
	*/
	SchedQueuedCounter = "runsQueuedCounter"

	/*
		the number of entries currently executing on devices
	*/
	SchedRunningEntriesGauge = "runningEntriesGauge"

	/*
		record the start of the scheduler server
	*/
	SchedServerStartedGauge = "schedStartGauge"

	/*
		number of submissions split into an immediate and a queued entry
	*/
	SchedSplitCounter = "runsSplitCounter"

	/*
		amount of time it takes to run one scheduler step
	*/
	SchedStepLatency_ms = "stepLatency_ms"

	/*
		amount of time it takes to admit one submission
	*/
	SchedSubmitLatency_ms = "submitLatency_ms"

	/*
		number of run submissions received (valid or not)
	*/
	SchedSubmitRequestsCounter = "submitRequestsCounter"

	/*
		The length of time the server has been running
	*/
	SchedUptime_ms = "schedUptimeGauge_ms"
)
