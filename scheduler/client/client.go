package client

// client provides client side access to the farm services. It is used by the
// command line binaries to make requests against the scheduler HTTP API.

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/testfarm/testfarm/common"
	"github.com/testfarm/testfarm/scheduler/api"
	"github.com/testfarm/testfarm/scheduler/domain"
)

// ReplyError is a non-2xx answer from the scheduler API. The status code
// separates requests that can never succeed from ones worth retrying.
type ReplyError struct {
	StatusCode int
	Message    string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("scheduler replied %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request later could succeed.
func (e *ReplyError) Temporary() bool {
	return e.StatusCode >= 500
}

// A struct that supports making requests to the farm scheduler.
// Submissions deliberately go over a plain client with no retries: a retried
// submit that actually landed the first time would admit the run twice.
type FarmClient struct {
	addr   string
	client *http.Client
	// streaming watches hold their response open indefinitely, which the
	// request/reply client's overall timeout would cut short
	streamClient *http.Client
}

// Parameters to configure a FarmClient connection
type FarmClientConfig struct {
	Addr    string        // Address to connect to, host:port
	Timeout time.Duration // Per request timeout, defaults to common.DefaultClientTimeout
}

// Creates a FarmClient. Returns a client object which can be used to execute
// calls against the farm scheduler API.
func NewFarmClient(config FarmClientConfig) *FarmClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = common.DefaultClientTimeout
	}
	return &FarmClient{
		addr:         config.Addr,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// SubmitRun API. Submits a run request for scheduling. If admitted the reply
// says whether it started, queued, or split, if not an error.
func (c *FarmClient) SubmitRun(msg *api.RunRequestMsg) (*api.AdmitReplyMsg, error) {
	reply := &api.AdmitReplyMsg{}
	if err := c.do("POST", "/api/v1/runs", msg, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// CancelRun API. Asks the scheduler to stop an entry. Succeeds without effect
// on entries that already reached a terminal state.
func (c *FarmClient) CancelRun(entryId string) error {
	return c.do("POST", "/api/v1/runs/"+url.PathEscape(entryId)+"/cancel", nil, nil)
}

// GetStatus API. Returns the farm snapshot as seen by requester, whose busy
// devices show as busy_self rather than busy_other.
func (c *FarmClient) GetStatus(requester string) (*api.FarmStatusMsg, error) {
	status := &api.FarmStatusMsg{}
	if err := c.do("GET", "/api/v1/status?"+viewerQuery(requester), nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// GetDevices API. Returns the device pool with lock state relative to requester.
func (c *FarmClient) GetDevices(requester string) (*api.DeviceListMsg, error) {
	list := &api.DeviceListMsg{}
	if err := c.do("GET", "/api/v1/devices?"+viewerQuery(requester), nil, list); err != nil {
		return nil, err
	}
	return list, nil
}

// OfflineDevice API. Takes a device out of scheduling consideration once its
// current run releases it.
func (c *FarmClient) OfflineDevice(deviceId string, requester string) error {
	return c.do("POST", "/api/v1/devices/"+url.PathEscape(deviceId)+"/offline",
		&api.DeviceAdminMsg{RequesterName: requester}, nil)
}

// ReinstateDevice API. Returns an offlined device to the schedulable pool.
func (c *FarmClient) ReinstateDevice(deviceId string, requester string) error {
	return c.do("POST", "/api/v1/devices/"+url.PathEscape(deviceId)+"/reinstate",
		&api.DeviceAdminMsg{RequesterName: requester}, nil)
}

// GetSchedulerStatus API. Returns the admission controls and live entry counts.
func (c *FarmClient) GetSchedulerStatus() (*api.SchedulerStatusMsg, error) {
	status := &api.SchedulerStatusMsg{}
	if err := c.do("GET", "/api/v1/scheduler/status", nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// SetSchedulerStatus API. Pauses/resumes admission and sets the cap on
// concurrently running entries, 0 meaning unlimited.
func (c *FarmClient) SetSchedulerStatus(paused bool, maxRunningEntries int) error {
	return c.do("POST", "/api/v1/scheduler/status",
		&api.SchedulerControlMsg{Paused: paused, MaxRunningEntries: maxRunningEntries}, nil)
}

// WatchRun API. Tails one entry's event stream, calling onEvent for each
// event, until the run completes. Returns the completion record. A run that
// already finished is answered from the stream's snapshot without waiting for
// events; a run the scheduler no longer knows is an error.
func (c *FarmClient) WatchRun(entryId string, onEvent func(*api.EventMsg)) (*api.RecordMsg, error) {
	resp, err := c.streamClient.Get(c.uri("/api/v1/events?entryId=" + url.QueryEscape(entryId)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, replyErrorFrom(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	event, data, err := nextSSEFrame(scanner)
	if err != nil {
		return nil, err
	}
	if event != "snapshot" {
		return nil, fmt.Errorf("expected snapshot to open the event stream, got %q", event)
	}
	var snap api.FarmStatusMsg
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("could not decode stream snapshot: %v", err)
	}
	live := false
	for _, e := range append(snap.PendingEntries, snap.RunningEntries...) {
		if e.EntryId == entryId {
			live = true
		}
	}
	if !live {
		for _, rec := range snap.CompletedEntries {
			if rec.EntryId == entryId {
				r := rec
				return &r, nil
			}
		}
		return nil, fmt.Errorf("run %s is not known to the scheduler (it may have completed long ago)", entryId)
	}

	for {
		event, data, err := nextSSEFrame(scanner)
		if err != nil {
			return nil, err
		}
		var ev api.EventMsg
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("could not decode %s event: %v", event, err)
		}
		if onEvent != nil {
			onEvent(&ev)
		}
		if ev.Type == string(domain.EventRunCompleted) && ev.Record != nil {
			return ev.Record, nil
		}
	}
}

// Reads one SSE frame, skipping heartbeat comments.
func nextSSEFrame(scanner *bufio.Scanner) (event string, data string, err error) {
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}
	return "", "", fmt.Errorf("event stream ended before the run completed")
}

func viewerQuery(requester string) string {
	v := url.Values{}
	v.Set("requester", requester)
	return v.Encode()
}

func (c *FarmClient) uri(path string) string {
	return "http://" + c.addr + path
}

// helper method to run one request/reply exchange: encodes body if present,
// decodes into out if the reply has one, and turns non-2xx answers into a
// ReplyError
func (c *FarmClient) do(method, path string, body interface{}, out interface{}) error {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.uri(path), rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return replyErrorFrom(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func replyErrorFrom(resp *http.Response) error {
	re := &ReplyError{StatusCode: resp.StatusCode}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		re.Message = e.Error
	} else {
		re.Message = resp.Status
	}
	return re
}
