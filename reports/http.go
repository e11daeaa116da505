package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/scheduler/domain"
)

const DefaultHttpTries = 7 // ~2min total of trying with exponential backoff (0 and 1 both mean 1 try total)

func MakePesterClient() *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = DefaultHttpTries
	client.LogHook = func(e pester.ErrEntry) {
		log.Errorf("Retrying after failed attempt: %+v", e)
	}
	return client
}

// Client is the http surface we need, satisfied by both http.Client and
// pester.Client.
type Client interface {
	Do(req *http.Request) (resp *http.Response, err error)
}

// MakeHTTPPublisher publishes run records to a report service rooted at
// rootURI, retrying transient failures.
//
// The service is expected to expose:
//
//	POST {root}/reports   JSON run record body, answers {"reportId": "..."}
func MakeHTTPPublisher(rootURI string) Publisher {
	return MakeCustomHTTPPublisher(rootURI, MakePesterClient())
}

func MakeCustomHTTPPublisher(rootURI string, client Client) Publisher {
	if !strings.HasSuffix(rootURI, "/") {
		rootURI = rootURI + "/"
	}
	log.Infof("Making new HTTP publisher with root URI: %s", rootURI)
	return &httpPublisher{rootURI, client}
}

type httpPublisher struct {
	rootURI string
	client  Client
}

func (p *httpPublisher) Publish(rec domain.CompletedRecord) (string, error) {
	uri := p.rootURI + "reports"
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("could not marshal record for %s: %v", rec.EntryId, err)
	}

	req, err := http.NewRequest("POST", uri, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	log.Infof("Publishing report for %s: %d bytes to %s", rec.EntryId, len(body), uri)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Infof("Publish error: %s %v", uri, err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Errorf("Publish response status error: %s %v", uri, resp.Status)
		return "", fmt.Errorf("could not publish report for %s: %s", rec.EntryId, resp.Status)
	}

	var ack struct {
		ReportId string `json:"reportId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", fmt.Errorf("could not decode publish ack for %s: %v", rec.EntryId, err)
	}
	return ack.ReportId, nil
}
