package scenarios

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
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

// MakeHTTPCatalog serves scenarios from a remote scenario service rooted at
// rootURI, retrying transient failures.
//
// The service is expected to expose:
//
//	GET  {root}/scenarios        JSON list of all scenarios
//	GET  {root}/scenarios/{id}   one scenario, 404 when unknown
//	HEAD {root}/scenarios/{id}   existence check
func MakeHTTPCatalog(rootURI string) Catalog {
	return MakeCustomHTTPCatalog(rootURI, MakePesterClient())
}

func MakeCustomHTTPCatalog(rootURI string, client Client) Catalog {
	if !strings.HasSuffix(rootURI, "/") {
		rootURI = rootURI + "/"
	}
	log.Infof("Making new HTTP catalog with root URI: %s", rootURI)
	return &httpCatalog{rootURI, client}
}

type httpCatalog struct {
	rootURI string
	client  Client
}

func (c *httpCatalog) Scenario(ctx context.Context, id string) (Scenario, error) {
	uri := c.rootURI + "scenarios/" + id
	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return Scenario{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Infof("Scenario fetch error: %s %v", uri, err)
		return Scenario{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Scenario{}, &NotFoundError{Id: id}
	}
	if resp.StatusCode != http.StatusOK {
		log.Errorf("Scenario fetch status error: %s %v", uri, resp.Status)
		return Scenario{}, fmt.Errorf("could not fetch scenario %s: %s", id, resp.Status)
	}
	var sc Scenario
	if err := json.NewDecoder(resp.Body).Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("could not decode scenario %s: %v", id, err)
	}
	return sc, nil
}

func (c *httpCatalog) Has(ctx context.Context, id string) (bool, error) {
	uri := c.rootURI + "scenarios/" + id
	req, err := http.NewRequestWithContext(ctx, "HEAD", uri, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("Scenario exists error: %s %v", uri, err)
		return false, err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("could not check scenario %s: %s", id, resp.Status)
}

func (c *httpCatalog) Scenarios(ctx context.Context) ([]Scenario, error) {
	uri := c.rootURI + "scenarios"
	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Infof("Scenario list error: %s %v", uri, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Scenario list status error: %s %v", uri, resp.Status)
		return nil, fmt.Errorf("could not list scenarios: %s", resp.Status)
	}
	var scs []Scenario
	if err := json.NewDecoder(resp.Body).Decode(&scs); err != nil {
		return nil, fmt.Errorf("could not decode scenario list: %v", err)
	}
	return scs, nil
}
