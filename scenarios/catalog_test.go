package scenarios

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/testfarm/testfarm/common/stats"
)

var loginScenario = Scenario{
	Id:    "login-flow",
	Name:  "Login flow",
	Steps: []string{"launch", "enter-credentials", "assert-home"},
}

var checkoutScenario = Scenario{
	Id:    "checkout",
	Name:  "Checkout",
	Steps: []string{"launch", "add-to-cart", "pay", "assert-receipt"},
}

func TestStaticCatalog(t *testing.T) {
	c := NewStaticCatalog(loginScenario, checkoutScenario)
	ctx := context.Background()

	sc, err := c.Scenario(ctx, "login-flow")
	if err != nil || sc.Name != "Login flow" {
		t.Fatalf("fetch failed: %v %v", sc, err)
	}
	if ok, _ := c.Has(ctx, "checkout"); !ok {
		t.Fatal("expected checkout to exist")
	}
	if ok, _ := c.Has(ctx, "nope"); ok {
		t.Fatal("expected nope to not exist")
	}
	if _, err := c.Scenario(ctx, "nope"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	scs, err := c.Scenarios(ctx)
	if err != nil || len(scs) != 2 || scs[0].Id != "login-flow" || scs[1].Id != "checkout" {
		t.Fatalf("expected registration order listing, got %v %v", scs, err)
	}
}

func TestHTTPCatalog(t *testing.T) {
	byId := map[string]Scenario{loginScenario.Id: loginScenario}
	mux := http.NewServeMux()
	mux.HandleFunc("/scenarios", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Scenario{loginScenario})
	})
	mux.HandleFunc("/scenarios/", func(w http.ResponseWriter, r *http.Request) {
		sc, ok := byId[r.URL.Path[len("/scenarios/"):]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(sc)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := MakeCustomHTTPCatalog(server.URL, http.DefaultClient)
	ctx := context.Background()

	sc, err := c.Scenario(ctx, "login-flow")
	if err != nil {
		t.Fatal(err)
	}
	if sc.Id != "login-flow" || len(sc.Steps) != 3 {
		t.Fatalf("unexpected scenario %v", sc)
	}
	if _, err := c.Scenario(ctx, "nope"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ok, err := c.Has(ctx, "login-flow"); err != nil || !ok {
		t.Fatalf("expected exists: %v %v", ok, err)
	}
	if ok, err := c.Has(ctx, "nope"); err != nil || ok {
		t.Fatalf("expected not exists: %v %v", ok, err)
	}
	scs, err := c.Scenarios(ctx)
	if err != nil || len(scs) != 1 {
		t.Fatalf("unexpected listing %v %v", scs, err)
	}
}

type countingCatalog struct {
	Catalog
	scenarioCalls int
}

func (c *countingCatalog) Scenario(ctx context.Context, id string) (Scenario, error) {
	c.scenarioCalls++
	return c.Catalog.Scenario(ctx, id)
}

func TestCachedCatalogReadsUnderlyingOnce(t *testing.T) {
	reg := stats.NewFarmStatsRegistry()
	statsRec, _ := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg }, 0)

	underlying := &countingCatalog{Catalog: NewStaticCatalog(loginScenario)}
	c := MakeCachedCatalog(underlying, &CacheConfig{Name: "catalog-test", MemoryBytes: 1 << 20}, statsRec)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sc, err := c.Scenario(ctx, "login-flow")
		if err != nil {
			t.Fatal(err)
		}
		if sc.Name != "Login flow" || len(sc.Steps) != 3 {
			t.Fatalf("unexpected scenario %v", sc)
		}
	}
	if underlying.scenarioCalls != 1 {
		t.Fatalf("expected one underlying read, got %d", underlying.scenarioCalls)
	}
	stats.VerifyStats("cachedCatalog", reg, t, map[string]stats.Rule{
		"scenarioCache/readUnderlyingCounter": {Checker: stats.Int64EqTest, Value: 1},
		"scenarioCache/cacheHitCounter":       {Checker: stats.Int64EqTest, Value: 1},
	})

	if ok, err := c.Has(ctx, "login-flow"); err != nil || !ok {
		t.Fatalf("expected exists: %v %v", ok, err)
	}
	if _, err := c.Scenario(ctx, "nope"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}
