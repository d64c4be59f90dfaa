package testkit

import (
	"net/http/httptest"
	"time"

	"go.uber.org/zap"

	"mmmstudio/adapters/api"
	"mmmstudio/domain/modeling"
)

// Standard fixture names
const (
	BaseModel = "base"
	AltModel  = "media_only"
)

// TestKit bundles a seeded fake statistics service with the dataset behind it
type TestKit struct {
	Service *FakeService
	Dataset *Dataset
}

// NewTestKit creates a fake service seeded from the default synthetic dataset.
// The base model holds TV and Radio; Search and Social are candidates.
func NewTestKit() *TestKit {
	return NewTestKitWithConfig(DefaultDatasetConfig())
}

// NewTestKitWithConfig seeds the fake service from a custom dataset
func NewTestKitWithConfig(config DatasetConfig) *TestKit {
	ds := NewDatasetGenerator(config).Generate()
	svc := NewFakeService()

	svc.SetCatalog(ds.Catalog...)
	for name, points := range ds.Series {
		svc.SetSeries(name, points)
	}

	var fits []Fit
	for i, ch := range ds.Channels {
		if i >= 2 {
			break
		}
		fits = append(fits, Fit{Name: ch.Name, Coefficient: ch.Effect, TStat: 3 - float64(i)})
	}
	svc.AddModel(BaseModel, ds.KPI, fits...)
	svc.AddModel(AltModel, ds.KPI)
	svc.SetActive(BaseModel)

	return &TestKit{Service: svc, Dataset: ds}
}

// Start serves the fake service on a local listener. Callers close the server.
func (k *TestKit) Start() *httptest.Server {
	return httptest.NewServer(k.Service)
}

// Client returns a statistics service client pointed at server
func (k *TestKit) Client(server *httptest.Server, logger *zap.Logger) *api.Client {
	config := api.DefaultClientConfig()
	config.BaseURL = server.URL
	config.Timeout = 5 * time.Second
	config.LongTimeout = 10 * time.Second
	client, err := api.NewClient(config, logger)
	if err != nil {
		// httptest URLs are always absolute
		panic(err)
	}
	return client.WithHTTPClient(server.Client())
}

// ModelFeatures returns the fixture features of the base model
func (k *TestKit) ModelFeatures() []string {
	return k.Service.Features(BaseModel)
}

// Series returns the generated observations for one variable
func (k *TestKit) Series(name string) []modeling.SeriesPoint {
	return k.Dataset.Series[name]
}
