// Package tms defines the transactions and scenarios exercised against a TMS
// service.
package tms

import (
	"context"
	"fmt"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/http"
	"github.com/tmsproject/tms-loadtest/internal/loadtest"
)

// Scenario and transaction names.
const (
	GetClientName  = "getclient"
	GetVersionName = "getversion"
)

// ClientPath returns the path of the client resource for clientID.
func ClientPath(clientID string) string {
	return fmt.Sprintf("v1/tms/client/%s", clientID)
}

// VersionPath is the unauthenticated version endpoint.
const VersionPath = "v1/tms/version"

// GetClient fetches the configured client using tenant authentication.
// A missing tenant, client id or client secret is a fatal configuration error
// and no request is sent.
func GetClient(ctx context.Context, vu *loadtest.VirtualUser) (loadtest.Outcome, error) {
	clientID, err := vu.Config().Require(config.KeyClientID)
	if err != nil {
		return loadtest.Outcome{}, err
	}

	spec, err := vu.Builder().Build("GET", ClientPath(clientID), http.AuthTenant)
	if err != nil {
		return loadtest.Outcome{}, err
	}

	return vu.Do(ctx, GetClientName, spec), nil
}

// GetVersion queries the service version without credentials.
func GetVersion(ctx context.Context, vu *loadtest.VirtualUser) (loadtest.Outcome, error) {
	spec, err := vu.Builder().Build("GET", VersionPath, http.AuthNone)
	if err != nil {
		return loadtest.Outcome{}, err
	}

	return vu.Do(ctx, GetVersionName, spec), nil
}

// TenantCredentials are the keys every tenant-authenticated request needs.
var TenantCredentials = []config.Key{config.KeyTenant, config.KeyClientID, config.KeyClientSecret}

// Scenarios returns the registered TMS scenarios, each with weight 1.
func Scenarios() []*loadtest.Scenario {
	getClient := loadtest.NewScenario(GetClientName, 1, loadtest.Transaction{Name: GetClientName, Run: GetClient})
	getClient.Requires = TenantCredentials

	return []*loadtest.Scenario{
		getClient,
		loadtest.NewScenario(GetVersionName, 1, loadtest.Transaction{Name: GetVersionName, Run: GetVersion}),
	}
}

// ScenarioNames returns the names of the registered scenarios.
func ScenarioNames() []string {
	scenarios := Scenarios()
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	return names
}
