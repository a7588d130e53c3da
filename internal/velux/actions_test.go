package velux

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/velux-go/internal/session"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		args    []string
		want    Action
		wantErr bool
	}{
		{"scenario", "run-scenario", []string{"away"}, RunScenario{Scenario: "away"}, false},
		{"scenario without name", "run-scenario", nil, nil, true},
		{"scenario empty name", "run-scenario", []string{""}, nil, true},
		{"scenario two names", "run-scenario", []string{"a", "b"}, nil, true},
		{"home info", "home-info", nil, HomeInfo{}, false},
		{"home info with args", "home-info", []string{"x"}, nil, true},
		{"home status default", "home-status", nil, HomeStatus{}, false},
		{"home status explicit", "home-status", []string{"h2"}, HomeStatus{HomeID: "h2"}, false},
		{"home status too many", "home-status", []string{"a", "b"}, nil, true},
		{"unknown", "open-window", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.action, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.action, got.Name())
		})
	}
}

var actionSettings = session.Settings{
	BaseURL:       "https://app.velux-active.com",
	SyncURL:       "/api/setstate",
	HomesDataURL:  "/api/homesdata",
	HomeStatusURL: "/syncapi/v1/homestatus",
	AppVersion:    "1.6.0",
	AppType:       "app_velux",
}

func requestJSON(t *testing.T, req request) string {
	t.Helper()

	data, err := json.Marshal(req.body)
	require.NoError(t, err)

	return string(data)
}

func TestBuildRequest_RunScenario(t *testing.T) {
	req, err := buildRequest(RunScenario{Scenario: "away"}, actionSettings, testCredentials)
	require.NoError(t, err)

	assert.Equal(t, "/api/setstate", req.path)
	assert.JSONEq(t, `{
		"home": {
			"id": "home-1",
			"modules": [{"scenario": "away", "bridge": "70:ee:50:00:00:01", "id": "70:ee:50:00:00:01"}]
		},
		"app_version": "1.6.0"
	}`, requestJSON(t, req))
}

func TestBuildRequest_RunScenarioNeedsHomeAndBridge(t *testing.T) {
	_, err := buildRequest(RunScenario{Scenario: "away"}, actionSettings, session.Credentials{Username: "a"})

	var incomplete *IncompleteSessionError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"home id", "bridge"}, incomplete.Missing)
}

func TestBuildRequest_HomeInfo(t *testing.T) {
	req, err := buildRequest(HomeInfo{}, actionSettings, testCredentials)
	require.NoError(t, err)

	assert.Equal(t, "/api/homesdata", req.path)
	assert.JSONEq(t, `{"app_version":"1.6.0","app_type":"app_velux","sync_measurements":true}`, requestJSON(t, req))
}

func TestBuildRequest_HomeStatus(t *testing.T) {
	req, err := buildRequest(HomeStatus{}, actionSettings, testCredentials)
	require.NoError(t, err)

	assert.Equal(t, "/syncapi/v1/homestatus", req.path)
	assert.JSONEq(t, `{"app_version":"1.6.0","home_id":"home-1"}`, requestJSON(t, req))

	req, err = buildRequest(HomeStatus{HomeID: "home-2"}, actionSettings, testCredentials)
	require.NoError(t, err)
	assert.JSONEq(t, `{"app_version":"1.6.0","home_id":"home-2"}`, requestJSON(t, req))

	_, err = buildRequest(HomeStatus{}, actionSettings, session.Credentials{Username: "a"})
	require.ErrorIs(t, err, ErrIncompleteSession)
}
