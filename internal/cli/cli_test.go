package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/mission-planner/internal/snapshot"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Failed to write test config file")
	return path
}

// seedStore writes a file-driver snapshot with two missions and one active unit.
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "missions.json")
	require.NoError(t, snapshot.NewManager(path).Write(snapshot.Data{
		Missions: []*types.Mission{
			{ID: 1, Type: types.TypeAssault, Status: types.MissionPlanning, Priority: types.PriorityHigh},
			{ID: 2, Type: types.TypePatrol, Status: types.MissionActive},
		},
		Units: []types.Unit{
			{ID: 1, Designation: "1-A", Status: types.UnitActive},
			{ID: 2, Designation: "1-B", Status: types.UnitStandby},
		},
	}))
	return path
}

// ============================================================================
// Command tree
// ============================================================================

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "planner", cmd.Use, "Root command should be 'planner'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Name()] = true
	}
	assert.Len(t, commandNames, 3, "Should have 3 subcommands")
	assert.True(t, commandNames["serve"], "Should have 'serve' command")
	assert.True(t, commandNames["assess"], "Should have 'assess' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/planner.yaml", configFlag.DefValue)
}

func TestBuildAssessCommand(t *testing.T) {
	cmd := buildAssessCommand()

	assert.Equal(t, "assess", cmd.Use)
	missionFlag := cmd.Flags().Lookup("mission")
	require.NotNil(t, missionFlag, "Should have --mission flag")
	assert.Equal(t, "m", missionFlag.Shorthand)
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildServeAndStatusCommands(t *testing.T) {
	serveCmd := buildServeCommand()
	assert.Equal(t, "serve", serveCmd.Use)
	assert.Contains(t, serveCmd.Short, "Start")
	assert.NotNil(t, serveCmd.RunE)

	statusCmd := buildStatusCommand()
	assert.Equal(t, "status", statusCmd.Use)
	assert.Contains(t, statusCmd.Short, "status")
	assert.NotNil(t, statusCmd.RunE)
}

// ============================================================================
// Configuration
// ============================================================================

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9000"
  grpc_addr: ":9001"
  shutdown_timeout: 3s

store:
  driver: file
  path: "./missions.json"
  active_units: 4

events:
  redis_url: "redis://localhost:6379/0"
  stream: "planning"
  max_len: 1000

metrics:
  enabled: true
  port: 9102

log:
  level: debug
  format: json
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err, "loadConfig should not return an error")

	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9001", cfg.Server.GRPCAddr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "./missions.json", cfg.Store.Path)
	require.NotNil(t, cfg.Store.ActiveUnits)
	assert.Equal(t, 4, *cfg.Store.ActiveUnits)

	assert.Equal(t, "redis://localhost:6379/0", cfg.Events.RedisURL)
	assert.Equal(t, "planning", cfg.Events.Stream)
	assert.Equal(t, int64(1000), cfg.Events.MaxLen)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9102, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err, "Empty YAML file should parse without error")

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Nil(t, cfg.Store.ActiveUnits)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
store:
  driver: "memory"
  invalid yaml structure
    broken indentation
`))

	assert.Error(t, err)
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown driver", "store:\n  driver: etcd\n", "unknown store driver"},
		{"file without path", "store:\n  driver: file\n  path: \"\"\n", "store.path"},
		{"mysql without dsn", "store:\n  driver: mysql\n", "store.dsn"},
		{"negative units", "store:\n  active_units: -1\n", "active_units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envMySQLDSN, "")
			_, err := resolveConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveConfig_DSNFromEnvironment(t *testing.T) {
	t.Setenv(envMySQLDSN, "planner:secret@tcp(db:3306)/planner")
	t.Setenv(envLogLevel, "debug")

	cfg, err := resolveConfig(writeConfig(t, "store:\n  driver: mysql\n"))
	require.NoError(t, err, "the DSN may come from the environment only")

	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, "planner:secret@tcp(db:3306)/planner", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		envMySQLDSN: "planner:secret@tcp(db:3306)/planner",
		envRedisURL: "redis://cache:6379/1",
		envHTTPAddr: ":7070",
		envLogLevel: "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := defaultConfig()
	cfg.applyEnv(lookup)

	assert.Equal(t, "planner:secret@tcp(db:3306)/planner", cfg.Store.DSN)
	assert.Equal(t, "redis://cache:6379/1", cfg.Events.RedisURL)
	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
	assert.Equal(t, "info", cfg.Log.Level, "empty override keeps the file value")
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PLANNER_TEST_ONLY_VALUE=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("PLANNER_TEST_ONLY_VALUE") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv("PLANNER_TEST_ONLY_VALUE"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "mission", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, 7.0, line["mission"])

	buf.Reset()
	newLogger(&buf, "nonsense", "text").Debug("dropped")
	assert.Empty(t, buf.String(), "unknown levels fall back to info")
}

// ============================================================================
// Commands
// ============================================================================

func TestAssessCommand(t *testing.T) {
	storePath := seedStore(t)
	cfgPath := writeConfig(t, "store:\n  driver: file\n  path: "+storePath+"\n")

	var out bytes.Buffer
	cmd := BuildCLI()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"assess", "-c", cfgPath, "--mission", "1"})
	require.NoError(t, cmd.Execute())

	var a struct {
		MissionID       int64    `json:"mission_id"`
		RequiredUnitIDs []int64  `json:"required_unit_ids"`
		ReadinessScore  float64  `json:"readiness_score"`
		RiskFactors     []string `json:"risk_factors"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &a), out.String())

	// assault needs three units, the roster has one active
	assert.Equal(t, int64(1), a.MissionID)
	assert.Empty(t, a.RequiredUnitIDs)
	assert.Contains(t, a.RiskFactors, "Insufficient active units available: 1 available, 3 required")
	assert.InDelta(t, 0.5, a.ReadinessScore, 1e-9)
}

func TestAssessCommandStaticUnits(t *testing.T) {
	storePath := seedStore(t)
	cfgPath := writeConfig(t, "store:\n  driver: file\n  path: "+storePath+"\n  active_units: 10\n")

	var out bytes.Buffer
	cmd := BuildCLI()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"assess", "-c", cfgPath, "-m", "1"})
	require.NoError(t, cmd.Execute())

	var a struct {
		RequiredUnitIDs []int64 `json:"required_unit_ids"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &a))
	assert.Equal(t, []int64{1, 2, 3}, a.RequiredUnitIDs)
}

func TestAssessUnknownMission(t *testing.T) {
	cfg := defaultConfig()
	err := assess(context.Background(), &bytes.Buffer{}, cfg, 42)
	assert.ErrorIs(t, err, types.ErrMissionNotFound)
}

func TestShowStatus(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Driver = "file"
	cfg.Store.Path = seedStore(t)
	cfg.Metrics.Enabled = true

	var out bytes.Buffer
	require.NoError(t, showStatus(context.Background(), &out, cfg))

	text := out.String()
	assert.Contains(t, text, "Mission Planner Status")
	assert.Contains(t, text, "Store Driver:  file")
	assert.Contains(t, text, "Total:         2")
	assert.Regexp(t, `planning:\s+1`, text)
	assert.Regexp(t, `active:\s+1`, text)
	assert.Contains(t, text, "Active Units:  1")
	assert.Contains(t, text, "http://localhost:9090/metrics")
}

func TestShowStatusBadStore(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Driver = "file"
	cfg.Store.Path = filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(cfg.Store.Path, []byte("{"), 0644))

	err := showStatus(context.Background(), &bytes.Buffer{}, cfg)
	assert.ErrorIs(t, err, snapshot.ErrCorruptedSnapshot)
}
