package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/FolioPipe/internal/config"
	"github.com/BTreeMap/FolioPipe/internal/lockfile"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
	"github.com/BTreeMap/FolioPipe/internal/store"
)

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// testConfig loads a configuration confined to a temporary state directory.
func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("FOLIOPIPE_STATE_DIR", t.TempDir())
	t.Setenv("FOLIOPIPE_SESSION_BACKEND", config.BackendMemory)
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	return cfg
}

func TestVersionCmd(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "foliopipe dev")
	assert.Contains(t, out, "commit: none")
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "foliopipe 1.0.0 (commit: abc123, built: 2026-01-01)")
}

func TestRootCmdHelp(t *testing.T) {
	out, _, err := run(t, "", "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "chat", "migrate", "seed", "lookup", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	_, _, err := run(t, "", "--state-dir", t.TempDir(), "--session-backend", "mongo", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown session.backend")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "folio", "XROM-1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"folio":"XROM-1"`)

	buf.Reset()
	logger, err = newLogger(&buf, "debug", "text")
	require.NoError(t, err)
	logger.Debug("Dispatcher created", "workers", 8)
	assert.Contains(t, buf.String(), "Dispatcher created")
	assert.Contains(t, buf.String(), "workers=8")

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestLookupMemoryRecords(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--state-dir", dir, "--records-dsn", "memory", "--session-backend", "memory", "lookup"}

	out, _, err := run(t, "", append(base, "mi", "folio", "es", "xrom", "999")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Folio: XROM-999")
	assert.Contains(t, out, "✅ Terminado")
	assert.NotContains(t, out, "**")

	out, _, err = run(t, "", append(base, "XROM-00000")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Folio no encontrado")
	assert.Contains(t, out, "XROM-00000")

	out, _, err = run(t, "", append(base, "es", "el", "xrom", "0", "0")...)
	require.NoError(t, err)
	assert.Contains(t, out, "es el xrom 0 0")
	assert.NotContains(t, out, "XROM-00")

	out, _, err = run(t, "", append(base, "hola")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No encontré un folio válido")
}

func TestMigrateSeedLookupSQLite(t *testing.T) {
	dir := t.TempDir()
	global := []string{"--state-dir", dir}

	out, _, err := run(t, "", append(global, "migrate")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Session store (sqlite) migrated.")
	assert.Contains(t, out, "Service records migrated.")
	assert.FileExists(t, filepath.Join(dir, config.DefaultSessionDBFileName))
	assert.FileExists(t, filepath.Join(dir, config.DefaultRecordsDBFileName))

	out, _, err = run(t, "", append(global, "seed")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 3 service records.")

	out, _, err = run(t, "", append(global, "lookup", "xrom-abcde")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Folio: XROM-ABCDE")
	assert.Contains(t, out, "En proceso")
}

func TestSeedFromFile(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "services.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`services:
  - folio: xrom 777
    status: ON_HOLD
    reception_date: "2026-02-10"
    service_reason: Cambio de pantalla
    on_hold_reason: Esperando refacción
`), 0o600))

	global := []string{"--state-dir", dir, "--session-backend", "memory"}
	out, _, err := run(t, "", append(global, "seed", "--file", seedPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 1 service records.")

	out, _, err = run(t, "", append(global, "lookup", "XROM-777")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Esperando refacción")
	assert.Contains(t, out, "10/02/2026")
}

func TestSeedRejectsMemoryRecords(t *testing.T) {
	_, _, err := run(t, "", "--state-dir", t.TempDir(), "--records-dsn", "memory", "seed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing would be persisted")
}

func TestChatTranscript(t *testing.T) {
	out, _, err := run(t, "hola\n1\nXROM-999\n3\n",
		"--state-dir", t.TempDir(), "--records-dsn", "memory", "--session-backend", "memory", "chat", "--name", "Tester")
	require.NoError(t, err)

	assert.Contains(t, out, "Ctrl+D")
	assert.Contains(t, out, "Bienvenido a XROM Systems")
	assert.Contains(t, out, "1. Consultar Folio")
	assert.Contains(t, out, "Consulta de Servicio")
	assert.Contains(t, out, "Folio: XROM-999")
	assert.Contains(t, out, "Atención Personalizada XROM Systems")
}

func TestOpenSessionStore(t *testing.T) {
	cfg := testConfig(t, nil)
	s, err := openSessionStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.InMemoryStore{}, s)
	require.NoError(t, s.Close())

	cfg.Session.Backend = config.BackendSQLite
	cfg.Session.DSN = filepath.Join(cfg.StateDir, "nested", "sessions.db")
	s, err = openSessionStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, s)
	require.NoError(t, s.Close())
	assert.FileExists(t, cfg.Session.DSN)

	cfg.Session.Backend = "mongo"
	_, err = openSessionStore(cfg)
	assert.Error(t, err)
}

func TestLockOwner(t *testing.T) {
	assert.Equal(t, "serve", lockOwner(nil))
	assert.Equal(t, "serve whatsapp,telegram",
		lockOwner([]messaging.Platform{messaging.PlatformWhatsApp, messaging.PlatformTelegram}))
}

func TestBuildTransports(t *testing.T) {
	cfg := testConfig(t, nil)
	tr, err := buildTransports(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, tr.services)
	assert.Empty(t, tr.apiOpts)
	tr.close()

	cfg = testConfig(t, map[string]string{
		"FOLIOPIPE_TWILIO_ENABLED":     "true",
		"FOLIOPIPE_TWILIO_ACCOUNT_SID": "AC0000",
		"FOLIOPIPE_TWILIO_AUTH_TOKEN":  "token",
		"FOLIOPIPE_TWILIO_FROM_NUMBER": "+15550001111",
		"FOLIOPIPE_TWILIO_WEBHOOK_URL": "https://bot.example.com/twilio/webhook",
	})
	tr, err = buildTransports(context.Background(), cfg)
	require.NoError(t, err)
	defer tr.close()
	require.Len(t, tr.services, 1)
	assert.Equal(t, messaging.PlatformTwilio, tr.services[0].Platform())
	assert.Len(t, tr.apiOpts, 1)
}

func TestRunServeShutsDown(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"FOLIOPIPE_RECORDS_DSN": "memory",
		"FOLIOPIPE_API_ADDR":    "127.0.0.1:0",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	lockPath := filepath.Join(cfg.StateDir, lockfile.LockFileName)
	require.Eventually(t, func() bool {
		_, err := os.Stat(lockPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.NoFileExists(t, lockPath)
}

func TestRunServeRefusesLockedStateDir(t *testing.T) {
	cfg := testConfig(t, map[string]string{"FOLIOPIPE_RECORDS_DSN": "memory"})

	lock, err := lockfile.AcquireLock(cfg.StateDir, "test")
	require.NoError(t, err)
	defer lock.Release()

	err = runServe(context.Background(), cfg)
	var lockErr *lockfile.LockError
	require.True(t, errors.As(err, &lockErr), "expected LockError, got %v", err)
}
