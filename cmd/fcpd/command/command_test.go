package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"fcpd/internal/config"
	"fcpd/internal/microservices/tcp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig() *config.Config {
	return &config.Config{
		GoEnv:               "development",
		ListenAddress:       "127.0.0.1",
		PollInterval:        10 * time.Millisecond,
		CallbackDialTimeout: time.Second,
		MessageBurst:        20,
		Document:            "Unnamed",
		Store:               config.StoreMemory,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// startBridge runs a memory-backed bridge until the test ends
func startBridge(t *testing.T, cfg *config.Config) *bridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b, err := newBridge(ctx, cfg, discardLogger())
	require.NoError(t, err)
	require.NoError(t, b.start(ctx))
	t.Cleanup(func() {
		b.shutdown()
		cancel()
	})
	return b
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig()
	store, err := openStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	cfg.Store = "sqlite"
	_, err = openStore(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "unknown store")
}

func TestBridge_OperatorAPI(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPPort = freePort(t)
	b := startBridge(t, cfg)
	_, err := b.doc.AddObject("Part::Box", "Box")
	require.NoError(t, err)

	resp, err := http.Get("http://" + b.httpAddr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + b.httpAddr + "/objects")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"Box"`)
}

func TestBridge_OperatorAPI_Auth(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPPort = freePort(t)
	cfg.AuthSecret = strings.Repeat("k", 32)
	b := startBridge(t, cfg)

	resp, err := http.Get("http://" + b.httpAddr + "/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := tcp.NewAuthService(cfg.AuthSecret).IssueToken("operator", time.Minute)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, "http://"+b.httpAddr+"/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBridge_PeerCloseStopsServer(t *testing.T) {
	b := startBridge(t, testConfig())

	conn, err := net.Dial("tcp", b.srv.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = fmt.Fprint(conn, "close;\n")
	require.NoError(t, err)

	select {
	case <-b.done():
	case <-time.After(2 * time.Second):
		t.Fatal("server still running after close")
	}
	assert.Equal(t, tcp.StateTerminated, b.srv.State())
}

func TestSendCommand(t *testing.T) {
	b := startBridge(t, testConfig())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"send", "--addr", b.srv.Addr(), "1", "str", "hello", "pd"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "1 hello pd\n", out.String())
}

func TestTokenCommand(t *testing.T) {
	{
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })
	}
	t.Setenv("FCPD_CONFIG_FILE", "")
	secret := strings.Repeat("t", 32)
	t.Setenv("FCPD_AUTH_SECRET", secret)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--subject", "patch"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	subject, err := tcp.NewAuthService(secret).ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "patch", subject)
}
