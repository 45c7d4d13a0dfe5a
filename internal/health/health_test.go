package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"talkml/agent/internal/config"
)

func testConfig(t *testing.T, url string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Script.URL = url
	cfg.Script.DialogueID = "d1"
	cfg.Script.TKMLFile = "script.tkml"
	cfg.Script.Timeout = 2 * time.Second
	return cfg
}

func TestCheckAllReachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	st := CheckAll(context.Background(), testConfig(t, srv.URL))
	assert.True(t, st.OK, st.String())
	require.Len(t, st.Checks, 2)
	assert.Equal(t, "dialogue_config", st.Checks[0].Name)
	assert.Equal(t, "script_backend", st.Checks[1].Name)
	assert.Contains(t, st.String(), "Health: OK")
}

func TestCheckAllFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Script.TKMLFile = ""
	st := CheckAll(context.Background(), cfg, WorkerCheck(func() bool { return false }))
	assert.False(t, st.OK)
	require.Len(t, st.Checks, 3)
	for _, c := range st.Checks {
		assert.False(t, c.OK, c.Name)
		assert.NotEmpty(t, c.Error)
	}
	assert.Contains(t, st.Checks[1].Error, "503")
	assert.True(t, strings.HasPrefix(st.String(), "Health: FAIL"))
}

func TestCheckUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st := CheckAll(context.Background(), testConfig(t, url))
	assert.False(t, st.OK)
	assert.Contains(t, st.Checks[1].Error, "request failed")
}

func TestReporterServesReadiness(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	s := grpc.NewServer()
	rep := NewReporter(nil)
	rep.Register(s)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())

	ready := make(chan bool, 1)
	ready <- true
	var worker bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep.Watch(ctx, 5*time.Millisecond, LoopCheck(func() bool { return true }), WorkerCheck(func() bool {
			select {
			case v := <-ready:
				worker = v
			default:
			}
			return worker
		}))
	}()

	require.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_SERVING }, 2*time.Second, 10*time.Millisecond)
	ready <- false
	require.Eventually(t, func() bool { return status() == healthpb.HealthCheckResponse_NOT_SERVING }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
