package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name readiness is published under. The empty service name
// mirrors it for probes that ask about the whole server.
const Service = "talkml.Dialogue"

// Reporter publishes readiness through the standard gRPC health service.
type Reporter struct {
	srv *grpchealth.Server
	log *zap.Logger
}

func NewReporter(log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reporter{srv: grpchealth.NewServer(), log: log.Named("health")}
	r.Set(false)
	return r
}

func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

func (r *Reporter) Set(ready bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	r.srv.SetServingStatus(Service, st)
	r.srv.SetServingStatus("", st)
}

// Watch runs checks every interval and publishes SERVING while all pass. It
// returns when ctx is done, leaving every service NOT_SERVING.
func (r *Reporter) Watch(ctx context.Context, interval time.Duration, checks ...Check) {
	t := time.NewTicker(interval)
	defer t.Stop()
	last := false
	for {
		st := run(ctx, checks)
		if st.OK != last {
			r.log.Info("readiness changed", zap.Bool("ready", st.OK), zap.Stringer("status", st))
			last = st.OK
		}
		r.Set(st.OK)
		select {
		case <-ctx.Done():
			r.srv.Shutdown()
			return
		case <-t.C:
		}
	}
}
