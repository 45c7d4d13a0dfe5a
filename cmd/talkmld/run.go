package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"talkml/agent/internal/api"
	"talkml/agent/internal/auth"
	"talkml/agent/internal/config"
	"talkml/agent/internal/dialogue"
	"talkml/agent/internal/health"
	"talkml/agent/internal/mailbox"
	"talkml/agent/internal/script"
	"talkml/agent/internal/store"
	"talkml/agent/internal/turn"
	"talkml/agent/internal/types"
	"talkml/agent/internal/workerws"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload the script and run the dialogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, afero.NewOsFs(), logger)
	},
}

func serve(ctx context.Context, cfg config.Config, fs afero.Fs, log *zap.Logger) error {
	a, err := loadAssets(fs, cfg)
	if err != nil {
		return err
	}

	sid := cfg.Server.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	st := store.New()
	if err := st.CreateSession(&types.Session{
		ID:         sid,
		DialogueID: a.dialogueID,
		ScriptURL:  cfg.Script.URL,
		CreatedAt:  time.Now().UTC(),
		Status:     "starting",
	}); err != nil {
		return err
	}
	log = log.With(zap.String("session_id", sid))

	reg := workerws.NewRegistry()
	bridge := workerws.NewBridge(sid, reg, st, cfg.Worker.CommandTimeout, log)
	ctrl := dialogue.New(dialogue.Options{
		SessionID: sid,
		Timing: dialogue.Timing{
			Tick:           cfg.Dialogue.TickInterval,
			NoInput:        cfg.Dialogue.NoInputTimeout,
			NoMatch:        cfg.Dialogue.NoMatchTimeout,
			HeardStability: cfg.Dialogue.HeardStability,
		},
		Grammars: a.grammars,
		Script: script.NewClient(script.Options{
			URL:        cfg.Script.URL,
			Version:    cfg.Script.Version,
			DialogueID: a.dialogueID,
			SessionID:  sid,
			Timeout:    cfg.Script.Timeout,
			Logger:     log,
		}),
		Turns:  turn.NewExecutor(bridge, bridge, bridge, cfg.Dialogue.ListenSettle, log),
		Ready:  bridge.Ready,
		Store:  st,
		Logger: log,
	})

	if err := ctrl.Bootstrap(ctx, a.tkml); err != nil {
		st.SetStatus(sid, "failed")
		return err
	}
	st.SetStatus(sid, "running")
	log.Info("dialogue ready", zap.String("dialogue_id", a.dialogueID), zap.Int("grammars", len(a.grammars.IDs())))

	signer := auth.NewSigner(cfg.Worker.TokenSecret, time.Duration(cfg.Worker.TokenSkewSecs)*time.Second)
	wss := workerws.NewServer(signer, st, reg, func(id string) *mailbox.Inbox {
		if id == sid {
			return ctrl.Inbox()
		}
		return nil
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           logMiddleware(log, api.NewRouter(api.NewHandlers(sid, st, ctrl), wss.HandleWorkerWS)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	gs := grpc.NewServer()
	rep := health.NewReporter(log)
	rep.Register(gs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error {
		rep.Watch(gctx, time.Second,
			health.LoopCheck(ctrl.Running),
			health.WorkerCheck(func() bool { return reg.Connected(sid) }))
		return nil
	})
	g.Go(func() error {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc health starting", zap.String("addr", lis.Addr().String()))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		gs.GracefulStop()
		return nil
	})

	err = g.Wait()
	st.SetStatus(sid, "stopped")
	return err
}

func logMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	log = log.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}
