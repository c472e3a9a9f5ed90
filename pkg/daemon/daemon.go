package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/config"
	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/runner"
)

var (
	conf  config.Config
	store *potcar.Store
	jobs  *runner.Runner
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.PUT("/vasp-command", setVaspCommand)
	router.PUT("/with-mpi", setWithMPI)
	router.PUT("/mpi-procs", setMPIProcs)
	router.GET("/potentials", listPotentials)
	router.GET("/potentials/:id", getPotential)
	router.GET("/potentials/:id/contents", getPotentialContents)
	router.POST("/potentials", addPotential)
	router.POST("/potentials/scan", scanPotentialFamily)
	router.POST("/potentials/family", addPotentialFamily)
	router.GET("/jobs", listJobs)
	router.GET("/jobs/:id", getJob)
	router.GET("/jobs/:id/outputs", getJobOutputs)
	router.POST("/jobs", submitJob)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	store, err = potcar.Open(conf.PotentialDir())
	if err != nil {
		logrus.Fatalf("failed to open potential store: %v", err)
	}

	if err := os.MkdirAll(conf.WorkDir(), 0755); err != nil {
		logrus.Fatalf("failed to create work dir: %v", err)
	}

	jobs = runner.New(conf, store)
	runnerCtx, stopRunner := context.WithCancel(context.Background())
	go jobs.Start(runnerCtx)

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping job runner")
	stopRunner()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
