// Command fixgw runs the FIX 4.2 session gateway: it dials or accepts
// counterparty connections, supervises reconnection, writes a per-
// counterparty audit log, runs housekeeping on a cron schedule, and
// serves the admin/status HTTP API.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/glennswest/fixgw/config"
	"github.com/glennswest/fixgw/discovery"
	"github.com/glennswest/fixgw/fix"
	"github.com/glennswest/fixgw/housekeeping"
	"github.com/glennswest/fixgw/logs"
	"github.com/glennswest/fixgw/server"
	"github.com/glennswest/fixgw/session"
)

var Version = "1.0.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "fixgw",
		Short: "FIX 4.2 session gateway",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: connect counterparties, serve the admin API, run housekeeping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServe(configPath string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.Logs.Path, 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.Logs.Path+"/fixgw.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
	}

	log.Infof("starting fixgw v%s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	auditLog := logs.NewWriter(cfg.Logs.Path, cfg.Logs.RetentionDays)
	defer auditLog.Close()

	manager := session.NewManager(auditLog, cfg.Logs.Path, cfg.Throttle.BytesPerSec, cfg.Throttle.Burst)

	registry := discovery.NewRegistry(cfg.Discovery.DirectoryURL)
	for _, entry := range cfg.Counterparties {
		registry.Add(discovery.Counterparty{
			Name: entry.Name, Host: entry.Host, Port: entry.Port, Role: entry.Role,
			SenderCompID: entry.SenderCompID, TargetCompID: entry.TargetCompID,
			HeartBtInt: entry.HeartBtInt, Enabled: true,
		})
	}
	// Only initiator-role counterparties are (re)started here: an acceptor
	// needs a bound listener set up ahead of time, which doesn't fit the
	// discovery hot-reload model, so acceptor entries are wired once at
	// startup in listenAcceptors instead.
	registry.OnChange(func(counterparties map[string]*discovery.Counterparty) {
		for _, cp := range counterparties {
			if cp.Role != "initiator" {
				continue
			}
			if !cp.Enabled {
				manager.Stop(cp.Name)
				continue
			}
			manager.Start(cp.Name, cp.Host, cp.Port, fix.Initiator, cp.SenderCompID, cp.TargetCompID, cp.HeartBtInt)
		}
	})
	go registry.Run(ctx)

	listenAcceptors(ctx, cfg, manager)

	jobs := []housekeeping.Job{
		{Name: "log-rotation", Schedule: cfg.Housekeeping.LogRotationSchedule, Run: func() {
			for name := range manager.All() {
				if auditLog.CanRotate(name) {
					if err := auditLog.Rotate(name); err != nil {
						log.Warnf("log rotation failed for %s: %v", name, err)
					}
				}
			}
		}},
		{Name: "log-cleanup", Schedule: cfg.Housekeeping.CleanupSchedule, Run: func() {
			auditLog.Cleanup()
		}},
	}
	scheduler, err := housekeeping.NewScheduler(jobs)
	if err != nil {
		return fmt.Errorf("building housekeeping scheduler: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop(context.Background())

	srv := server.New(cfg.Admin.Port, registry, manager, auditLog, Version)
	return srv.Run(ctx)
}

// listenAcceptors starts a TCP listener for every statically configured
// acceptor-role counterparty, handing each accepted connection to the
// manager's auditing application the same way an initiator dial does.
func listenAcceptors(ctx context.Context, cfg *config.Config, manager *session.Manager) {
	for _, entry := range cfg.Counterparties {
		if entry.Role != "acceptor" {
			continue
		}
		addr := fmt.Sprintf(":%d", entry.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			log.Errorf("failed to listen for %s on %s: %v", entry.Name, addr, err)
			continue
		}
		log.Infof("listening for %s on %s", entry.Name, addr)

		go func(entry config.CounterpartyEntry, ln net.Listener) {
			go func() {
				<-ctx.Done()
				ln.Close()
			}()
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				log.Infof("accepted connection for %s from %s", entry.Name, conn.RemoteAddr())
				manager.Accept(entry.Name, entry.Host, entry.Port, entry.SenderCompID, entry.TargetCompID, entry.HeartBtInt, conn)
			}
		}(entry, ln)
	}
}
