package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/cafgo/caf/basp"
	baseactor "github.com/cafgo/caf/internal/baselib/actor"
	"github.com/cafgo/caf/internal/build"
	"github.com/cafgo/caf/internal/nodeadmin"
	"github.com/cafgo/caf/scheduler"
	"github.com/cafgo/caf/system"
)

func main() {
	var (
		listenAddr     = flag.String("listen", "", "BASP listen address, e.g. :4242 (empty to disable)")
		peerAddr       = flag.String("peer", "", "BASP peer address to dial on startup (empty to skip)")
		logDir         = flag.String("log-dir", "~/.cafnode/logs", "Directory for log files (empty to disable file logging)")
		maxLogFiles    = flag.Int("max-log-files", build.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileSize = flag.Int("max-log-file-size", build.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
	)
	flag.Parse()

	expandHome := func(path string) string {
		expanded := os.ExpandEnv(path)
		if expanded == path && len(path) > 0 && path[0] == '~' {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("Failed to get home directory: %v", err)
			}
			expanded = home + path[1:]
		}
		return expanded
	}
	logDirExpanded := expandHome(*logDir)

	var logRotator *build.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         logDirExpanded,
			MaxLogFiles:    *maxLogFiles,
			MaxLogFileSize: *maxLogFileSize,
		})
		if err != nil {
			log.Printf("Failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()
			multiWriter := io.MultiWriter(os.Stderr, logRotator)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags)
		}
	}

	log.Printf("cafnode version %s commit=%s go=%s",
		build.Version(), commitInfo(), build.GoVersion)

	// Create btclog handlers for structured subsystem logging, console
	// plus (optionally) the rotating log file.
	var btclogHandlers []btclog.Handler
	consoleHandler := btclog.NewDefaultHandler(os.Stderr)
	btclogHandlers = append(btclogHandlers, consoleHandler)

	if logRotator != nil {
		fileHandler := btclog.NewDefaultHandler(logRotator)
		btclogHandlers = append(btclogHandlers, fileHandler)
		log.Printf("Log file rotation enabled: dir=%s, max_files=%d, max_size=%dMB",
			logDirExpanded, *maxLogFiles, *maxLogFileSize)
	}

	combinedHandler := build.NewHandlerSet(btclogHandlers...)
	rootLogger := btclog.NewSLogger(combinedHandler)

	system.UseLogger(rootLogger.WithPrefix("SYST"))
	scheduler.UseLogger(rootLogger.WithPrefix("SCHD"))
	basp.UseLogger(rootLogger.WithPrefix("BASP"))
	baseactor.UseLogger(rootLogger.WithPrefix("ACTR"))

	// The CAF actor system: mailboxes, the scheduler pool, links/monitors.
	cafSys, err := system.New(system.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create actor system: %v", err)
	}
	log.Printf("Node id: %s", cafSys.NodeID().String())

	// A separate actor.ActorSystem hosting cafnode's own supervisory
	// services (currently just the stats reporter). This is
	// intentionally NOT the same system as cafSys: CAF actors (mailboxes,
	// links, monitors, BASP addressability) and plain Ask/Tell service
	// actors are different object models serving different purposes.
	adminSys := baseactor.NewActorSystem()
	statsRef := nodeadmin.Spawn(adminSys, cafSys)

	// Attach the BASP middleman if requested.
	var mm *basp.Middleman
	if *listenAddr != "" || *peerAddr != "" {
		mm = basp.New(
			basp.DefaultConfig(), cafSys.NodeID(), cafSys,
			cafSys.LocalDeliver(), cafSys.Registry(),
		)
		cafSys.SetRemoteDeliver(mm.SendRemote)
		cafSys.SetResolver(mm)

		if *listenAddr != "" {
			if err := mm.Listen(*listenAddr); err != nil {
				log.Fatalf("Failed to listen for BASP connections: %v", err)
			}
			log.Printf("BASP listening on %s", *listenAddr)
		}
		if *peerAddr != "" {
			if err := mm.Dial(*peerAddr); err != nil {
				log.Printf("Failed to dial BASP peer %s: %v", *peerAddr, err)
			} else {
				log.Printf("BASP dialed peer %s", *peerAddr)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received %v, initiating graceful shutdown (send again to force exit)...", sig)
		cancel()

		sig = <-sigCh
		log.Printf("Received %v again, forcing immediate exit", sig)
		os.Exit(1)
	}()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap, err := nodeadmin.Query(ctx, statsRef)
				if err != nil {
					log.Printf("stats query failed: %v", err)
					continue
				}
				log.Printf("node %s: %d actors, %d registered",
					snap.NodeID, snap.ActorCount, snap.RegisteredCount)
			}
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down...")
	if mm != nil {
		mm.Shutdown()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := cafSys.Shutdown(shutdownCtx); err != nil {
		log.Printf("Actor system shutdown incomplete: %v (some goroutines may have leaked)", err)
	}
	if err := adminSys.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin actor system shutdown incomplete: %v", err)
	}
}

// commitInfo returns the best available commit identifier.
func commitInfo() string {
	if build.Commit != "" {
		return build.Commit
	}
	if build.CommitHash != "" {
		return build.CommitHash
	}
	return "dev"
}
