// File: cmd/server/main.go
// quiznet server - entrypoint

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiznet/internal/account"
	"quiznet/internal/config"
	"quiznet/internal/history"
	"quiznet/internal/operator"
	"quiznet/internal/presence"
	"quiznet/internal/question"
	"quiznet/internal/server"
	"quiznet/internal/session"
)

const questionsFileDefault = "data/questions.json"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("init failure: %v", err)
		os.Exit(1)
	}
	cfg.LogSummary()

	bank, err := question.LoadBank(questionsFileDefault)
	if err != nil {
		log.Printf("init failure: %v", err)
		os.Exit(1)
	}
	log.Printf("loaded %d theme(s)", len(bank.Themes()))

	accounts := account.NewStore(0, account.NewFilePersister(cfg.AccountsFile))
	if err := accounts.Load(); err != nil {
		log.Printf("init failure: %v", err)
		os.Exit(1)
	}

	var hist *history.Store
	histStore, err := history.Open(history.Config{
		Type: cfg.DBType,
		Name: cfg.DBName,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		User: cfg.DBUser,
		Pass: cfg.DBPassword,
	})
	if err != nil {
		log.Printf("history store unavailable, continuing without it: %v", err)
	} else {
		hist = histStore
	}

	var presenceCache *presence.Cache
	if cfg.RedisEnabled {
		presenceCache = presence.New(presence.Config{Host: cfg.RedisHost, Port: cfg.RedisPort, DB: cfg.RedisDB})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := presenceCache.Ping(pingCtx)
		pingCancel()
		if err != nil {
			log.Printf("redis unavailable, continuing without presence cache: %v", err)
			presenceCache = nil
		}
	}

	state := server.NewState(cfg.ServerName, accounts, nil)
	engine := session.NewEngine(bank, state, state)
	if hist != nil {
		engine = engine.WithHistory(hist)
	}
	if presenceCache != nil {
		engine = engine.WithPresence(presenceCache)
		state.Presence = presenceCache
	}
	state.Engine = engine

	dispatcher := server.NewDispatcher(state, bank)
	listener := server.NewListener(state, dispatcher)
	discovery := server.NewDiscovery(cfg.ServerName, cfg.TCPPort)

	var console *operator.Console
	if cfg.OperatorEnabled {
		console, err = operator.New(cfg.ServerName, cfg.OperatorSecret, cfg.OperatorQRPath, engine, state)
		if err != nil {
			log.Printf("operator console unavailable: %v", err)
			console = nil
		}
	}

	tcpAddr := fmt.Sprintf(":%d", cfg.TCPPort)
	udpAddr := fmt.Sprintf(":%d", cfg.UDPPort)

	errCh := make(chan error, 3)
	go func() {
		log.Printf("game transport listening on %s", tcpAddr)
		if err := listener.Serve(tcpAddr); err != nil {
			errCh <- fmt.Errorf("tcp listener: %w", err)
		}
	}()
	go func() {
		log.Printf("discovery responder listening on %s", udpAddr)
		if err := discovery.Serve(udpAddr); err != nil {
			errCh <- fmt.Errorf("udp discovery: %w", err)
		}
	}()
	if console != nil {
		operatorAddr := fmt.Sprintf(":%d", cfg.OperatorPort)
		go func() {
			log.Printf("operator console listening on %s", operatorAddr)
			if err := console.Serve(operatorAddr); err != nil {
				errCh <- fmt.Errorf("operator console: %w", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal: %v", sig)
		performGracefulShutdown(state, listener, discovery, console, hist, presenceCache, cfg, sigCh)
	case err := <-errCh:
		log.Printf("init failure: %v", err)
		closeResources(hist, presenceCache)
		os.Exit(1)
	}
}

// closeResources closes the optional collaborators opened in main, if
// present. Called explicitly on every exit path instead of via defer,
// since performGracefulShutdown always ends in os.Exit and deferred
// functions registered in main never run past that (SPEC_FULL.md §4.12
// step 4).
func closeResources(hist *history.Store, presenceCache *presence.Cache) {
	if hist != nil {
		hist.Close()
	}
	if presenceCache != nil {
		presenceCache.Close()
	}
}

// performGracefulShutdown mirrors the teacher's staged shutdown sequence
// (cmd/server/main.go's performGracefulShutdown), adapted to quiznet's
// listeners: new connections are refused first, then every connected
// player is notified over its still-open connection. A second signal
// during shutdown forces an immediate exit (spec.md §6).
func performGracefulShutdown(state *server.State, listener *server.Listener, discovery *server.Discovery, console *operator.Console, hist *history.Store, presenceCache *presence.Cache, cfg *config.Config, sigCh <-chan os.Signal) {
	done := make(chan struct{})
	go func() {
		log.Println("[1/4] stopping new connections...")
		listener.Close()
		discovery.Close()
		if console != nil {
			console.Close()
		}

		log.Println("[2/4] notifying connected players...")
		state.BroadcastAll(session.ShutdownEvent{Action: "server/shutdown", Message: "server is shutting down"})

		log.Println("[3/4] waiting for in-flight requests to drain...")
		time.Sleep(500 * time.Millisecond)

		log.Println("[4/4] closing history store and presence cache...")
		closeResources(hist, presenceCache)

		log.Println("shutdown complete")
		close(done)
	}()

	select {
	case <-done:
		os.Exit(0)
	case <-sigCh:
		log.Println("second signal received, forcing immediate exit")
		closeResources(hist, presenceCache)
		os.Exit(1)
	case <-time.After(time.Duration(cfg.ShutdownTimeoutSecs) * time.Second):
		log.Println("graceful shutdown timed out, forcing exit")
		closeResources(hist, presenceCache)
		os.Exit(1)
	}
}
