package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/config"
	"github.com/Layr-Labs/custody-web3-provider/pkg/logger"
	"github.com/Layr-Labs/custody-web3-provider/pkg/provider"
	"github.com/Layr-Labs/custody-web3-provider/pkg/rpcServer"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "custody-provider",
		Usage: "Ethereum JSON-RPC provider backed by a custody signing service",
		Description: `Serves Ethereum JSON-RPC requests and delegates every signing operation
to a remote custody service. Transactions and messages are submitted as custody
requests and polled until they are completed, rejected or failed.`,
		Version: "1.0.0",
		Flags:   providerFlags(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the JSON-RPC HTTP server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   8545,
						Usage:   "HTTP server port",
						EnvVars: []string{config.EnvCustodyServerPort},
					},
				},
				Action: runServe,
			},
			{
				Name:  "request",
				Usage: "Send a single JSON-RPC request and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "method",
						Aliases:  []string{"m"},
						Usage:    "JSON-RPC method, e.g. personal_sign",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "params",
						Usage: "JSON array of params",
						Value: "[]",
					},
				},
				Action: runRequest,
			},
			{
				Name:   "accounts",
				Usage:  "List the addresses the custody vault accounts can sign for",
				Action: runAccounts,
			},
			keygenCommand(),
		},
	}
}

type session struct {
	logger   *zap.Logger
	provider *provider.Provider
}

func (s *session) close() {
	s.provider.Close()
	_ = s.logger.Sync()
}

func newSession(c *cli.Context) (*session, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := parseProviderConfig(c)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	p, err := provider.NewProviderFromConfig(c.Context, cfg, l)
	if err != nil {
		return nil, err
	}
	return &session{logger: l, provider: p}, nil
}

func runServe(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpcServer.NewServer(s.provider, uint64(s.provider.Network().ChainId), &rpcServer.Config{Port: c.Int("port")}, s.logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	s.logger.Sugar().Infow("Shutting down JSON-RPC server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func runRequest(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	params := json.RawMessage(c.String("params"))
	if !json.Valid(params) {
		return fmt.Errorf("params must be valid JSON")
	}

	res, err := s.provider.Request(c.Context, types.RequestArguments{Method: c.String("method"), Params: params})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

func runAccounts(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.provider.Request(c.Context, types.RequestArguments{Method: "eth_accounts"})
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	addresses, _ := res.([]string)
	for _, a := range addresses {
		if _, err := fmt.Fprintln(c.App.Writer, a); err != nil {
			return err
		}
	}
	return nil
}
