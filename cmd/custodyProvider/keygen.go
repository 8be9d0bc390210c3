package main

import (
	"fmt"
	"os"
	"path/filepath"

	internalAws "github.com/Layr-Labs/custody-web3-provider/internal/aws"
	"github.com/Layr-Labs/custody-web3-provider/internal/keyGenerator"
	"github.com/Layr-Labs/custody-web3-provider/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/custody-web3-provider/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/custody-web3-provider/pkg/logger"
	"github.com/urfave/cli/v2"
)

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Create a custody API signing key and the CSR to register it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Key name, also used as the KMS alias",
				Value: "custody-api",
			},
			&cli.StringFlag{
				Name:  "common-name",
				Usage: "CSR subject common name",
				Value: "custody-web3-provider",
			},
			&cli.StringFlag{
				Name:  "out-dir",
				Usage: "Directory receiving <name>.key and <name>.csr",
				Value: ".",
			},
			&cli.BoolFlag{
				Name:  "kms",
				Usage: "Create the key in AWS KMS instead of locally",
			},
			&cli.StringFlag{
				Name:  "environment",
				Usage: "Environment tag for KMS keys",
				Value: "production",
			},
			&cli.IntFlag{
				Name:   "bits",
				Value:  keyGenerator.DefaultKeyBits,
				Hidden: true,
			},
		},
		Action: runKeygen,
	}
}

func runKeygen(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	var generator keyGenerator.IKeyGenerator
	if c.Bool("kms") {
		awsCfg, err := internalAws.LoadAWSConfig(c.Context, c.String("aws-region"))
		if err != nil {
			return err
		}
		generator = awsKms.NewAWSKMSKeyGenerator(awsCfg, c.String("environment"), l)
	} else {
		generator = localKeyGenerator.NewLocalKeyGenerator(c.Int("bits"), l)
	}

	key, err := generator.GenerateApiKey(c.Context, c.String("name"), c.String("common-name"))
	if err != nil {
		return err
	}

	outDir := c.String("out-dir")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	csrPath := filepath.Join(outDir, c.String("name")+".csr")
	if err := os.WriteFile(csrPath, key.CsrPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write CSR: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "csr: %s\n", csrPath)

	if len(key.PrivateKeyPEM) > 0 {
		keyPath := filepath.Join(outDir, c.String("name")+".key")
		if err := os.WriteFile(keyPath, key.PrivateKeyPEM, 0o600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "private key: %s\n", keyPath)
	} else {
		fmt.Fprintf(c.App.Writer, "kms key id: %s\n", key.KeyId)
	}
	return nil
}
