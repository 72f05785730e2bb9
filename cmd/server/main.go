package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/certreg/sbt-registry-backend/authz"
	"github.com/certreg/sbt-registry-backend/cmd/flags"
	"github.com/certreg/sbt-registry-backend/docstore"
	"github.com/certreg/sbt-registry-backend/httpserver"
	"github.com/certreg/sbt-registry-backend/interfaces"
	"github.com/certreg/sbt-registry-backend/ledger"
	"github.com/certreg/sbt-registry-backend/metastore"
	"github.com/certreg/sbt-registry-backend/registry"
)

var serverFlags = append([]cli.Flag{
	flags.RpcAddrFlag,
	flags.ContractAddrFlag,
	flags.PrivateKeyFlag,
	flags.ListenAddrFlag,
	flags.ConfirmTimeoutFlag,
	flags.ResyncIntervalFlag,
	flags.DocumentStoreFlag,
	flags.MetadataDirFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "sbt-registry-server",
		Usage: "Serve the soulbound certificate registry API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
			listenAddr := cCtx.String(flags.ListenAddrFlag.Name)
			privateKeyHex := cCtx.String(flags.PrivateKeyFlag.Name)
			confirmTimeout := time.Duration(cCtx.Int64(flags.ConfirmTimeoutFlag.Name)) * time.Second
			resyncInterval := time.Duration(cCtx.Int64(flags.ResyncIntervalFlag.Name)) * time.Second

			contractAddr, err := interfaces.ParseAccount(cCtx.String(flags.ContractAddrFlag.Name))
			if err != nil {
				logger.Error("Invalid contract address", "err", err)
				return err
			}

			if privateKeyHex == "" {
				logger.Error("private-key is required to act as a session account")
				return errors.New("private-key is required")
			}

			privateKey, err := crypto.HexToECDSA(privateKeyHex)
			if err != nil {
				logger.Error("Invalid private key", "err", err)
				return err
			}
			sessionAccount := crypto.PubkeyToAddress(privateKey.PublicKey)

			// Connect to the ledger
			logger.Info("Connecting to ledger RPC", "address", rpcAddress)
			ethClient, err := ethclient.Dial(rpcAddress)
			if err != nil {
				logger.Error("Failed to dial RPC", "err", err)
				return err
			}

			chainID, err := ethClient.ChainID(cCtx.Context)
			if err != nil {
				logger.Error("Failed to read chain ID", "err", err)
				return err
			}

			auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
			if err != nil {
				logger.Error("Failed to create transactor", "err", err)
				return err
			}

			ledgerClient, err := ledger.NewClient(ethClient, ethClient, contractAddr, logger)
			if err != nil {
				logger.Error("Failed to create ledger client", "err", err)
				return err
			}
			ledgerClient.SetTransactOpts(auth)
			ledgerClient.SetConfirmationTimeout(confirmTimeout)

			guard := authz.NewGuard(ledgerClient, sessionAccount, logger)
			reg := registry.New(ledgerClient, guard, logger)
			probe := ledger.NewStatusProbe(ledgerClient, logger)

			// Local caches
			backend, err := docstore.NewFactory(logger).BackendFor(cCtx.String(flags.DocumentStoreFlag.Name))
			if err != nil {
				logger.Error("Failed to create document backend", "err", err)
				return err
			}
			logger.Info("Document store ready", "backend", backend.Name(), "uri", backend.LocationURI())
			documents := docstore.New(backend, logger)

			metadata, err := metastore.New(cCtx.String(flags.MetadataDirFlag.Name), logger)
			if err != nil {
				logger.Error("Failed to create metadata store", "err", err)
				return err
			}

			// Populate the credential set before serving. A failure is not
			// fatal; the periodic loop keeps retrying.
			if err := reg.Resync(cCtx.Context); err != nil {
				logger.Warn("Initial resync failed", "err", err)
			}

			role, err := guard.CurrentRole(cCtx.Context)
			if err != nil {
				logger.Warn("Could not derive session role", "err", err)
			} else {
				logger.Info("Session established",
					"account", sessionAccount.Hex(),
					"role", role.String(),
					"contract", contractAddr.Hex())
			}

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			handler := httpserver.NewHandler(reg, probe, ledgerClient, guard, documents, metadata, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			resyncCtx, stopResync := context.WithCancel(context.Background())
			go reg.RunResyncLoop(resyncCtx, resyncInterval)

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			stopResync()
			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
