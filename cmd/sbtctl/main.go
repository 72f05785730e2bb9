package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/certreg/sbt-registry-backend/authz"
	"github.com/certreg/sbt-registry-backend/cmd/flags"
	"github.com/certreg/sbt-registry-backend/interfaces"
	"github.com/certreg/sbt-registry-backend/ledger"
	"github.com/certreg/sbt-registry-backend/registry"
)

var flagAccount = &cli.StringFlag{
	Name:  "account",
	Usage: "account to query, defaults to the session account",
}

func main() {
	app := &cli.App{
		Name:  "sbtctl",
		Usage: "Operate on soulbound certificates directly against the ledger",
		Flags: []cli.Flag{
			flags.RpcAddrFlag,
			flags.ContractAddrFlag,
			flags.PrivateKeyFlag,
			flags.ConfirmTimeoutFlag,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
			flags.LogServiceFlag,
		},
		Commands: []*cli.Command{
			{
				Name:      "mint",
				Usage:     "Issue a new certificate for a holder (issuer only)",
				ArgsUsage: "<holder-address>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.mint(cCtx)
				},
			},
			{
				Name:      "approve",
				Usage:     "Acknowledge a certificate as its holder",
				ArgsUsage: "<token-id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.approve(cCtx)
				},
			},
			{
				Name:      "burn",
				Usage:     "Permanently revoke a certificate (issuer only)",
				ArgsUsage: "<token-id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.burn(cCtx)
				},
			},
			{
				Name:  "list",
				Usage: "List certificate IDs held by an account",
				Flags: []cli.Flag{flagAccount},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.list(cCtx)
				},
			},
			{
				Name:      "status",
				Usage:     "Probe the existence and approval flags of a certificate",
				ArgsUsage: "<token-id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.status(cCtx)
				},
			},
			{
				Name:      "holder-of",
				Usage:     "Show the holder of a certificate",
				ArgsUsage: "<token-id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.holderOf(cCtx)
				},
			},
			{
				Name:  "balance-of",
				Usage: "Show the number of certificates held by an account",
				Flags: []cli.Flag{flagAccount},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.balanceOf(cCtx)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) (*clientState, error) {
	logger := flags.SetupLogger(cCtx)

	contractAddr, err := interfaces.ParseAccount(cCtx.String(flags.ContractAddrFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not parse contract address: %w", err)
	}

	ethClient, err := ethclient.Dial(cCtx.String(flags.RpcAddrFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not dial RPC: %w", err)
	}

	ledgerClient, err := ledger.NewClient(ethClient, ethClient, contractAddr, logger)
	if err != nil {
		return nil, err
	}
	ledgerClient.SetConfirmationTimeout(
		time.Duration(cCtx.Int64(flags.ConfirmTimeoutFlag.Name)) * time.Second)

	state := &clientState{ledger: ledgerClient, probe: ledger.NewStatusProbe(ledgerClient, logger)}

	// Mutating commands need a signer; read commands work without one.
	if keyHex := cCtx.String(flags.PrivateKeyFlag.Name); keyHex != "" {
		privateKey, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("could not parse private key: %w", err)
		}

		chainID, err := ethClient.ChainID(cCtx.Context)
		if err != nil {
			return nil, fmt.Errorf("could not read chain ID: %w", err)
		}

		auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
		if err != nil {
			return nil, err
		}
		ledgerClient.SetTransactOpts(auth)

		state.session = crypto.PubkeyToAddress(privateKey.PublicKey)
		state.guard = authz.NewGuard(ledgerClient, state.session, logger)
		state.registry = registry.New(ledgerClient, state.guard, logger)
	}

	return state, nil
}

type clientState struct {
	ledger   *ledger.Client
	probe    *ledger.StatusProbe
	registry *registry.Registry
	guard    *authz.Guard
	session  ethcommon.Address
}

func (c *clientState) requireSigner() error {
	if c.registry == nil {
		return fmt.Errorf("%w: private-key is required for this command", interfaces.ErrConnectionUnavailable)
	}
	return nil
}

func (c *clientState) queryAccount(cCtx *cli.Context) (ethcommon.Address, error) {
	if s := cCtx.String(flagAccount.Name); s != "" {
		return interfaces.ParseAccount(s)
	}
	if c.session == (ethcommon.Address{}) {
		return ethcommon.Address{}, fmt.Errorf("%w: pass --account or --private-key", interfaces.ErrValidation)
	}
	return c.session, nil
}

func tokenIDArg(cCtx *cli.Context) (interfaces.TokenID, error) {
	if cCtx.NArg() != 1 {
		return 0, fmt.Errorf("%w: expected exactly one token id argument", interfaces.ErrValidation)
	}
	return interfaces.NewTokenIDFromString(cCtx.Args().First())
}

func printJSON(v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func (c *clientState) mint(cCtx *cli.Context) error {
	if err := c.requireSigner(); err != nil {
		return err
	}
	if cCtx.NArg() != 1 {
		return fmt.Errorf("%w: expected exactly one holder address argument", interfaces.ErrValidation)
	}

	holder, err := interfaces.ParseAccount(cCtx.Args().First())
	if err != nil {
		return err
	}

	if err := c.registry.Mint(cCtx.Context, holder); err != nil {
		return fmt.Errorf("mint failed: %w", err)
	}
	return printJSON(map[string]any{"holder": holder.Hex(), "status": "minted"})
}

func (c *clientState) approve(cCtx *cli.Context) error {
	if err := c.requireSigner(); err != nil {
		return err
	}
	id, err := tokenIDArg(cCtx)
	if err != nil {
		return err
	}

	// The registry approves only IDs in its known set; populate it first.
	if err := c.registry.Resync(cCtx.Context); err != nil {
		return err
	}
	if err := c.registry.Approve(cCtx.Context, id); err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}
	return printJSON(map[string]any{"token_id": id, "status": "approved"})
}

func (c *clientState) burn(cCtx *cli.Context) error {
	if err := c.requireSigner(); err != nil {
		return err
	}
	id, err := tokenIDArg(cCtx)
	if err != nil {
		return err
	}

	if err := c.registry.Burn(cCtx.Context, id); err != nil {
		return fmt.Errorf("burn failed: %w", err)
	}
	return printJSON(map[string]any{"token_id": id, "status": "burned"})
}

func (c *clientState) list(cCtx *cli.Context) error {
	account, err := c.queryAccount(cCtx)
	if err != nil {
		return err
	}

	ids, err := c.ledger.CredentialsOf(cCtx.Context, account)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	return printJSON(map[string]any{"account": account.Hex(), "certificates": ids})
}

func (c *clientState) status(cCtx *cli.Context) error {
	id, err := tokenIDArg(cCtx)
	if err != nil {
		return err
	}

	status, err := c.probe.Status(cCtx.Context, id)
	if err != nil {
		return fmt.Errorf("status probe failed: %w", err)
	}
	return printJSON(map[string]any{"token_id": id, "exists": status.Exists, "approved": status.Approved})
}

func (c *clientState) holderOf(cCtx *cli.Context) error {
	id, err := tokenIDArg(cCtx)
	if err != nil {
		return err
	}

	holder, err := c.ledger.HolderOf(cCtx.Context, id)
	if err != nil {
		return fmt.Errorf("holder lookup failed: %w", err)
	}
	return printJSON(map[string]any{"token_id": id, "holder": holder.Hex()})
}

func (c *clientState) balanceOf(cCtx *cli.Context) error {
	account, err := c.queryAccount(cCtx)
	if err != nil {
		return err
	}

	balance, err := c.ledger.BalanceOf(cCtx.Context, account)
	if err != nil {
		return fmt.Errorf("balance lookup failed: %w", err)
	}
	return printJSON(map[string]any{"account": account.Hex(), "balance": balance})
}
