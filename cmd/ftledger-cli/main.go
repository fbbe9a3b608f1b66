// ftledger-cli is a command-line client for interacting with an ftledgerd node.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/ftledger/config"
	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/rpc"
	"github.com/Klingon-tech/ftledger/internal/rpcclient"
	"github.com/Klingon-tech/ftledger/pkg/types"
)

// cli carries the global flags shared by every command.
type cli struct {
	client *rpcclient.Client
	rpcURL string
	raw    bool // Amounts in base units instead of token units.
	asJSON bool

	decimals *uint8
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	c := &cli{rpcURL: "http://127.0.0.1:" + strconv.Itoa(config.DefaultRPCPort)}

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			c.rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			c.rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--raw":
			c.raw = true
			args = args[1:]
		case args[0] == "--json":
			c.asJSON = true
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	c.client = rpcclient.New(c.rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "info":
		c.cmdInfo()
	case "metadata":
		c.cmdMetadata()
	case "balance":
		c.cmdBalance(cmdArgs)
	case "supply":
		c.cmdSupply()
	case "transfer":
		c.cmdTransfer(cmdArgs)
	case "transfer-call":
		c.cmdTransferCall(cmdArgs)
	case "burn":
		c.cmdBurn(cmdArgs)
	case "register":
		c.cmdRegister(cmdArgs)
	case "unregister":
		c.cmdUnregister(cmdArgs)
	case "storage":
		c.cmdStorage(cmdArgs)
	case "accounts":
		c.cmdAccounts()
	case "audit":
		c.cmdAudit()
	case "version":
		fmt.Printf("ftledger-cli %s\n", config.Version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ftledger-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:%d)
  --raw               Read and print amounts in base units
  --json              Print raw JSON results

Commands:
  info                            Show ledger summary
  metadata                        Show token metadata
  balance <account>               Show account balance
  supply                          Show total supply
  transfer --from <a> --to <b> --amount <n> [--memo <m>]
                                  Transfer tokens
  transfer-call --from <a> --to <b> --amount <n> --msg <payload> [--memo <m>]
                                  Transfer and notify the receiver
  burn --account <a> --amount <n> [--memo <m>]
                                  Destroy tokens
  register --account <a> [--caller <c>] [--deposit <n>]
                                  Register an account (deposit defaults to the fee)
  unregister --account <a> [--force]
                                  Close an account; --force burns its balance
  storage <account>               Show storage deposit held for an account
  accounts                        List registered accounts
  audit                           Verify supply and registry consistency
  version                         Show version
`, config.DefaultRPCPort)
}

// ── amounts ─────────────────────────────────────────────────────────────

// tokenDecimals fetches the token's decimals once.
func (c *cli) tokenDecimals() uint8 {
	if c.decimals != nil {
		return *c.decimals
	}
	var md config.Metadata
	if err := c.client.Call("ft_metadata", nil, &md); err != nil {
		fatal("ft_metadata: %v", err)
	}
	c.decimals = &md.Decimals
	return md.Decimals
}

func (c *cli) amount(s string) types.Amount {
	var (
		a   types.Amount
		err error
	)
	if c.raw {
		a, err = types.ParseAmount(s)
	} else {
		a, err = parseAmount(s, c.tokenDecimals())
	}
	if err != nil {
		fatal("%v", err)
	}
	return a
}

func (c *cli) show(a types.Amount) string {
	if c.raw {
		return a.String()
	}
	return formatAmount(a, c.tokenDecimals())
}

func (c *cli) printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(data))
}

func accountArg(s string) types.AccountID {
	id, err := types.ParseAccountID(s)
	if err != nil {
		fatal("%v", err)
	}
	return id
}

// ── info ────────────────────────────────────────────────────────────────

func (c *cli) cmdInfo() {
	var info rpc.InfoResult
	if err := c.client.Call("ledger_info", nil, &info); err != nil {
		fatal("ledger_info: %v", err)
	}
	if c.asJSON {
		c.printJSON(info)
		return
	}
	if info.Metadata != nil {
		c.decimals = &info.Metadata.Decimals
		fmt.Printf("Token:        %s (%s)\n", info.Metadata.Name, info.Metadata.Symbol)
	}
	fmt.Printf("Owner:        %s\n", info.Owner)
	fmt.Printf("Total supply: %s\n", c.show(info.TotalSupply))
	fmt.Printf("Storage fee:  %s\n", info.StorageFee)
	fmt.Printf("Accounts:     %d\n", info.Accounts)
	fmt.Printf("State root:   %s\n", info.StateRoot)
}

func (c *cli) cmdMetadata() {
	var md config.Metadata
	if err := c.client.Call("ft_metadata", nil, &md); err != nil {
		fatal("ft_metadata: %v", err)
	}
	if c.asJSON {
		c.printJSON(md)
		return
	}
	fmt.Printf("Spec:     %s\n", md.Spec)
	fmt.Printf("Name:     %s\n", md.Name)
	fmt.Printf("Symbol:   %s\n", md.Symbol)
	fmt.Printf("Decimals: %d\n", md.Decimals)
	if md.Icon != "" {
		fmt.Printf("Icon:     %s\n", md.Icon)
	}
}

// ── balances ────────────────────────────────────────────────────────────

func (c *cli) cmdBalance(args []string) {
	if len(args) < 1 {
		fatal("Usage: ftledger-cli balance <account>")
	}
	bal, err := c.client.BalanceOf(accountArg(args[0]))
	if err != nil {
		fatal("ft_balanceOf: %v", err)
	}
	if c.asJSON {
		c.printJSON(rpc.BalanceResult{Account: accountArg(args[0]), Balance: bal})
		return
	}
	fmt.Println(c.show(bal))
}

func (c *cli) cmdSupply() {
	supply, err := c.client.TotalSupply()
	if err != nil {
		fatal("ft_totalSupply: %v", err)
	}
	fmt.Println(c.show(supply))
}

// ── transfers ───────────────────────────────────────────────────────────

func (c *cli) cmdTransfer(args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	from := fs.String("from", "", "Sender account")
	to := fs.String("to", "", "Receiver account")
	amountStr := fs.String("amount", "", "Amount to send")
	memo := fs.String("memo", "", "Optional memo")
	fs.Parse(args)

	if *from == "" || *to == "" || *amountStr == "" {
		fatal("Usage: ftledger-cli transfer --from <a> --to <b> --amount <n> [--memo <m>]")
	}

	amount := c.amount(*amountStr)
	if err := c.client.Transfer(accountArg(*from), accountArg(*to), amount, *memo); err != nil {
		fatal("ft_transfer: %v", err)
	}
	fmt.Printf("Transferred %s from %s to %s\n", c.show(amount), *from, *to)
}

func (c *cli) cmdTransferCall(args []string) {
	fs := flag.NewFlagSet("transfer-call", flag.ExitOnError)
	from := fs.String("from", "", "Sender account")
	to := fs.String("to", "", "Receiver account")
	amountStr := fs.String("amount", "", "Amount to send")
	msg := fs.String("msg", "", "Payload passed to the receiver")
	memo := fs.String("memo", "", "Optional memo")
	timeout := fs.Duration("timeout", 2*time.Minute, "How long to wait for settlement")
	fs.Parse(args)

	if *from == "" || *to == "" || *amountStr == "" {
		fatal("Usage: ftledger-cli transfer-call --from <a> --to <b> --amount <n> --msg <payload> [--memo <m>]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// The settlement can take as long as the receiver hook.
	client := rpcclient.NewWithTimeout(c.rpcURL, *timeout)
	st, err := client.TransferCall(ctx, rpc.TransferCallParam{
		Sender:   accountArg(*from),
		Receiver: accountArg(*to),
		Amount:   c.amount(*amountStr),
		Memo:     *memo,
		Msg:      *msg,
	})
	if err != nil && st.NoticeID == uuid.Nil {
		fatal("ft_transferCall: %v", err)
	}
	if c.asJSON {
		c.printJSON(st)
	} else {
		fmt.Printf("Notice:   %s\n", st.NoticeID)
		fmt.Printf("Outcome:  %s\n", st.Outcome)
		if st.Reason != "" {
			fmt.Printf("Reason:   %s\n", st.Reason)
		}
		fmt.Printf("Used:     %s\n", c.show(st.Used))
		fmt.Printf("Refunded: %s\n", c.show(st.Refunded))
		if !st.Burned.IsZero() {
			fmt.Printf("Burned:   %s\n", c.show(st.Burned))
		}
	}
	if err != nil {
		fatal("ft_transferCall: %v", err)
	}
}

func (c *cli) cmdBurn(args []string) {
	fs := flag.NewFlagSet("burn", flag.ExitOnError)
	account := fs.String("account", "", "Account to burn from")
	amountStr := fs.String("amount", "", "Amount to burn")
	memo := fs.String("memo", "", "Optional memo")
	fs.Parse(args)

	if *account == "" || *amountStr == "" {
		fatal("Usage: ftledger-cli burn --account <a> --amount <n> [--memo <m>]")
	}

	var res rpc.SupplyResult
	err := c.client.Call("ft_burn", rpc.BurnParam{
		Account: accountArg(*account),
		Amount:  c.amount(*amountStr),
		Memo:    *memo,
	}, &res)
	if err != nil {
		fatal("ft_burn: %v", err)
	}
	fmt.Printf("Burned. Total supply: %s\n", c.show(res.TotalSupply))
}

// ── storage ─────────────────────────────────────────────────────────────

func (c *cli) cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	account := fs.String("account", "", "Account to register")
	caller := fs.String("caller", "", "Paying account (default: --account)")
	deposit := fs.String("deposit", "", "Attached deposit in base units (default: storage fee)")
	fs.Parse(args)

	if *account == "" {
		fatal("Usage: ftledger-cli register --account <a> [--caller <c>] [--deposit <n>]")
	}

	var attached types.Amount
	if *deposit != "" {
		a, err := types.ParseAmount(*deposit)
		if err != nil {
			fatal("%v", err)
		}
		attached = a
	} else {
		var bounds ledger.StorageBounds
		if err := c.client.Call("storage_balanceBounds", nil, &bounds); err != nil {
			fatal("storage_balanceBounds: %v", err)
		}
		attached = bounds.Min
	}

	payer := accountArg(*account)
	if *caller != "" {
		payer = accountArg(*caller)
	}
	res, err := c.client.Register(payer, accountArg(*account), attached)
	if err != nil {
		var rpcErr *rpcclient.RPCError
		var refund rpc.RefundData
		if errors.As(err, &rpcErr) && rpcErr.DecodeData(&refund) == nil {
			fatal("storage_deposit: %v (refunded %s)", err, refund.Refund)
		}
		fatal("storage_deposit: %v", err)
	}
	if c.asJSON {
		c.printJSON(res)
		return
	}
	if res.AlreadyRegistered {
		fmt.Printf("%s is already registered; refunded %s\n", res.Account, res.Refund)
		return
	}
	fmt.Printf("Registered %s (fee %s, refunded %s)\n", res.Account, res.FeeHeld, res.Refund)
}

func (c *cli) cmdUnregister(args []string) {
	fs := flag.NewFlagSet("unregister", flag.ExitOnError)
	account := fs.String("account", "", "Account to close")
	force := fs.Bool("force", false, "Burn a positive balance")
	fs.Parse(args)

	if *account == "" {
		fatal("Usage: ftledger-cli unregister --account <a> [--force]")
	}

	res, err := c.client.Unregister(accountArg(*account), *force)
	if err != nil {
		fatal("storage_unregister: %v", err)
	}
	if c.asJSON {
		c.printJSON(res)
		return
	}
	fmt.Printf("Unregistered %s, refunded %s\n", res.Account, res.Refund)
	if res.Forced {
		fmt.Printf("Burned balance: %s\n", c.show(res.Burned))
	}
}

func (c *cli) cmdStorage(args []string) {
	if len(args) < 1 {
		fatal("Usage: ftledger-cli storage <account>")
	}
	sb, err := c.client.StorageBalanceOf(accountArg(args[0]))
	if err != nil {
		fatal("storage_balanceOf: %v", err)
	}
	if sb == nil {
		fmt.Printf("%s is not registered\n", args[0])
		return
	}
	fmt.Printf("Total:     %s\n", sb.Total)
	fmt.Printf("Available: %s\n", sb.Available)
}

// ── ledger ──────────────────────────────────────────────────────────────

func (c *cli) cmdAccounts() {
	var entries []ledger.AccountEntry
	if err := c.client.Call("ledger_accounts", nil, &entries); err != nil {
		fatal("ledger_accounts: %v", err)
	}
	if c.asJSON {
		c.printJSON(entries)
		return
	}
	for _, e := range entries {
		fmt.Printf("%-40s %s\n", e.Account, c.show(e.Balance))
	}
	fmt.Printf("%d accounts\n", len(entries))
}

func (c *cli) cmdAudit() {
	var res rpc.AuditResult
	if err := c.client.Call("ledger_audit", nil, &res); err != nil {
		fatal("ledger_audit: %v", err)
	}
	if c.asJSON {
		c.printJSON(res)
		return
	}
	fmt.Printf("OK:           %v\n", res.OK)
	fmt.Printf("Accounts:     %d\n", res.Accounts)
	fmt.Printf("Total supply: %s\n", c.show(res.TotalSupply))
	fmt.Printf("Storage held: %s\n", res.StorageHeld)
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
