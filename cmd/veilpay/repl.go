package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"veilpay/internal/ledger"
	"veilpay/internal/system"
	"veilpay/internal/token"
)

const replHelp = `Commands:
  status                                          system status
  demo                                            run the demonstration scenario
  wallet create | list | info <id>
  token issue <wallet_id> <value> | list | info <id> | balance <wallet_id>
  voucher issue <wallet_id> <limit> | list | info <id> | available <wallet_id>
  transfer <sender> <receiver> <token_id> [voucher_id]
  transfer list | info <id>
  offline create <sender> <receiver> <token_id> [voucher_id]
  offline sign <offline_id> <wallet_id> <signature>
  offline sync <offline_id> | list
  compliance list | stats | export
  ledger list | stats | export
  export                                          write every report
  help
  exit`

// runREPL reads verbs line by line and dispatches to the system's public
// operations. Errors are printed, never fatal; only exit or EOF ends the
// loop.
func runREPL(ctx context.Context, sys *system.System, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "veilpay interactive shell, type 'help' for commands")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "veilpay> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		verb, args := strings.ToLower(fields[0]), fields[1:]

		if verb == "exit" || verb == "quit" {
			return nil
		}
		if err := dispatch(ctx, sys, out, verb, args); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, sys *system.System, out io.Writer, verb string, args []string) error {
	switch verb {
	case "help":
		fmt.Fprintln(out, replHelp)
	case "status":
		fmt.Fprintln(out, sys.Status(ctx).Describe())
	case "demo":
		return sys.RunDemo(ctx)
	case "wallet":
		return walletCmd(ctx, sys, out, args)
	case "token":
		return tokenCmd(ctx, sys, out, args)
	case "voucher":
		return voucherCmd(ctx, sys, out, args)
	case "transfer":
		return transferCmd(ctx, sys, out, args)
	case "offline":
		return offlineCmd(ctx, sys, out, args)
	case "compliance":
		return complianceCmd(ctx, sys, out, args)
	case "ledger":
		return ledgerCmd(ctx, sys, out, args)
	case "export":
		files, err := sys.ExportAll(ctx)
		if err != nil {
			return err
		}
		for label, path := range files {
			fmt.Fprintf(out, "%s: %s\n", label, path)
		}
	default:
		fmt.Fprintf(out, "unknown command %q, type 'help' for commands\n", verb)
	}
	return nil
}

func walletCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "create":
		w, err := sys.Wallets.Create(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created wallet %s\n", w.ID)
	case "list":
		for _, w := range sys.Wallets.List(ctx) {
			view := w.Redacted()
			fmt.Fprintf(out, "%s  tokens=%d vouchers=%d\n", view.ID, len(view.TokenIDs), view.VoucherCount)
		}
	case "info":
		if len(args) < 2 {
			return usageErr("wallet info <id>")
		}
		w, err := sys.Wallets.Get(ctx, args[1])
		if err != nil {
			return err
		}
		view := w.Redacted()
		fmt.Fprintf(out, "wallet %s\n  public key: %s\n  tokens: %d (value %d)\n  vouchers: %d\n",
			view.ID, view.PublicKey, len(view.TokenIDs), sys.Tokens.TotalValue(ctx, view.ID), view.VoucherCount)
		for _, id := range view.TokenIDs {
			fmt.Fprintf(out, "    %s\n", id)
		}
	default:
		return usageErr("wallet create|list|info")
	}
	return nil
}

func tokenCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "issue":
		if len(args) < 3 {
			return usageErr("token issue <wallet_id> <value>")
		}
		value, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("value must be an integer: %w", err)
		}
		t, err := sys.Tokens.Issue(ctx, value, args[1])
		if err != nil {
			return err
		}
		note := ""
		if !token.IsStandardDenomination(t.Value) {
			note = " (non-standard denomination)"
		}
		fmt.Fprintf(out, "issued token %s value=%d to %s%s\n", t.ID, t.Value, t.OwnerWalletID, note)
	case "list":
		for _, t := range sys.Tokens.ListAll(ctx) {
			fmt.Fprintf(out, "%s  value=%d owner=%s\n", t.ID, t.Value, t.OwnerWalletID)
		}
	case "info":
		if len(args) < 2 {
			return usageErr("token info <id>")
		}
		t, err := sys.Tokens.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "token %s\n  value: %d\n  owner: %s\n  issued by: %s at %s\n",
			t.ID, t.Value, t.OwnerWalletID, t.IssuedBy, t.IssuedAt.Format("2006-01-02 15:04:05"))
	case "balance":
		if len(args) < 2 {
			return usageErr("token balance <wallet_id>")
		}
		tokens := sys.Tokens.ByOwner(ctx, args[1])
		for _, t := range tokens {
			fmt.Fprintf(out, "%s  value=%d\n", t.ID, t.Value)
		}
		fmt.Fprintf(out, "total: %d across %d tokens\n", sys.Tokens.TotalValue(ctx, args[1]), len(tokens))
	default:
		return usageErr("token issue|list|info|balance")
	}
	return nil
}

func voucherCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "issue":
		if len(args) < 3 {
			return usageErr("voucher issue <wallet_id> <limit>")
		}
		limit, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("limit must be an integer: %w", err)
		}
		v, err := sys.Vouchers.Issue(ctx, args[1], limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "issued voucher %s limit=%d to %s\n", v.ID, v.ValueLimit, v.IssuedToWalletID)
	case "list":
		for _, v := range sys.Vouchers.ListAll(ctx) {
			state := "available"
			if v.Used {
				state = "used"
			}
			fmt.Fprintf(out, "%s  limit=%d wallet=%s %s\n", v.ID, v.ValueLimit, v.IssuedToWalletID, state)
		}
	case "info":
		if len(args) < 2 {
			return usageErr("voucher info <id>")
		}
		v, err := sys.Vouchers.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "voucher %s\n  limit: %d\n  wallet: %s\n  used: %v\n",
			v.ID, v.ValueLimit, v.IssuedToWalletID, v.Used)
		if v.Used {
			fmt.Fprintf(out, "  used in: %s\n", v.UsedInTransfer)
		}
	case "available":
		if len(args) < 2 {
			return usageErr("voucher available <wallet_id>")
		}
		for _, v := range sys.Vouchers.AvailableByWallet(ctx, args[1]) {
			fmt.Fprintf(out, "%s  limit=%d\n", v.ID, v.ValueLimit)
		}
	default:
		return usageErr("voucher issue|list|info|available")
	}
	return nil
}

func transferCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "list":
		for _, t := range sys.Transfers.ListAll(ctx) {
			fmt.Fprintf(out, "%s  %s -> %s status=%s anonymous=%v\n",
				t.ID, t.SenderID, t.ReceiverID, t.Status, t.Anonymous)
		}
		return nil
	case "info":
		if len(args) < 2 {
			return usageErr("transfer info <id>")
		}
		t, err := sys.Transfers.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "transfer %s\n  %s -> %s\n  token: %s\n  status: %s\n  anonymous: %v\n  aml flagged: %v\n",
			t.ID, t.SenderID, t.ReceiverID, t.TokenID, t.Status, t.Anonymous, t.AMLFlagged)
		if t.AMLReason != "" {
			fmt.Fprintf(out, "  aml reason: %s\n", t.AMLReason)
		}
		return nil
	}

	// Positional form: transfer <sender> <receiver> <token_id> [voucher_id]
	if len(args) < 3 {
		return usageErr("transfer <sender> <receiver> <token_id> [voucher_id]")
	}
	voucherID := ""
	if len(args) > 3 {
		voucherID = args[3]
	}
	t, err := sys.Transfers.Execute(ctx, args[0], args[1], args[2], voucherID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "transfer %s completed, anonymous=%v aml_flagged=%v\n", t.ID, t.Anonymous, t.AMLFlagged)
	return nil
}

func offlineCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "create":
		if len(args) < 4 {
			return usageErr("offline create <sender> <receiver> <token_id> [voucher_id]")
		}
		voucherID := ""
		if len(args) > 4 {
			voucherID = args[4]
		}
		t, err := sys.Offline.Create(ctx, args[1], args[2], args[3], voucherID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "offline transfer %s created, value=%d\n", t.ID, t.Value)
	case "sign":
		if len(args) < 4 {
			return usageErr("offline sign <offline_id> <wallet_id> <signature>")
		}
		if err := sys.Offline.Sign(ctx, args[1], args[2], args[3]); err != nil {
			return err
		}
		t, err := sys.Offline.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "signature accepted, status=%s\n", t.Status)
	case "sync":
		if len(args) < 2 {
			return usageErr("offline sync <offline_id>")
		}
		ok, err := sys.Offline.Sync(ctx, args[1])
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(out, "synced with ledger")
		} else {
			fmt.Fprintln(out, "sync failed, transfer marked failed")
		}
	case "list":
		for _, t := range sys.Offline.ListAll(ctx) {
			fmt.Fprintf(out, "%s  %s -> %s value=%d status=%s\n",
				t.ID, t.SenderID, t.ReceiverID, t.Value, t.Status)
		}
	default:
		return usageErr("offline create|sign|sync|list")
	}
	return nil
}

func complianceCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "list":
		for _, e := range sys.Compliance.Entries(ctx) {
			fmt.Fprintf(out, "transfer=%s amount=%d score=%.2f escalated=%v\n",
				e.TransferID, e.Amount, e.RiskScore, e.Escalated)
		}
	case "stats":
		st := sys.Compliance.Statistics(ctx)
		fmt.Fprintf(out, "flagged: %d\nhigh risk: %d\nescalated: %d\naverage risk score: %.2f\n",
			st.TotalFlagged, st.HighRisk, st.Escalated, st.AverageRiskScore)
	case "export":
		path, err := sys.Compliance.ExportReport(ctx, "", sys.ExportDir())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	default:
		return usageErr("compliance list|stats|export")
	}
	return nil
}

func ledgerCmd(ctx context.Context, sys *system.System, out io.Writer, args []string) error {
	switch sub(args) {
	case "list":
		for _, e := range sys.Ledger.Query(ctx, ledger.Filter{}) {
			fmt.Fprintf(out, "#%d  transfer=%s class=%s value=%d\n",
				e.ID, e.TransferID, e.Classification, e.Value)
		}
	case "stats":
		st := sys.Ledger.Statistics(ctx)
		fmt.Fprintf(out, "entries: %d\nanonymous: %d\nnon-anonymous: %d\naml flagged: %d\n",
			st.TotalEntries, st.AnonymousEntries, st.NonAnonymousEntries, st.AMLFlaggedEntries)
	case "export":
		path, err := sys.Ledger.ExportAMLLoggable(ctx, "", sys.ExportDir())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	default:
		return usageErr("ledger list|stats|export")
	}
	return nil
}

func sub(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.ToLower(args[0])
}

func usageErr(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}
