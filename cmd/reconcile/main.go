package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/report"
	"ledger-reconciliation-backend/internal/services/extract"
	"ledger-reconciliation-backend/internal/services/netting"
	"ledger-reconciliation-backend/internal/services/reconciliation"
)

const usage = `usage:
  reconcile bank -fin FILE -contabil FILE [-tolerance 0.01] [-min-len 3] [-out FILE]
  reconcile customer -razao FILE [-titulos FILE] [-saldo 0] [-inicio dd/mm/yyyy] [-fim dd/mm/yyyy] [-strategy first|closest] [-out FILE]
`

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	log := logger.WithLevel(logger.NewWithWriter(stderr), cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	var summary any
	switch args[0] {
	case "bank":
		summary, err = runBank(ctx, cfg, args[1:], stderr)
	case "customer":
		summary, err = runCustomer(ctx, cfg, args[1:], stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}

	var usageErr usageError
	var schemaErr *ledger.SchemaNotFoundError
	switch {
	case err == nil:
	case errors.As(err, &usageErr):
		fmt.Fprintln(stderr, err)
		return 2
	case errors.As(err, &schemaErr):
		fmt.Fprintln(stderr, "ERRO:", schemaErr.Error())
		return 1
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func openWorkbook(path string) (*ledger.Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ledger.OpenWorkbook(f, path)
}

func runBank(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) (any, error) {
	fs := flag.NewFlagSet("bank", flag.ContinueOnError)
	fs.SetOutput(stderr)
	finPath := fs.String("fin", "", "financial report (.xlsx)")
	accPath := fs.String("contabil", "", "accounting report (.xlsx)")
	tolerance := fs.String("tolerance", cfg.Matching.Tolerance.String(), "amount tolerance")
	minLen := fs.Int("min-len", cfg.Matching.MinLength, "minimum normalized text length")
	out := fs.String("out", "CONCILIACAO.xlsx", "report path")
	if err := fs.Parse(args); err != nil {
		return nil, usageError(err.Error())
	}
	if *finPath == "" || *accPath == "" {
		return nil, usageError("bank: -fin and -contabil are required")
	}

	mcfg := cfg.Matching
	tol, err := extract.ParseAmountE(*tolerance)
	if err != nil || tol.IsNegative() {
		return nil, usageError(fmt.Sprintf("bank: invalid -tolerance %q", *tolerance))
	}
	mcfg.Tolerance = tol
	mcfg.MinLength = *minLen

	finWB, err := openWorkbook(*finPath)
	if err != nil {
		return nil, err
	}
	accWB, err := openWorkbook(*accPath)
	if err != nil {
		return nil, err
	}

	run, err := reconciliation.RunBankLedger(ctx, finWB, accWB, mcfg)
	if err != nil {
		return nil, err
	}
	if err := report.Save(*out, reconciliation.BankSheets(run)); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return run.Summary, nil
}

func runCustomer(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) (any, error) {
	fs := flag.NewFlagSet("customer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	journalPath := fs.String("razao", "", "accounting journal (.xlsx)")
	receivablesPath := fs.String("titulos", "", "receivables report (.xlsx), optional")
	initial := fs.String("saldo", "0", "initial balance")
	start := fs.String("inicio", "", "window start dd/mm/yyyy")
	end := fs.String("fim", "", "window end dd/mm/yyyy")
	strategy := fs.String("strategy", string(cfg.Netting.Strategy), "pairing strategy: first or closest")
	out := fs.String("out", "CONCILIACAO_CLIENTE.xlsx", "report path")
	if err := fs.Parse(args); err != nil {
		return nil, usageError(err.Error())
	}
	if *journalPath == "" {
		return nil, usageError("customer: -razao is required")
	}

	ncfg := cfg.Netting
	var err error
	if ncfg.Strategy, err = netting.ParseStrategy(*strategy); err != nil {
		return nil, usageError("customer: " + err.Error())
	}
	if ncfg.Window.Start, err = flagDate("inicio", *start); err != nil {
		return nil, err
	}
	if ncfg.Window.End, err = flagDate("fim", *end); err != nil {
		return nil, err
	}
	saldo, err := extract.ParseAmountE(*initial)
	if err != nil {
		return nil, usageError(fmt.Sprintf("customer: invalid -saldo %q", *initial))
	}

	journalWB, err := openWorkbook(*journalPath)
	if err != nil {
		return nil, err
	}
	var receivablesWB *ledger.Workbook
	if *receivablesPath != "" {
		if receivablesWB, err = openWorkbook(*receivablesPath); err != nil {
			return nil, err
		}
	}

	run, err := reconciliation.RunCustomer(ctx, journalWB, receivablesWB, saldo, ncfg)
	if err != nil {
		return nil, err
	}
	if err := report.Save(*out, reconciliation.CustomerSheets(run)); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return run.Summary, nil
}

func flagDate(name, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	d, ok := extract.ParseDate(raw)
	if !ok {
		return time.Time{}, usageError(fmt.Sprintf("customer: invalid -%s %q, expected dd/mm/yyyy", name, raw))
	}
	return d, nil
}
