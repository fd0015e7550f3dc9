package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/noah-isme/quote-engine/internal/pricing"
)

// quotecalc prices a selection against a calculator config from disk.
// Exit code 0 = ok, 1 = invalid config, 2 = usage or I/O error.
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quotecalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "pricing config file (.json, .yaml or .yml)")
	selectionPath := fs.String("selection", "", "selection file; omit to validate the config only")
	format := fs.String("format", "table", "output format: table or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" {
		fmt.Fprintln(stderr, "quotecalc: -config is required")
		return 2
	}
	if *format != "table" && *format != "json" {
		fmt.Fprintf(stderr, "quotecalc: unknown format %q\n", *format)
		return 2
	}

	var cfg pricing.PricingConfig
	if err := decodeFile(*configPath, &cfg); err != nil {
		fmt.Fprintf(stderr, "quotecalc: %v\n", err)
		return 2
	}
	if err := pricing.ValidateConfig(cfg); err != nil {
		var verr *pricing.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				fmt.Fprintf(stderr, "INVALID: %s %s\n", p.Field, p.Message)
			}
		} else {
			fmt.Fprintf(stderr, "quotecalc: %v\n", err)
		}
		return 1
	}
	if *selectionPath == "" {
		fmt.Fprintln(stdout, "quotecalc: config OK")
		return 0
	}

	var sel pricing.Selection
	if err := decodeFile(*selectionPath, &sel); err != nil {
		fmt.Fprintf(stderr, "quotecalc: %v\n", err)
		return 2
	}
	breakdown := pricing.Calculate(cfg, sel)

	var err error
	if *format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(breakdown)
	} else {
		err = writeTable(stdout, breakdown, sel, cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "quotecalc: write output: %v\n", err)
		return 2
	}
	return 0
}

// decodeFile reads JSON, or YAML converted to JSON so decimal and tagged
// fields decode the same way as API payloads.
func decodeFile(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if raw, err = yamlToJSON(raw, reflect.TypeOf(dst)); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeTable(w io.Writer, b pricing.Breakdown, sel pricing.Selection, cfg pricing.PricingConfig) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, item := range b.LineItems {
		fmt.Fprintf(tw, "%s\t%s\t\n", item.Label, b.Format(item.Amount))
	}
	fmt.Fprintf(tw, "Subtotal\t%s\t\n", b.Format(b.Subtotal))
	if !b.DiscountTotal.IsZero() {
		fmt.Fprintf(tw, "Discounts\t%s\t\n", b.Format(b.DiscountTotal))
	}
	fmt.Fprintf(tw, "Total\t%s\t\n", b.Format(b.Total))
	if code := strings.TrimSpace(sel.PromoCode); code != "" && !pricing.IsValidPromoCode(cfg, code) {
		fmt.Fprintf(tw, "Promo code %q not recognised\t\t\n", code)
	}
	return tw.Flush()
}
