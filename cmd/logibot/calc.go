package main

import (
	"fmt"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/customs"
	"github.com/spf13/cobra"
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Print a preliminary customs duty and VAT estimate",
	Example: `  logibot calc --price 1000 --duty 12.5 --region ru
  logibot calc --price 100 --duty 5 --vat 16 --cargo laptops`,
	RunE: runCalc,
}

func init() {
	rootCmd.AddCommand(calcCmd)
	addCalcFlags(calcCmd)
}

func addCalcFlags(cmd *cobra.Command) {
	cmd.Flags().String("price", "", "cargo value in USD")
	cmd.Flags().String("duty", "", "customs duty percent")
	cmd.Flags().String("vat", "", "VAT percent")
	cmd.Flags().String("region", "", "VAT region from the catalogue (kz, ru)")
	cmd.Flags().String("cargo", "-", "cargo name shown in the result")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("duty")
}

func runCalc(cmd *cobra.Command, args []string) error {
	priceText, _ := cmd.Flags().GetString("price")
	dutyText, _ := cmd.Flags().GetString("duty")
	vatText, _ := cmd.Flags().GetString("vat")
	regionValue, _ := cmd.Flags().GetString("region")
	cargo, _ := cmd.Flags().GetString("cargo")
	catalogFile, _ := cmd.Flags().GetString("catalog")

	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return err
	}
	price, err := customs.ParseAmount(priceText)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", priceText, err)
	}
	duty, err := customs.ParseAmount(dutyText)
	if err != nil {
		return fmt.Errorf("invalid duty %q: %w", dutyText, err)
	}
	if regionValue != "" {
		region, ok := cat.Region(regionValue)
		if !ok {
			return fmt.Errorf("unknown region %q", regionValue)
		}
		vatText = region.Percent
	}
	if vatText == "" {
		return fmt.Errorf("either --vat or --region is required")
	}
	vat, err := customs.ParseAmount(vatText)
	if err != nil {
		return fmt.Errorf("invalid vat %q: %w", vatText, err)
	}

	res := customs.Calculate(price, duty, vat)
	fmt.Fprintln(cmd.OutOrStdout(), res.Render(cat.Texts.CustomsResult, cargo))
	return nil
}
