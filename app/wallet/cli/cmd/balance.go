package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type balance struct {
	Address string  `json:"address"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Height      int       `json:"height"`
	Pending     int       `json:"pending"`
	Balances    []balance `json:"balances"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	address, _, err := loadAddress()
	if err != nil {
		return err
	}

	var bals balances
	if err := call(http.MethodGet, "/v1/balances/list/"+address, nil, &bals); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "For Address:", address)
	fmt.Fprintln(out, "Height:", bals.Height, "Latest Block:", bals.LatestBlock)
	if len(bals.Balances) > 0 {
		fmt.Fprintln(out, bals.Balances[0].Balance)
	}

	return nil
}
