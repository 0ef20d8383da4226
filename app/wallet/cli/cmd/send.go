package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	to     string
	amount float64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transaction from the account",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address or name of the receiver.")
	sendCmd.Flags().Float64VarP(&amount, "amount", "v", 0, "Amount to send.")
	sendCmd.MarkFlagRequired("to")
}

func sendRun(cmd *cobra.Command, args []string) error {
	address, _, err := loadAddress()
	if err != nil {
		return err
	}

	req := struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}{
		From:   address,
		To:     to,
		Amount: amount,
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := call(http.MethodPost, "/v1/tx/submit", req, &resp); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.ID)
	return nil
}
