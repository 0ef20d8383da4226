package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Ask the node to mine a block rewarding the account",
	RunE:  mineRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
}

func mineRun(cmd *cobra.Command, args []string) error {
	address, _, err := loadAddress()
	if err != nil {
		return err
	}

	req := struct {
		Beneficiary string `json:"beneficiary"`
	}{
		Beneficiary: address,
	}

	var blk struct {
		Index uint64 `json:"index"`
		Hash  string `json:"hash"`
	}
	if err := call(http.MethodPost, "/v1/mining/mine", req, &blk); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "blk[%d]: %s\n", blk.Index, blk.Hash)
	return nil
}
