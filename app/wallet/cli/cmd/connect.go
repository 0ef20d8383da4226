package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect host:port",
	Short: "Ask the node to connect to a peer",
	Args:  cobra.ExactArgs(1),
	RunE:  connectRun,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func connectRun(cmd *cobra.Command, args []string) error {
	req := struct {
		Address string `json:"address"`
	}{
		Address: args[0],
	}

	var blk struct {
		Index uint64 `json:"index"`
		Hash  string `json:"hash"`
	}
	if err := call(http.MethodPost, "/v1/peers/connect", req, &blk); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "connected: tip blk[%d]: %s\n", blk.Index, blk.Hash)
	return nil
}
