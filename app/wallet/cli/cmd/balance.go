package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type balance struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	address := signature.PublicKeyToAddress(privateKey.PublicKey)
	fmt.Fprintln(cmd.OutOrStdout(), "For Address:", address)

	var bals balances
	if err := get(fmt.Sprintf("%s/v1/balances/%s", url, address), &bals); err != nil {
		return err
	}

	if len(bals.Balances) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), bals.Balances[0].Balance)
	}

	return nil
}

// get performs the request and decodes the response into v. A response
// that is not a 200 is returned as an error holding the node's message.
func get(endpoint string, v any) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, v)
}

func decodeResponse(resp *http.Response, v any) error {
	if resp.StatusCode != http.StatusOK {
		var er struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			return fmt.Errorf("node responded %s", resp.Status)
		}
		return fmt.Errorf("node responded %s: %s", resp.Status, er.Error)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
