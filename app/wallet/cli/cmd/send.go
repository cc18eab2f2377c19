package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	to    string
	value uint64
	note  string
)

type utxo struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"index"`
	Value uint64 `json:"value"`
}

type spendable struct {
	Total uint64 `json:"total"`
	UTXOs []utxo `json:"utxos"`
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send value to an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			return err
		}

		txID, err := sendWithDetails(privateKey)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), txID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().StringVarP(&note, "note", "n", "", "Note to attach.")
}

// sendWithDetails asks the node for outputs covering the value, builds and
// signs the transfer and submits it.
func sendWithDetails(privateKey *ecdsa.PrivateKey) (string, error) {
	if err := signature.ValidateAddress(to); err != nil {
		return "", fmt.Errorf("to: %w", err)
	}

	from := signature.PublicKeyToAddress(privateKey.PublicKey)

	var sp spendable
	if err := get(fmt.Sprintf("%s/v1/utxos/%s?amount=%d", url, from, value), &sp); err != nil {
		return "", err
	}

	tx, err := buildTransfer(privateKey, sp, to, value, note)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var submitted struct {
		TxID string `json:"txid"`
	}
	if err := decodeResponse(resp, &submitted); err != nil {
		return "", err
	}

	return submitted.TxID, nil
}

// buildTransfer spends the selected outputs paying the value to the
// recipient. Anything left over comes back to the sender as change.
func buildTransfer(privateKey *ecdsa.PrivateKey, sp spendable, to string, value uint64, note string) (database.Tx, error) {
	if value == 0 {
		return database.Tx{}, errors.New("value must be greater than zero")
	}

	if sp.Total < value {
		return database.Tx{}, fmt.Errorf("insufficient funds: have %d, need %d", sp.Total, value)
	}

	inputs := make([]database.TxIn, len(sp.UTXOs))
	for i, u := range sp.UTXOs {
		inputs[i] = database.TxIn{PrevTxID: u.TxID, PrevIndex: u.Index}
	}

	outputs := []database.TxOut{{Value: value, Owner: to}}
	if change := sp.Total - value; change > 0 {
		outputs = append(outputs, database.TxOut{Value: change, Owner: signature.PublicKeyToAddress(privateKey.PublicKey)})
	}

	tx, err := database.NewTx(inputs, outputs, note)
	if err != nil {
		return database.Tx{}, err
	}

	return tx.Sign(privateKey)
}
