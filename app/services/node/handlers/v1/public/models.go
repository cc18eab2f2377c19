package public

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
)

type txIn struct {
	PrevTxID  string `json:"txid" validate:"required"`
	PrevIndex uint32 `json:"index"`
	PubKey    string `json:"pubkey" validate:"required"`
	Sig       string `json:"sig" validate:"required"`
}

type txOut struct {
	Value uint64 `json:"value" validate:"gt=0"`
	Owner string `json:"address" validate:"required"`
	Name  string `json:"name,omitempty"`
}

// submitTx is the signed transaction a wallet posts.
type submitTx struct {
	Inputs  []txIn  `json:"inputs" validate:"required,min=1,dive"`
	Outputs []txOut `json:"outputs" validate:"required,min=1,dive"`
	Note    string  `json:"note"`
}

func (stx submitTx) toTx() database.Tx {
	tx := database.Tx{
		Inputs:  make([]database.TxIn, len(stx.Inputs)),
		Outputs: make([]database.TxOut, len(stx.Outputs)),
		Note:    stx.Note,
	}

	for i, in := range stx.Inputs {
		tx.Inputs[i] = database.TxIn{
			PrevTxID:  in.PrevTxID,
			PrevIndex: in.PrevIndex,
			PubKey:    in.PubKey,
			Sig:       in.Sig,
		}
	}

	for i, out := range stx.Outputs {
		tx.Outputs[i] = database.TxOut{
			Value: out.Value,
			Owner: out.Owner,
		}
	}

	return tx
}

type tx struct {
	TxID    string  `json:"txid"`
	Inputs  []txIn  `json:"inputs"`
	Outputs []txOut `json:"outputs"`
	Note    string  `json:"note"`
}

func toTx(btx database.BlockTx, ns *nameservice.NameService) tx {
	t := tx{
		TxID:    btx.TxID,
		Inputs:  make([]txIn, len(btx.Inputs)),
		Outputs: make([]txOut, len(btx.Outputs)),
		Note:    btx.Note,
	}

	for i, in := range btx.Inputs {
		t.Inputs[i] = txIn{
			PrevTxID:  in.PrevTxID,
			PrevIndex: in.PrevIndex,
			PubKey:    in.PubKey,
			Sig:       in.Sig,
		}
	}

	for i, out := range btx.Outputs {
		t.Outputs[i] = txOut{
			Value: out.Value,
			Owner: out.Owner,
			Name:  ns.Lookup(out.Owner),
		}
	}

	return t
}

type block struct {
	Number       uint64 `json:"number"`
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
	MerkleRoot   string `json:"merkle_root"`
	TimeStamp    uint64 `json:"timestamp"`
	Difficulty   uint   `json:"difficulty"`
	Nonce        uint64 `json:"nonce"`
	Transactions []tx   `json:"txs"`
}

func toBlock(b database.Block, ns *nameservice.NameService) block {
	txs := b.Txs()

	blk := block{
		Number:       b.Number,
		Hash:         b.Hash(),
		PrevHash:     b.Header.PrevBlockHash,
		MerkleRoot:   b.Header.MerkleRoot,
		TimeStamp:    b.Header.TimeStamp,
		Difficulty:   b.Header.Difficulty,
		Nonce:        b.Header.Nonce,
		Transactions: make([]tx, len(txs)),
	}

	for i, btx := range txs {
		blk.Transactions[i] = toTx(btx, ns)
	}

	return blk
}

func toBlocks(blocks []database.Block, ns *nameservice.NameService) []block {
	out := make([]block, len(blocks))
	for i, b := range blocks {
		out[i] = toBlock(b, ns)
	}
	return out
}

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

type utxo struct {
	TxID    string `json:"txid"`
	Index   uint32 `json:"index"`
	Value   uint64 `json:"value"`
	Address string `json:"address"`
}

type utxos struct {
	Address string `json:"address"`
	Total   uint64 `json:"total"`
	UTXOs   []utxo `json:"utxos"`
}
