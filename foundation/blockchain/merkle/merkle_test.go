// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Data uses the double sha256 of a string as its leaf.
type Data struct {
	x string
}

// Hash hashes the values using double sha256.
func (d Data) Hash() ([]byte, error) {
	return signature.DoubleSHA256([]byte(d.x)), nil
}

// Equals tests for equality of two piece of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_Roots(t *testing.T) {
	a, b, c, d, e := leaf("a"), leaf("b"), leaf("c"), leaf("d"), leaf("e")

	type table struct {
		name string
		data []Data
		root []byte
	}

	tt := []table{
		{
			name: "empty",
			data: nil,
			root: make([]byte, 32),
		},
		{
			name: "single",
			data: []Data{{x: "a"}},
			root: a,
		},
		{
			name: "pair",
			data: []Data{{x: "a"}, {x: "b"}},
			root: pair(a, b),
		},
		{
			name: "three",
			data: []Data{{x: "a"}, {x: "b"}, {x: "c"}},
			root: pair(pair(a, b), pair(c, c)),
		},
		{
			name: "four",
			data: []Data{{x: "a"}, {x: "b"}, {x: "c"}, {x: "d"}},
			root: pair(pair(a, b), pair(c, d)),
		},
		{
			name: "five",
			data: []Data{{x: "a"}, {x: "b"}, {x: "c"}, {x: "d"}, {x: "e"}},
			root: pair(pair(pair(a, b), pair(c, d)), pair(pair(e, e), pair(e, e))),
		},
	}

	t.Log("Given the need to commit a set of values to a merkle root.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling %d values.", testID, len(tst.data))
				{
					tree, err := merkle.NewTree(tst.data)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to create a tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to create a tree.", success, testID)

					if !bytes.Equal(tree.MerkleRoot, tst.root) {
						t.Logf("\t%s\tTest %d:\tgot: %x", failed, testID, tree.MerkleRoot)
						t.Logf("\t%s\tTest %d:\texp: %x", failed, testID, tst.root)
						t.Fatalf("\t%s\tTest %d:\tShould get the hand computed root.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the hand computed root.", success, testID)

					ids := make([][]byte, len(tst.data))
					for i, d := range tst.data {
						ids[i], _ = d.Hash()
					}

					if root := merkle.Commit(ids); !bytes.Equal(root, tst.root) {
						t.Fatalf("\t%s\tTest %d:\tShould get the same root from Commit.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the same root from Commit.", success, testID)

					if root := merkle.Commit(ids); !bytes.Equal(root, tst.root) {
						t.Fatalf("\t%s\tTest %d:\tShould get the same root twice.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the same root twice.", success, testID)

					if len(tree.Values()) != len(tst.data) {
						t.Fatalf("\t%s\tTest %d:\tShould get back the values without duplicates, got %d.", failed, testID, len(tree.Values()))
					}
					t.Logf("\t%s\tTest %d:\tShould get back the values without duplicates.", success, testID)

					if err := tree.Verify(); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to verify the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to verify the tree.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Proof(t *testing.T) {
	data := []Data{{x: "a"}, {x: "b"}, {x: "c"}, {x: "d"}, {x: "e"}}

	tree, err := merkle.NewTree(data)
	if err != nil {
		t.Fatalf("Should be able to create a tree: %v", err)
	}

	for _, d := range data {
		proof, order, err := tree.Proof(d)
		if err != nil {
			t.Fatalf("Should be able to get a proof for %s: %v", d.x, err)
		}

		h, _ := d.Hash()
		if !merkle.VerifyProof(h, proof, order, tree.MerkleRoot, signature.NewDoubleSHA256) {
			t.Fatalf("Should be able to verify the proof for %s.", d.x)
		}

		if err := tree.VerifyData(d); err != nil {
			t.Fatalf("Should be able to verify the data for %s: %v", d.x, err)
		}
	}

	if _, _, err := tree.Proof(Data{x: "z"}); err == nil {
		t.Fatalf("Should not get a proof for data outside the tree.")
	}

	if err := tree.VerifyData(Data{x: "z"}); err == nil {
		t.Fatalf("Should not verify data outside the tree.")
	}

	tree.Root.Hash = []byte{1}
	tree.MerkleRoot = []byte{1}
	if err := tree.Verify(); err == nil {
		t.Fatalf("Should not verify a tampered tree.")
	}

	if err := tree.Generate(tree.Values()); err != nil {
		t.Fatalf("Should be able to regenerate the tree: %v", err)
	}

	if err := tree.Verify(); err != nil {
		t.Fatalf("Should be able to verify a regenerated tree: %v", err)
	}
}

func Test_HashStrategy(t *testing.T) {
	data := []Data{{x: "a"}, {x: "b"}}

	tree, err := merkle.NewTree(data, merkle.WithHashStrategy[Data](sha256.New))
	if err != nil {
		t.Fatalf("Should be able to create a tree: %v", err)
	}

	a, b := leaf("a"), leaf("b")
	exp := sha256.Sum256(append(append([]byte{}, a...), b...))
	if !bytes.Equal(tree.MerkleRoot, exp[:]) {
		t.Logf("got: %x", tree.MerkleRoot)
		t.Logf("exp: %x", exp)
		t.Fatalf("Should use the configured hash strategy.")
	}
}

// =============================================================================

func leaf(x string) []byte {
	return signature.DoubleSHA256([]byte(x))
}

func pair(left []byte, right []byte) []byte {
	data := append(append([]byte{}, left...), right...)
	return signature.DoubleSHA256(data)
}
