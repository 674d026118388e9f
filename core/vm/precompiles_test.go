package vm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/crypto"
)

func byzantiumRules() Rules {
	return Rules{IsHomestead: true, IsEIP150: true, IsEIP155: true, IsSpuriousDragon: true, IsByzantium: true, MaxCodeSize: 24576}
}

func TestActivePrecompileSets(t *testing.T) {
	frontier := Rules{}
	if IsPrecompiled(frontier, types.BytesToAddress([]byte{4})) != true {
		t.Fatal("identity missing pre-Byzantium")
	}
	if IsPrecompiled(frontier, types.BytesToAddress([]byte{5})) {
		t.Fatal("modexp active pre-Byzantium")
	}
	if !IsPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{8})) {
		t.Fatal("pairing missing post-Byzantium")
	}
	if IsPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{9})) {
		t.Fatal("address 9 unexpectedly precompiled")
	}
}

func TestEcrecoverPrecompile(t *testing.T) {
	priv := big.NewInt(0xc0ffee)
	wantAddr := crypto.PubkeyToAddress(crypto.PrivToPubkey(priv))

	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("precompile input")))
	r, s, v, err := crypto.Sign(digest, priv)
	if err != nil {
		t.Fatal(err)
	}

	input := make([]byte, 128)
	copy(input[0:32], digest[:])
	input[63] = v + 27
	rb, sb := r.Bytes(), s.Bytes()
	copy(input[64+32-len(rb):96], rb)
	copy(input[96+32-len(sb):128], sb)

	out, left, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{1}), input, 5000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if left != 2000 {
		t.Fatalf("gas remaining: %d", left)
	}
	want := make([]byte, 32)
	copy(want[12:], wantAddr[:])
	if !bytes.Equal(out, want) {
		t.Fatalf("output: %x, want %x", out, want)
	}

	// A bad v yields empty output, not an error.
	badInput := append([]byte(nil), input...)
	badInput[63] = 29
	out, _, err = RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{1}), badInput, 5000)
	if err != nil || out != nil {
		t.Fatalf("bad v: out %x, err %v", out, err)
	}
}

func TestSha256Precompile(t *testing.T) {
	input := []byte("hello precompile")
	out, left, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{2}), input, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(input)
	if !bytes.Equal(out, want[:]) {
		t.Fatalf("sha256 output: %x", out)
	}
	// 60 + 12 * ceil(16/32) = 72.
	if left != 1000-72 {
		t.Fatalf("gas remaining: %d", left)
	}
}

func TestRipemd160Precompile(t *testing.T) {
	out, _, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{3}), nil, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := hex.DecodeString("0000000000000000000000009c1185a5c5e9fc54612808977ee8f548b2258d31")
	if !bytes.Equal(out, want) {
		t.Fatalf("ripemd160(\"\"): %x", out)
	}
}

func TestIdentityPrecompile(t *testing.T) {
	input := []byte{1, 2, 3, 4, 5}
	out, left, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{4}), input, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("identity output: %x", out)
	}
	// 15 + 3 * ceil(5/32) = 18.
	if left != 100-18 {
		t.Fatalf("gas remaining: %d", left)
	}

	// Insufficient gas is reported as out-of-gas with nothing left.
	if _, left, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{4}), input, 10); !errors.Is(err, ErrOutOfGas) || left != 0 {
		t.Fatalf("underfunded run: left %d, err %v", left, err)
	}
}

func TestModExpPrecompile(t *testing.T) {
	// 3^2 mod 5 = 4, all operands one byte.
	input := make([]byte, 96, 99)
	input[31] = 1 // base length
	input[63] = 1 // exp length
	input[95] = 1 // mod length
	input = append(input, 3, 2, 5)

	out, _, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{5}), input, 100000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{4}) {
		t.Fatalf("modexp output: %x", out)
	}

	// Zero modulus returns modLen zero bytes.
	zeroMod := make([]byte, 96, 97)
	zeroMod[31] = 1
	zeroMod[63] = 1
	zeroMod[95] = 1
	zeroMod = append(zeroMod, 3) // base only; exp and mod read as zero
	out, _, err = RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{5}), zeroMod, 100000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{0}) {
		t.Fatalf("zero-mod output: %x", out)
	}
}

func TestBn256Unimplemented(t *testing.T) {
	for _, a := range []byte{6, 7, 8} {
		_, _, err := RunPrecompiled(byzantiumRules(), types.BytesToAddress([]byte{a}), make([]byte, 192), 1_000_000)
		if !errors.Is(err, ErrBN254NotImplemented) {
			t.Fatalf("address %d: got %v", a, err)
		}
	}
}

func TestSubstate(t *testing.T) {
	s := NewSubstate()
	a := types.BytesToAddress([]byte{1})
	s.MarkSelfDestruct(a)
	s.Touch(a)
	s.AddRefund(15000)
	s.AddLog(&types.Log{Address: a})

	if _, ok := s.SelfDestructs[a]; !ok {
		t.Fatal("self-destruct not recorded")
	}
	if _, ok := s.Touched[a]; !ok {
		t.Fatal("touch not recorded")
	}
	if s.Refund != 15000 || len(s.Logs) != 1 {
		t.Fatal("refund or logs not recorded")
	}
}
