package vm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"golang.org/x/crypto/ripemd160"

	"github.com/corevm/corevm/core/types"
)

func TestPrecompiledSet(t *testing.T) {
	for b := byte(1); b <= 4; b++ {
		if !IsPrecompiled(types.BytesToAddress([]byte{b})) {
			t.Errorf("address 0x%02x must be precompiled", b)
		}
	}
	if IsPrecompiled(types.BytesToAddress([]byte{5})) {
		t.Error("address 0x05 is outside the fixed set")
	}
	if IsPrecompiled(types.Address{}) {
		t.Error("zero address is not precompiled")
	}
}

func TestIdentityPrecompile(t *testing.T) {
	p, _ := Precompiled(types.BytesToAddress([]byte{4}))
	input := []byte("copy me")

	out, err := p.Run(input)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, input) {
		t.Errorf("got %q, want %q", out, input)
	}
	if gas := p.RequiredGas(input); gas != 15+3*1 {
		t.Errorf("gas: got %d, want 18", gas)
	}
	if gas := p.RequiredGas(make([]byte, 33)); gas != 15+3*2 {
		t.Errorf("gas for 2 words: got %d, want 21", gas)
	}
}

func TestSha256Precompile(t *testing.T) {
	p, _ := Precompiled(types.BytesToAddress([]byte{2}))
	input := []byte("hello")

	out, err := p.Run(input)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(input)
	if !bytes.Equal(out, want[:]) {
		t.Errorf("digest mismatch")
	}
	if gas := p.RequiredGas(input); gas != 60+12*1 {
		t.Errorf("gas: got %d, want 72", gas)
	}
}

func TestRipemd160Precompile(t *testing.T) {
	p, _ := Precompiled(types.BytesToAddress([]byte{3}))
	input := []byte("hello")

	out, err := p.Run(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 32 {
		t.Fatalf("output must be padded to 32 bytes, got %d", len(out))
	}
	if !bytes.Equal(out[:12], make([]byte, 12)) {
		t.Error("first 12 bytes must be zero padding")
	}
	h := ripemd160.New()
	h.Write(input)
	if !bytes.Equal(out[12:], h.Sum(nil)) {
		t.Error("digest mismatch")
	}
}

func TestEcrecoverMalformedInput(t *testing.T) {
	p, _ := Precompiled(types.BytesToAddress([]byte{1}))

	// Garbage v value: empty output, no error.
	input := make([]byte, 128)
	input[63] = 99
	out, err := p.Run(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %x", out)
	}

	// Short input is padded, not rejected.
	if _, err := p.Run([]byte{0x01}); err != nil {
		t.Errorf("short input must not error: %v", err)
	}
	if gas := p.RequiredGas(nil); gas != 3000 {
		t.Errorf("gas: got %d, want 3000", gas)
	}
}

func TestRunJIT(t *testing.T) {
	p, _ := Precompiled(types.BytesToAddress([]byte{4}))
	acct := types.NewAccount()

	res := RunJIT(p, &ExecOpts{Data: []byte("x"), GasLimit: 100, Account: acct})
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.GasUsed != 18 {
		t.Errorf("gasUsed: got %d, want 18", res.GasUsed)
	}
	if !bytes.Equal(res.ReturnValue, []byte("x")) {
		t.Error("return value mismatch")
	}
	if res.Account != acct {
		t.Error("result must carry the recipient account")
	}
}

func TestRunJITOutOfGas(t *testing.T) {
	p, _ := Precompiled(types.BytesToAddress([]byte{4}))

	res := RunJIT(p, &ExecOpts{Data: []byte("x"), GasLimit: 17})
	if !res.Failed() {
		t.Fatal("expected exceptional halt")
	}
	if !errors.Is(res.Err, ErrOutOfGas) {
		t.Errorf("expected ErrOutOfGas, got %v", res.Err)
	}
	if res.GasUsed != 17 {
		t.Errorf("an exceptional halt consumes the whole allowance, got %d", res.GasUsed)
	}
}
