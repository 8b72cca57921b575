//go:build js && wasm

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"syscall/js"

	"github.com/smallyu/go-fhe-ecdsa/internal/config"
	"github.com/smallyu/go-fhe-ecdsa/internal/protocol/sign"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhecdsa"
)

// Engines built so far, keyed by handle.
var engines = make(map[string]*fhecdsa.Engine)

func main() {
	c := make(chan struct{}, 0)

	fmt.Println("Go FHE-ECDSA WASM Initialized")

	js.Global().Set("GoFHECDSA", map[string]interface{}{
		"NewEngine": js.FuncOf(NewEngine),
		"Sign":      js.FuncOf(Sign),
		"Params":    js.FuncOf(Params),
	})

	<-c
}

// NewEngine builds an engine.
// Arguments:
// 0: JSON config, same keys as the YAML file ("{}" for defaults)
// Returns:
// Engine handle (string) or "error: ..."
func NewEngine(this js.Value, args []js.Value) interface{} {
	if len(args) != 1 {
		return "error: expected 1 argument (jsonConfig)"
	}

	// JSON is a subset of YAML
	cfg, err := config.Parse([]byte(args[0].String()))
	if err != nil {
		return fmt.Sprintf("error: invalid config: %v", err)
	}
	// a browser tab has one thread
	cfg.Workers = 1

	e, err := fhecdsa.NewFromConfig(cfg)
	if err != nil {
		return fmt.Sprintf("error: failed to create engine: %v", err)
	}
	handle := fmt.Sprintf("engine-%d", len(engines)+1)
	engines[handle] = e
	return handle
}

// Sign encrypts the inputs, signs homomorphically and returns the
// decrypted signature.
// Arguments:
// 0: Engine handle (string)
// 1: JSON request {"key": hex, "nonce": hex (optional), "message": string}
// Returns:
// JSON {"r", "s", "publicKey", "verified"} or "error: ..."
func Sign(this js.Value, args []js.Value) interface{} {
	if len(args) != 2 {
		return "error: expected 2 arguments (handle, jsonRequest)"
	}
	e, ok := engines[args[0].String()]
	if !ok {
		return "error: engine not found"
	}

	type RequestDTO struct {
		Key     string `json:"key"`
		Nonce   string `json:"nonce"`
		Message string `json:"message"`
	}
	var dto RequestDTO
	if err := json.Unmarshal([]byte(args[1].String()), &dto); err != nil {
		return fmt.Sprintf("error: invalid request json: %v", err)
	}

	d, ok := new(big.Int).SetString(dto.Key, 16)
	if !ok {
		return "error: key is not hex"
	}
	hash := sign.HashMessage([]byte(dto.Message))
	k := fhecdsa.NonceRFC6979(d, hash)
	if dto.Nonce != "" {
		if k, ok = new(big.Int).SetString(dto.Nonce, 16); !ok {
			return "error: nonce is not hex"
		}
	}

	req, err := e.NewRequest(d, k, hash)
	if err != nil {
		return fmt.Sprintf("error: encrypt inputs: %v", err)
	}
	sig, err := e.Sign(context.Background(), req)
	if err != nil {
		return fmt.Sprintf("error: sign failed: %v", err)
	}
	plain, err := e.Decrypt(sig)
	if err != nil {
		return fmt.Sprintf("error: decrypt failed: %v", err)
	}

	// hex strings keep 256-bit values intact in JS
	pub := fhecdsa.PublicKeyOf(d)
	resp := map[string]interface{}{
		"r":         fmt.Sprintf("%064x", plain.R),
		"s":         fmt.Sprintf("%064x", plain.S),
		"publicKey": hex.EncodeToString(pub.SerializeCompressed()),
		"verified":  fhecdsa.Verify(pub, hash, plain),
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("error: marshal result failed: %v", err)
	}
	return string(respBytes)
}

// Params lists the known parameter set names as a JSON array.
func Params(this js.Value, args []js.Value) interface{} {
	b, _ := json.Marshal(fhe.ParameterNames())
	return string(b)
}
