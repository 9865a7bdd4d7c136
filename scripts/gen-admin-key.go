package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/apodmail/apodmail/internal/auth"
)

type output struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

// Generates an admin key and the ADMIN_KEY_HASH value to configure.
// The plaintext key is shown once and never stored.
func main() {
	format := "plain"
	if len(os.Args) > 1 {
		format = os.Args[1]
	}

	generated, err := auth.GenerateAdminKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate admin key:", err)
		os.Exit(1)
	}

	out := output{
		Key:  generated.Plaintext,
		Hash: generated.Hash,
	}

	switch strings.ToLower(format) {
	case "plain":
		fmt.Println("key: ", out.Key)
		fmt.Println("hash:", out.Hash)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
