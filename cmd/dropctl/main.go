// Command dropctl is the DropLocker admin tool.
//
// Subcommands:
//
//	keygen   print a fresh random master key as 64 hex characters;
//	         with -passphrase, derive the key from a passphrase read
//	         from the terminal instead (uses the salt in the data
//	         directory, so the output matches what the server derives)
//	sweep    remove expired artifact records and blobs now
//
// The sweep subcommand accepts the same configuration flags and JSON
// config file as the server.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/cryptox"
	"github.com/droplocker/droplocker/internal/masterkey"
	"github.com/droplocker/droplocker/internal/server"
	"github.com/droplocker/droplocker/internal/server/config"
)

func main() {

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "keygen":
		if err := runKeygen(); err != nil {
			log.Fatalf("%v", err)
		}
	case "sweep":
		if err := runSweep(); err != nil {
			log.Fatalf("%v", err)
		}
	default:
		usage()
		os.Exit(2)
	}

}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dropctl <keygen|sweep> [flags]")
}

func runKeygen() error {
	cfg := config.LoadConfig()

	if !hasFlag("-passphrase") {
		key := common.GenerateRandByteArray(cryptox.KeySize)
		defer common.WipeByteArray(key)
		fmt.Println(hex.EncodeToString(key))
		return nil
	}

	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	defer common.WipeByteArray(passphrase)

	provider, err := masterkey.FromPassphrase(string(passphrase), cfg.DataDir)
	if err != nil {
		return err
	}

	fmt.Println(hex.EncodeToString(provider.Key()))
	return nil
}

func runSweep() error {
	ctx := context.Background()

	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}

	removed, err := app.SweepOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d expired artifact(s)\n", removed)
	return nil
}

// hasFlag reports whether a bare flag is present on the command line.
// The -passphrase flag is dropctl-only; the shared config parser filters
// it out, so scanning os.Args directly is enough.
func hasFlag(name string) bool {
	for _, a := range os.Args[2:] {
		if a == name {
			return true
		}
	}
	return false
}
