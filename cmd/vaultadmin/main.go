// Command vaultadmin manages per-user encryption keys from an operator
// shell: provisioning a key for a new user and destroying one during
// offboarding. Destroying a key makes every credential encrypted under it
// permanently unreadable.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/server/config"
	"github.com/skillchain/credvault/internal/server/keystore"
	"github.com/skillchain/credvault/internal/server/repositories/repomanager"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vaultadmin <command> <user-id>

Commands:
  provision   create an encryption key for the user
  destroy     delete the user's key (credentials become unreadable)
`)
	os.Exit(2)
}

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func getMasterPassphrase() ([]byte, error) {
	fmt.Print("Enter master passphrase: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return pw, nil
}

func main() {
	if len(os.Args) != 3 {
		usage()
	}
	command, userID := os.Args[1], os.Args[2]

	ctx := context.Background()
	cfg := config.LoadConfig()

	pass, err := getMasterPassphrase()
	if err != nil {
		log.Fatalf("passphrase: %v", err)
	}
	defer common.WipeByteArray(pass)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	custodian := keystore.NewCustodian(rm.UserKeys(db), pass, []byte(cfg.MasterKeySalt))

	switch command {
	case "provision":
		if err := custodian.GenerateKey(ctx, userID); err != nil {
			if errors.Is(err, common.ErrorKeyAlreadyExists) {
				log.Fatalf("user %s already holds a key", userID)
			}
			log.Fatalf("provision: %v", err)
		}
		fmt.Printf("key provisioned for %s\n", userID)

	case "destroy":
		if err := custodian.DeleteKey(ctx, userID); err != nil {
			if errors.Is(err, common.ErrorKeyNotFound) {
				log.Fatalf("user %s holds no key", userID)
			}
			log.Fatalf("destroy: %v", err)
		}
		fmt.Printf("key destroyed for %s; their credentials are now unreadable\n", userID)

	default:
		usage()
	}
}
