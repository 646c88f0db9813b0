package config

import (
	"flag"
	"os"
	"time"

	"github.com/skillchain/credvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   identity token HMAC secret
//	-m string   custodian master passphrase
//	-n string   custodian master key salt
//	-l string   ledger endpoint (e.g., "http://127.0.0.1:8545")
//	-i string   ledger network id
//	-t int      ledger call timeout, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-m", "-n", "-l", "-i", "-t", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.IdentitySecret, "s", config.IdentitySecret, "identity token secret")
	fs.StringVar(&config.MasterPassphrase, "m", config.MasterPassphrase, "custodian master passphrase")
	fs.StringVar(&config.MasterKeySalt, "n", config.MasterKeySalt, "custodian master key salt")
	fs.StringVar(&config.LedgerEndpoint, "l", config.LedgerEndpoint, "ledger endpoint")
	fs.StringVar(&config.LedgerNetworkID, "i", config.LedgerNetworkID, "ledger network id")

	ledgerTimeout := fs.Int("t", int(config.LedgerTimeout.Seconds()), "ledger_timeout (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LedgerTimeout = time.Duration(*ledgerTimeout) * time.Second
}
