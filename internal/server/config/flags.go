package config

import (
	"flag"
	"os"
	"time"

	"github.com/droplocker/droplocker/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-w string   data directory for records, blobs, and the key salt
//	-r string   record backend: file | postgres
//	-d string   PostgreSQL DSN
//	-o string   blob backend: file | s3
//	-k string   master key, 64 hex characters
//	-q string   master passphrase (used when no hex key is given)
//	-s string   HMAC secret for share-link tokens
//	-x int      maximum configurable expiry, hours
//	-i int      sweep interval, minutes (0 disables the sweep)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and then converted to
//     time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-w", "-r", "-d", "-o", "-k", "-q", "-s", "-x", "-i", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DataDir, "w", config.DataDir, "data directory")
	fs.StringVar(&config.RecordBackend, "r", config.RecordBackend, "record backend (file|postgres)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.BlobBackend, "o", config.BlobBackend, "blob backend (file|s3)")
	fs.StringVar(&config.MasterKeyHex, "k", config.MasterKeyHex, "master key (hex)")
	fs.StringVar(&config.MasterPassphrase, "q", config.MasterPassphrase, "master passphrase")
	fs.StringVar(&config.LinkSecret, "s", config.LinkSecret, "link token secret key")

	maxExpiryHours := fs.Int("x", int(config.MaxExpiry.Hours()), "max link expiry (in hours)")
	sweepMinutes := fs.Int("i", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.MaxExpiry = time.Duration(*maxExpiryHours) * time.Hour
	config.SweepInterval = time.Duration(*sweepMinutes) * time.Minute
}
