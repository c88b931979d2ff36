// env2badger 把 .env 中的 Schwab 凭证导入加密的 badger secret store。
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/wetrade/pkg/secretstore"
)

// envKeys .env 变量名 -> secret store key
var envKeys = map[string]string{
	"SCHWAB_API_KEY":       secretstore.KeyAPIKey,
	"SCHWAB_APP_SECRET":    secretstore.KeyAppSecret,
	"SCHWAB_ACCESS_TOKEN":  secretstore.KeyAccessToken,
	"SCHWAB_REFRESH_TOKEN": secretstore.KeyRefreshToken,
}

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("SECRET_STORE_PATH", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("SECRET_STORE_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		tokenTTL  = flag.Duration("token-ttl", 30*time.Minute, "access token TTL (0 = no expiry)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set SECRET_STORE_KEY or pass -secret-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written := 0
	for envName, key := range envKeys {
		v := strings.TrimSpace(kv[envName])
		if v == "" {
			continue
		}
		if key == secretstore.KeyAccessToken && *tokenTTL > 0 {
			err = ss.SetWithTTL(key, v, *tokenTTL)
		} else {
			err = ss.SetString(key, v)
		}
		if err != nil {
			fatal(err)
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s\n", written, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
