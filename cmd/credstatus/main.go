package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"server/internal/credentials"
	"server/internal/infra"
	"server/internal/storage"
)

// credstatus inspects the credential pool the API would build from the
// current environment and cache, printing the masked rotation state.
func main() {
	var rotateFlag bool
	flag.BoolVar(&rotateFlag, "rotate", false, "force-rotate to the next credential before printing")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "credstatus").Logger()

	if len(cfg.GeminiAPIKeys) == 0 {
		fmt.Fprintln(os.Stderr, "no gemini credentials configured, set GEMINI_API_KEY_1..N")
		os.Exit(1)
	}

	cache, err := storage.NewFileStore(cfg.CredentialCache)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	pool := credentials.NewPool(credentials.Options{
		Keys:           cfg.GeminiAPIKeys,
		MaxUsagePerKey: cfg.MaxUsagePerKey,
		Cache:          cache,
		Logger:         logger,
	})

	if rotateFlag {
		if _, err := pool.ForceRotate(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	out, err := json.MarshalIndent(pool.Status(), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
