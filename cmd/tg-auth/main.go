package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/gotd/td/session"
	"github.com/gotd/td/session/tdesktop"
	"github.com/mdp/qrterminal/v3"

	"github.com/blockedby/tg-archive/internal/config"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/blockedby/tg-archive/internal/settings"
	"github.com/blockedby/tg-archive/internal/telegram"
)

const (
	methodTData = "1"
	methodPhone = "2"
	methodQR    = "3"
)

func main() {
	fmt.Println("=== telegram auth tool ===")
	fmt.Println("this tool stores a telegram session for the archiver, monitor and web frontend")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	// keep the console for prompts
	if err := logger.Init("warn", ""); err != nil {
		fail("init logger", err)
	}

	reader := bufio.NewReader(os.Stdin)
	resolveCredentials(cfg, reader)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := telegram.OpenSessionDB(cfg.SessionDB)
	if err != nil {
		fail("open session db", err)
	}
	manager := telegram.NewManager(cfg, db)
	defer manager.Stop()

	accounts, tdataPath := findTData(reader)

	fmt.Println("choose authentication method:")
	if len(accounts) > 0 {
		fmt.Printf("  1. use telegram desktop session at %s (recommended)\n", tdataPath)
	}
	fmt.Println("  2. authenticate with phone number (sms/code)")
	fmt.Println("  3. scan a QR code with the telegram app")

	def := methodQR
	if len(accounts) > 0 {
		def = methodTData
	}
	fmt.Printf("\nenter choice [%s]: ", def)
	choice := readLine(reader)
	if choice == "" {
		choice = def
	}

	switch choice {
	case methodTData:
		if len(accounts) == 0 {
			fail("tdata", fmt.Errorf("no telegram desktop session found"))
		}
		err = authWithTData(ctx, manager, accounts, reader)
	case methodPhone:
		err = authWithPhone(cfg, reader)
	case methodQR:
		err = authWithQR(ctx, manager)
	default:
		err = fmt.Errorf("unknown choice %q", choice)
	}
	if err != nil {
		fail("authentication", err)
	}

	fmt.Println("\n✓ authentication successful!")
	fmt.Printf("session stored in %s\n", cfg.SessionDB)
	fmt.Println("\n⚠️  keep this file secret! it provides full access to your telegram account")
}

func fail(step string, err error) {
	fmt.Printf("error: %s: %v\n", step, err)
	os.Exit(1)
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// resolveCredentials takes the api credentials from the environment, then the
// settings file, then asks for them
func resolveCredentials(cfg *config.Config, reader *bufio.Reader) {
	if st, err := settings.NewStore(cfg.SettingsFile).Load(); err == nil && st.APICredentials.Configured() {
		apiID, _ := st.APICredentials.APIID.Int()
		cfg.ApplyCredentials(apiID, st.APICredentials.APIHash)
	}

	if cfg.TGApiID == 0 {
		fmt.Print("enter your api_id (from https://my.telegram.org): ")
		apiID, err := strconv.Atoi(readLine(reader))
		if err != nil {
			fail("invalid api_id", err)
		}
		cfg.TGApiID = apiID
	}
	if cfg.TGApiHash == "" {
		fmt.Print("enter your api_hash: ")
		cfg.TGApiHash = readLine(reader)
	}
	if !cfg.HasCredentials() {
		fail("credentials", fmt.Errorf("api_id and api_hash are required"))
	}
}

// telegramDesktopPath returns the default Telegram Desktop data directory
func telegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default: // linux
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

// findTData looks for Telegram Desktop accounts, asking for a custom path
// when the default one has none
func findTData(reader *bufio.Reader) ([]tdesktop.Account, string) {
	path := telegramDesktopPath()
	accounts, err := tdesktop.Read(path, nil)
	if err == nil && len(accounts) > 0 {
		fmt.Printf("detected %d telegram desktop session(s)\n\n", len(accounts))
		return accounts, path
	}

	fmt.Printf("telegram desktop data not found at %s\n", path)
	fmt.Print("enter telegram desktop path (or press enter to skip): ")
	custom := readLine(reader)
	if custom == "" {
		fmt.Println()
		return nil, ""
	}
	if !strings.HasSuffix(custom, "tdata") {
		custom = filepath.Join(custom, "tdata")
	}

	accounts, err = tdesktop.Read(custom, nil)
	if err != nil || len(accounts) == 0 {
		fmt.Printf("no sessions found at %s\n\n", custom)
		return nil, ""
	}
	fmt.Println()
	return accounts, custom
}

// authWithTData imports a Telegram Desktop session into the session db
func authWithTData(ctx context.Context, manager *telegram.Manager, accounts []tdesktop.Account, reader *bufio.Reader) error {
	idx := 0
	if len(accounts) > 1 {
		fmt.Printf("\nfound %d telegram accounts\n", len(accounts))
		fmt.Printf("select account number [1-%d, default 1]: ", len(accounts))
		if n, err := strconv.Atoi(readLine(reader)); err == nil && n >= 1 && n <= len(accounts) {
			idx = n - 1
		}
	}

	data, err := session.TDesktopSession(accounts[idx])
	if err != nil {
		return fmt.Errorf("convert telegram desktop session: %w", err)
	}

	fmt.Println("\nimporting telegram desktop session...")
	if err := manager.ImportSession(ctx, data); err != nil {
		return err
	}
	return manager.WaitReady()
}

// authWithPhone runs the interactive phone code login, storing the session
// directly in the session db
func authWithPhone(cfg *config.Config, reader *bufio.Reader) error {
	fmt.Print("enter your phone number (with country code, e.g. +1234567890): ")
	phone := readLine(reader)

	db, err := telegram.OpenSessionDB(cfg.SessionDB)
	if err != nil {
		return err
	}

	fmt.Println("\nauthenticating... (check telegram for code)")
	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(phone),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(db.Dialector),
			DisableCopyright: true,
		},
	)
	if err != nil {
		return err
	}
	defer client.Stop()

	if client.Self != nil {
		fmt.Printf("logged in as: @%s\n", client.Self.Username)
	}
	return nil
}

// authWithQR prints login QR codes to the terminal until one is scanned
func authWithQR(ctx context.Context, manager *telegram.Manager) error {
	fmt.Println("\nopen telegram on your phone: settings > devices > link desktop device")

	err := manager.StartQR(ctx, func(url string) {
		fmt.Println()
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
		fmt.Println("waiting for scan... (the code refreshes automatically)")
	})
	if err != nil {
		return err
	}
	return manager.WaitReady()
}
