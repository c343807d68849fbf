////////////////////////////////////////////////////////////////////////////
// Program: sepominer
// Purpose: proof-of-work miner for the pk910 Sepolia faucet
////////////////////////////////////////////////////////////////////////////

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/AGPFMiner/sepominer/miner"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

////////////////////////////////////////////////////////////////////////////
// Constant and data type/structure definitions

const version = "0.2.0"

const defaultCfg = "sepominer.json"

// The main command describes the service and mines until interrupted.
var mainCmd = &cobra.Command{
	Use:   "sepominer",
	Short: "Sepolia faucet miner",
	Long:  `Mines argon2 shares for the pk910 proof-of-work faucet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mine()
	},
	SilenceUsage: true,
}

// The version command prints this service.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Long:  "The version of the sepominer.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var mainminer = &miner.Miner{}

// Go special automatically executed init function
func init() {
	mainCmd.AddCommand(versionCmd)
	setDefaults(viper.GetViper())

	flags := mainCmd.PersistentFlags()
	flags.String("cfg", defaultCfg, "config file path")
	flags.String("wallet", "", "wallet address that receives the rewards")
	flags.Int("workers", runtime.NumCPU(), "hashing goroutines")
	flags.String("debug", "info", "log level: debug, info, warn or error")
	flags.Bool("reconnect", false, "start a new session when the connection fails")
	viper.BindPFlags(flags)
	pflag.CommandLine.AddFlagSet(flags)

	cobra.OnInitialize(readConfig)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session-url", "https://sepolia-faucet.pk910.de/api/startSession")
	v.SetDefault("socket-url", "wss://sepolia-faucet.pk910.de/ws/pow")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("checkpoint", 1)
	v.SetDefault("ping-interval", "30s")
	v.SetDefault("verify-policy", "status")
	v.SetDefault("reconnect", false)
	v.SetDefault("reconnect-max", 5)
	v.SetDefault("reconnect-backoff", "2s")
	v.SetDefault("captcha-required", false)
	v.SetDefault("api-service", true)
	v.SetDefault("api-listen", "127.0.0.1:1234")
	v.SetDefault("debug", "info")

	v.BindEnv("wallet", "WALLET_ADDRESS")
	v.BindEnv("captcha-token", "HCAPTCHA_TOKEN")
	v.BindEnv("captcha-token-file", "HCAPTCHA_TOKEN_FILE")
}

func readConfig() {
	fullcfgname := viper.GetString("cfg")
	if fullcfgname != defaultCfg {
		viper.SetConfigFile(fullcfgname)
	} else {
		cfgname := strings.TrimSuffix(fullcfgname, filepath.Ext(fullcfgname))
		viper.SetConfigName(cfgname)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sepominer")
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Print("No config file found. Using built-in defaults.")
		return
	}
	log.Print("Config file: ", viper.ConfigFileUsed())

	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Print("Config file changed: ", e.Name)
		mainminer.Reload(viper.GetString("debug"))
	})
}

//configure copies the settings a session needs out of v
func configure(m *miner.Miner, v *viper.Viper) {
	m.Wallet = v.GetString("wallet")
	m.SessionURL = v.GetString("session-url")
	m.SocketURL = v.GetString("socket-url")
	m.MinerVersion = "sepominer/" + version

	m.Workers = v.GetInt("workers")
	m.Checkpoint = v.GetInt("checkpoint")
	m.PingInterval = v.GetDuration("ping-interval")
	m.VerifyPolicy = v.GetString("verify-policy")

	m.Reconnect = v.GetBool("reconnect")
	m.ReconnectMax = v.GetInt("reconnect-max")
	m.ReconnectBackoff = v.GetDuration("reconnect-backoff")

	m.CaptchaToken = v.GetString("captcha-token")
	m.CaptchaTokenFile = v.GetString("captcha-token-file")
	m.CaptchaRequired = v.GetBool("captcha-required")

	m.WebEnable = v.GetBool("api-service")
	m.WebListen = v.GetString("api-listen")

	m.LogLevel = v.GetString("debug")
}

////////////////////////////////////////////////////////////////////////////
// Main

func main() {
	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

////////////////////////////////////////////////////////////////////////////
// Function definitions
func mine() error {
	configure(mainminer, viper.GetViper())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mainminer.MinerMain(ctx)
}
