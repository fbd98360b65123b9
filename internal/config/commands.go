package config

import (
	"time"

	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Pool     PoolConfig
	State    StateConfig
	Players  int
	Rounds   int
	Mint     string
	Symbol   string
	LogLevel string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, poolDefaults(map[string]interface{}{
		"players":   5,
		"rounds":    1,
		"mint":      "100",
		"symbol":    "BOB",
		"log-level": "info",
	}))
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Pool:     readPool(v),
		State:    readState(v),
		Players:  v.GetInt("players"),
		Rounds:   v.GetInt("rounds"),
		Mint:     v.GetString("mint"),
		Symbol:   v.GetString("symbol"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Pool            PoolConfig
	State           StateConfig
	Listen          string
	Backend         string
	RPCURL          string
	OperatorKey     string
	PoolAccount     string
	PollInterval    time.Duration
	ReceiptTimeout  time.Duration
	GasLimit        uint64
	Faucet          bool
	ShutdownTimeout time.Duration
	LogLevel        string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, poolDefaults(map[string]interface{}{
		"listen":           ":8080",
		"backend":          "memory",
		"poll-interval":    2 * time.Second,
		"receipt-timeout":  2 * time.Minute,
		"faucet":           true,
		"shutdown-timeout": 10 * time.Second,
		"state-name":       "pasanaco",
		"log-level":        "info",
	}))
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Pool:            readPool(v),
		State:           readState(v),
		Listen:          v.GetString("listen"),
		Backend:         v.GetString("backend"),
		RPCURL:          v.GetString("rpc"),
		OperatorKey:     v.GetString("operator-key"),
		PoolAccount:     v.GetString("pool-account"),
		PollInterval:    v.GetDuration("poll-interval"),
		ReceiptTimeout:  v.GetDuration("receipt-timeout"),
		GasLimit:        v.GetUint64("gas-limit"),
		Faucet:          v.GetBool("faucet"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// StatusConfig holds configuration for the status command.
type StatusConfig struct {
	State    StateConfig
	RPCURL   string
	Account  string
	LogLevel string
}

// LoadStatus merges config file, environment variables, and flags into StatusConfig.
func LoadStatus(cfgFile string, flags *pflag.FlagSet) (StatusConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"state-name": "pasanaco",
		"log-level":  "info",
	})
	if err != nil {
		return StatusConfig{}, err
	}

	cfg := StatusConfig{
		State:    readState(v),
		RPCURL:   v.GetString("rpc"),
		Account:  v.GetString("account"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}
