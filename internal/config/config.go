// Package config parses the anchor process's command-line and environment
// configuration, using the jessevdk/go-flags struct-tag idiom also used
// elsewhere in the pack (see sql-driver's args/listen/positional groups).
package config

import (
	"fmt"
	"math/big"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Lifecycle carries the TxLifecycle tunables named in spec.md §6.
type Lifecycle struct {
	ExpectedWaitTimeBlocks uint64 `long:"expected-wait-time-blocks" env:"EXPECTED_WAIT_TIME_BLOCKS" default:"30" description:"blocks to wait before treating a pending tx as stuck"`
	WaitConfirmations      uint64 `long:"wait-confirmations" env:"WAIT_CONFIRMATIONS" default:"1" description:"confirmations required before treating a mined tx as committed"`
	GasPriceScaleNum       uint64 `long:"gas-price-scale-numerator" env:"GAS_PRICE_SCALE_NUMERATOR" default:"115" description:"numerator of the gas price multiplier applied on replacement"`
	GasPriceScaleDen       uint64 `long:"gas-price-scale-denominator" env:"GAS_PRICE_SCALE_DENOMINATOR" default:"100" description:"denominator of the gas price multiplier applied on replacement"`
}

// Chain carries the settlement-chain connection parameters.
type Chain struct {
	RPCURL                string `long:"rpc-url" env:"CHAIN_RPC_URL" required:"true" description:"JSON-RPC endpoint of the settlement chain"`
	ContractAddr          string `long:"contract-address" env:"CONTRACT_ADDRESS" required:"true" description:"address of the deployed anchor contract"`
	PrivateKeyPath        string `long:"private-key-path" env:"PRIVATE_KEY_PATH" required:"true" description:"path to the hex-encoded signing key used to submit transactions"`
	ChainID               int64  `long:"chain-id" env:"CHAIN_ID" required:"true" description:"EIP-155 chain id of the settlement chain"`
	MaxWithdrawalsPerCall uint32 `long:"max-withdrawals-per-call" env:"MAX_WITHDRAWALS_PER_CALL" default:"0" description:"argument passed to completeWithdrawals after a Verify commits; 0 uses the contract default"`
}

// Store selects and configures the durable OperationStore implementation.
type Store struct {
	Driver string `long:"store-driver" env:"STORE_DRIVER" default:"sqlite" choice:"sqlite" choice:"memory" description:"OperationStore backend"`
	DSN    string `long:"store-dsn" env:"STORE_DSN" default:"anchor.db" description:"sqlite store: path to the database file"`
}

// Config is the anchor process's full set of tunables.
type Config struct {
	Chain     Chain     `group:"Chain" namespace:"chain" env-namespace:"CHAIN"`
	Store     Store     `group:"Store" namespace:"store" env-namespace:"STORE"`
	Lifecycle Lifecycle `group:"Lifecycle" namespace:"lifecycle" env-namespace:"LIFECYCLE"`

	TxPollPeriod time.Duration `long:"tx-poll-period" env:"TX_POLL_PERIOD" default:"5s" description:"interval between lifecycle ticks"`

	Namespace string `long:"metrics-namespace" env:"METRICS_NAMESPACE" default:"anchor" description:"Prometheus metric name prefix"`
	HTTPAddr  string `long:"metrics-addr" env:"METRICS_ADDR" default:":9090" description:"address to serve /metrics on"`
}

// Parse parses args (normally os.Args[1:]) plus environment variables into
// a Config.
func Parse(args []string) (Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ChainIDBig returns the configured chain id as a *big.Int, as required by
// bind.NewKeyedTransactorWithChainID.
func (c Chain) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// Validate checks cross-field invariants go-flags' tags can't express.
func (c Config) Validate() error {
	if c.Lifecycle.GasPriceScaleDen <= 0 {
		return fmt.Errorf("lifecycle.gas-price-scale-denominator must be positive, got %d", c.Lifecycle.GasPriceScaleDen)
	}
	if c.Lifecycle.GasPriceScaleNum < c.Lifecycle.GasPriceScaleDen {
		return fmt.Errorf("lifecycle.gas-price-scale-numerator (%d) must be >= denominator (%d): replacement gas price must not decrease", c.Lifecycle.GasPriceScaleNum, c.Lifecycle.GasPriceScaleDen)
	}
	return nil
}
