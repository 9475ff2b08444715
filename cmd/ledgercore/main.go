// Command ledgercore runs the Block Coordinator and Chain Sync Service
// against an in-memory genesis in single-node demo mode: no real peers
// are dialled, so the loopback RPC client and null gossip transport
// stand in for the out-of-scope wire layer. Modeled on the teacher's
// cmd/kcn/main.go Flags/Action/App wiring, trimmed to the tunables
// this core actually owns (spec.md §5's timeout table).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/urfave/cli.v1"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/chainsync"
	"github.com/fetchai/ledger-sub006/chainsync/simulated"
	"github.com/fetchai/ledger-sub006/clock"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/consensus/simpow"
	execsim "github.com/fetchai/ledger-sub006/execmgr/simulated"
	"github.com/fetchai/ledger-sub006/coordinator"
	"github.com/fetchai/ledger-sub006/genesis"
	"github.com/fetchai/ledger-sub006/lifecycle"
	"github.com/fetchai/ledger-sub006/log"
	"github.com/fetchai/ledger-sub006/packer/simple"
	"github.com/fetchai/ledger-sub006/reactor"
	"github.com/fetchai/ledger-sub006/storage"
	"github.com/fetchai/ledger-sub006/storage/memstore"
	"github.com/fetchai/ledger-sub006/telemetry"
)

var logger = log.NewModuleLogger(log.Coordinator)

var (
	log2NumLanesFlag = cli.UintFlag{
		Name:  "log2-num-lanes",
		Usage: "log2 of the number of resource lanes a block's slices are keyed against",
		Value: 0,
	}
	numSlicesFlag = cli.IntFlag{
		Name:  "num-slices",
		Usage: "number of transaction slices packed into each block",
		Value: 4,
	}
	txWaitGraceFlag = cli.DurationFlag{
		Name:  "tx-wait-grace",
		Usage: "grace period before WAIT_FOR_TRANSACTIONS requests missing digests from peers",
		Value: 5 * time.Second,
	}
	txWaitDeadlineFlag = cli.DurationFlag{
		Name:  "tx-wait-deadline",
		Usage: "deadline after which WAIT_FOR_TRANSACTIONS gives up on the current block",
		Value: 600 * time.Second,
	}
	reloadLimitFlag = cli.IntFlag{
		Name:  "reload-limit",
		Usage: "maximum number of blocks RELOAD_STATE walks back looking for a committed ancestor",
		Value: 5000,
	}
	resyncTimerFlag = cli.DurationFlag{
		Name:  "resync-timer",
		Usage: "interval SYNCHRONISED waits before re-polling a peer even with no loose blocks",
		Value: 20 * time.Second,
	}
	looseThresholdFlag = cli.IntFlag{
		Name:  "loose-threshold",
		Usage: "number of loose blocks that forces SYNCHRONISED back into SYNCHRONISING",
		Value: 5,
	}
	identityFlag = cli.StringFlag{
		Name:  "identity",
		Usage: "hex-encoded 20-byte node identity used as miner ID and cabinet/whitelist member",
		Value: "0000000000000000000000000000000000000001",
	}
	genesisFileFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "path to a v4 genesis JSON file",
	}
	dbDirFlag = cli.StringFlag{
		Name:  "db-dir",
		Usage: "directory for persistent chain and state storage; omitted runs with chain.InMemoryDB",
	}
	dbBackendFlag = cli.StringFlag{
		Name:  "db-backend",
		Usage: "persistent backend when --db-dir is set: leveldb or badger",
		Value: "leveldb",
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "ledgercore"
	app.Usage = "block coordinator and chain sync demo node"
	app.Flags = []cli.Flag{
		log2NumLanesFlag,
		numSlicesFlag,
		txWaitGraceFlag,
		txWaitDeadlineFlag,
		reloadLimitFlag,
		resyncTimerFlag,
		looseThresholdFlag,
		identityFlag,
		genesisFileFlag,
		dbDirFlag,
		dbBackendFlag,
	}
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func loadGenesisFile(ctx *cli.Context) (*genesis.File, error) {
	path := ctx.String(genesisFileFlag.Name)
	if path == "" {
		return defaultGenesisFile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	return genesis.Parse(raw)
}

// defaultGenesisFile is the single-node demo genesis: no pre-funded
// accounts or stakers, starting now.
func defaultGenesisFile() *genesis.File {
	f := &genesis.File{Version: 4}
	f.Consensus.CabinetSize = 1
	f.Consensus.StartTime = time.Now().Unix()
	return f
}

// openBackend opens the persistent memstore.Backend named by
// backendName under dir, defaulting to leveldb (spec.md §4.4: the
// chain.LoadPersistentDB path is backend-agnostic, the same way the
// teacher's DBManager picks between leveldb and badger).
func openBackend(backendName, dir string) (memstore.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	switch backendName {
	case "badger":
		return memstore.NewBadgerBackend(dir)
	default:
		return memstore.NewLevelDBBackend(dir)
	}
}

// commitOnly is the demo execution engine's Apply: it has no
// transactions to actually interpret (the execution engine itself is
// out of scope, spec.md §1), so it just commits the store's current
// pending writes under the block's number.
func commitOnly(store storage.Store, b *chain.Block) error {
	store.Commit(b.BlockNumber)
	return nil
}

func run(ctx *cli.Context) error {
	self, err := parseIdentity(ctx.String(identityFlag.Name))
	if err != nil {
		return err
	}

	gf, err := loadGenesisFile(ctx)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	mode := chain.InMemoryDB
	dbDir := ctx.String(dbDirFlag.Name)
	dbBackendName := ctx.String(dbBackendFlag.Name)

	var store storage.Store
	if dbDir == "" {
		store = memstore.New(memstore.NewMemBackend())
	} else {
		mode = chain.LoadPersistentDB
		backend, err := openBackend(dbBackendName, filepath.Join(dbDir, "state"))
		if err != nil {
			return fmt.Errorf("open state backend: %w", err)
		}
		store = memstore.New(backend)
	}
	clk := clock.Real()

	cc := simpow.NewConsensus(clk, 1, self)
	cc.SetWhitelist([]common.Address{self}) // no-op on simpow; kept to match the consensus.Contract call sequence a stake-backed node would use
	cc.SetBlockInterval(2000)

	guard := lifecycle.NewGuard()
	boot := &lifecycle.Bootstrap{Store: store, Consensus: cc, Guard: guard}
	result, err := boot.Run(gf)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	var c chain.Chain
	if mode == chain.LoadPersistentDB {
		chainBackend, err := openBackend(dbBackendName, filepath.Join(dbDir, "chain"))
		if err != nil {
			return fmt.Errorf("open chain backend: %w", err)
		}
		c, err = chain.NewPersistent(chainBackend, result.Genesis)
		if err != nil {
			return fmt.Errorf("open persistent chain: %w", err)
		}
	} else {
		c = chain.NewInMemory(result.Genesis)
	}

	exec := execsim.New(store, commitOnly)
	pk := simple.New()

	cfg := coordinator.DefaultConfig(uint8(ctx.Uint(log2NumLanesFlag.Name)), ctx.Int(numSlicesFlag.Name))
	cfg.TxWaitGrace = ctx.Duration(txWaitGraceFlag.Name)
	cfg.TxWaitDeadline = ctx.Duration(txWaitDeadlineFlag.Name)
	cfg.ReloadLimit = ctx.Int(reloadLimitFlag.Name)

	coord := coordinator.New(cfg, c, store, exec, pk, cc, noopSink{}, clk)

	peers := chainsync.NewMemoryPeerSet(nil)
	syncCfg := chainsync.DefaultConfig()
	syncCfg.ResyncTimer = ctx.Duration(resyncTimerFlag.Name)
	syncCfg.LooseThreshold = ctx.Int(looseThresholdFlag.Name)
	sync := chainsync.New(syncCfg, c, cc, simulated.NewLoopbackRPC(c), peers, simulated.NullTransport{}, clk)

	reg := telemetry.New(prometheus.NewRegistry())
	reg.ObserveCoordinatorState(coordinatorStateNames, coord.State().String())
	reg.ObserveChainSyncState(chainSyncStateNames, sync.State().String())

	logger.Info("starting reactor", "identity", self.String(), "genesisHash", result.Genesis.Hash.String())

	r := reactor.New(50*time.Millisecond, coord, sync)
	go r.Run()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	r.Stop()
	return guard.Unwind()
}

func parseIdentity(s string) (common.Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode identity: %w", err)
	}
	return common.BytesToAddress(raw), nil
}

var coordinatorStateNames = []string{
	coordinator.ReloadState.String(),
	coordinator.Reset.String(),
	coordinator.Synchronising.String(),
	coordinator.PreExecBlockValidation.String(),
	coordinator.WaitForTransactions.String(),
	coordinator.SynergeticExecution.String(),
	coordinator.ScheduleBlockExecution.String(),
	coordinator.WaitForExecution.String(),
	coordinator.PostExecBlockValidation.String(),
	coordinator.Synchronised.String(),
	coordinator.NewSynergeticExecution.String(),
	coordinator.PackNewBlock.String(),
	coordinator.ExecuteNewBlock.String(),
	coordinator.WaitForNewBlockExecution.String(),
	coordinator.TransmitBlock.String(),
}

var chainSyncStateNames = []string{
	chainsync.Synchronising.String(),
	chainsync.StartSyncWithPeer.String(),
	chainsync.RequestNextBlocks.String(),
	chainsync.WaitForNextBlocks.String(),
	chainsync.CompleteSyncWithPeer.String(),
	chainsync.Synchronised.String(),
}

// noopSink is the single-node demo's BlockSink: there are no peers to
// gossip a newly mined block to, and the coordinator already commits
// the block to its own chain before calling BroadcastBlock.
type noopSink struct{}

func (noopSink) BroadcastBlock(*chain.Block) {}
