package dbaccess

import "github.com/omnilayer/omnicore/database"

// Table prefixes. One byte each, assigned once, stable forever (spec
// §6.2); bumping dagparams.DBVersion is required if any of these ever
// change meaning. Grouped by owning component for readability only, the
// byte values are what matters on disk.
var (
	// C2, tally ledger checkpoint snapshots (the live ledger itself is an
	// in-memory map; only its periodic snapshot is persisted).
	TallySnapshot = database.MakeBucket([]byte{'t'})

	// C3, property registry.
	PropertyCurrent   = database.MakeBucket([]byte{'p'})
	PropertyHistory   = database.MakeBucket([]byte{'P'})
	PropertyTxLookup  = database.MakeBucket([]byte{'x'})
	PropertyUnique    = database.MakeBucket([]byte{'u'})
	DelegateHistory   = database.MakeBucket([]byte{'D'})
	IssuerHistory     = database.MakeBucket([]byte{'i'})

	// C4, NFT range store.
	NFTRanges     = database.MakeBucket([]byte{'n'})
	NFTRollback   = database.MakeBucket([]byte{'N'})
	NFTHighestEnd = database.MakeBucket([]byte{'h'})

	// C7/C8, per-block logs.
	TxList   = database.MakeBucket([]byte{'T'})
	TradeList = database.MakeBucket([]byte{'r'})
	STOList  = database.MakeBucket([]byte{'s'})

	// DEx-1.
	DExOffers  = database.MakeBucket([]byte{'o'})
	DExAccepts = database.MakeBucket([]byte{'a'})

	// MetaDEx resting orders.
	MetaDExOrders = database.MakeBucket([]byte{'m'})

	// Freezing.
	FreezeEnabled = database.MakeBucket([]byte{'f'})
	FreezeFlags   = database.MakeBucket([]byte{'F'})

	// C10, fee cache & distribution history.
	FeeCache   = database.MakeBucket([]byte{'c'})
	FeeHistory = database.MakeBucket([]byte{'C'})

	// Activations / alerts.
	Activations = database.MakeBucket([]byte{'v'})
	Alerts      = database.MakeBucket([]byte{'l'})

	// C8/C9, checkpoints (serialized on-disk snapshots for fast restart).
	Checkpoints = database.MakeBucket([]byte{'k'})

	// Misc process metadata (DB_VERSION, last-processed height/hash).
	Meta = database.MakeBucket([]byte{'z'})

	// C3, ecosystem id-allocation counters.
	Counters = database.MakeBucket([]byte{'y'})
)

// Counter keys within the Counters bucket.
var (
	CounterMain = []byte("main")
	CounterTest = []byte("test")
)
